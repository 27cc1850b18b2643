package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type Order struct {
	ID         string
	WalletCode string
	Side       Side
	Price      decimal.Decimal
	Quantity   int64
	Remaining  int64
	CreatedAt  time.Time
}

func (o *Order) Fulfilled() bool {
	return o.Remaining <= 0
}

// Filled is the executed part of the original quantity.
func (o *Order) Filled() int64 {
	return o.Quantity - o.Remaining
}

func (o *Order) Clone() *Order {
	c := *o
	return &c
}

const (
	MaxWalletCodeLen = 50
	// PriceScale is the number of fractional digits storage keeps for prices
	// and currency balances.
	PriceScale = 8
)

// NormalizeWalletCode is the canonical form of a wallet code as it is stored
// and looked up.
func NormalizeWalletCode(code string) string {
	return strings.TrimSpace(code)
}

// Validate checks the fields an order must carry before it may reach the book.
// The wallet code must already be normalized.
func (o *Order) Validate() error {
	code := o.WalletCode
	if code == "" || utf8.RuneCountInString(code) > MaxWalletCodeLen {
		return fmt.Errorf("%w: wallet code must be between 1 and %d characters", ErrInvalidOrder, MaxWalletCodeLen)
	}
	if code != NormalizeWalletCode(code) {
		return fmt.Errorf("%w: wallet code %q has surrounding whitespace", ErrInvalidOrder, code)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: invalid side %q", ErrInvalidOrder, o.Side)
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	if !o.Price.Equal(o.Price.Truncate(PriceScale)) {
		return fmt.Errorf("%w: price %s has more than %d decimal places", ErrInvalidOrder, o.Price, PriceScale)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if o.Remaining < 0 || o.Remaining > o.Quantity {
		return fmt.Errorf("%w: remaining %d out of range [0, %d]", ErrInvalidOrder, o.Remaining, o.Quantity)
	}
	return nil
}
