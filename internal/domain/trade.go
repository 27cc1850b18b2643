package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Trade struct {
	ID          string
	Price       decimal.Decimal
	Quantity    int64
	BuyOrderID  string
	SellOrderID string
	Timestamp   time.Time
}

// Notional is the currency value exchanged by the trade.
func (t *Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}
