package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the currency (Amount) and asset (Quantity) balances of an account.
type Wallet struct {
	Code      string
	Amount    decimal.Decimal
	Quantity  int64
	UpdatedAt time.Time
}

func (w *Wallet) Clone() *Wallet {
	c := *w
	return &c
}
