package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// OrderBookSnapshot is the durable state a book is bootstrapped from.
type OrderBookSnapshot struct {
	BuyOrders  []*Order
	SellOrders []*Order
	Wallets    []*Wallet
}

// DepthLevel aggregates the resting orders of one price.
type DepthLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth is a point-in-time aggregated view of both sides of the book.
type Depth struct {
	Symbol    string       `json:"symbol"`
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

func (d *Depth) DeepCopy() *Depth {
	if d == nil {
		return nil
	}
	c := *d
	c.Bids = slices.Clone(d.Bids)
	c.Asks = slices.Clone(d.Asks)
	return &c
}
