package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func wallet(code, amount string, qty int64) *domain.Wallet {
	return &domain.Wallet{Code: code, Amount: dec(amount), Quantity: qty}
}

// orderSeq hands out orders with increasing ids and creation times.
type orderSeq struct {
	n int
}

func (s *orderSeq) next(wallet string, side domain.Side, price string, qty int64) *domain.Order {
	s.n++
	return &domain.Order{
		ID:         fmt.Sprintf("o-%03d", s.n),
		WalletCode: wallet,
		Side:       side,
		Price:      dec(price),
		Quantity:   qty,
		Remaining:  qty,
		CreatedAt:  t0.Add(time.Duration(s.n) * time.Second),
	}
}

func newTestBook(t *testing.T, wallets ...*domain.Wallet) *OrderBook {
	t.Helper()
	ob := NewOrderBook("TEST", NewLedger())
	require.NoError(t, ob.LoadSnapshot(&domain.OrderBookSnapshot{Wallets: wallets}))
	return ob
}

// submit matches o and fails the test on error or broken invariants.
func submit(t *testing.T, ob *OrderBook, o *domain.Order) *MatchResult {
	t.Helper()
	res, err := ob.Match(o, o.CreatedAt)
	require.NoError(t, err)
	require.NoError(t, res.Verify())
	return res
}

func balance(t *testing.T, ob *OrderBook, code string) *domain.Wallet {
	t.Helper()
	w, ok := ob.Ledger().Wallet(code)
	require.True(t, ok, "wallet %s", code)
	return w
}

func restingIDs(ob *OrderBook, side domain.Side) []string {
	var ids []string
	for _, o := range ob.Resting(side) {
		ids = append(ids, o.ID)
	}
	return ids
}
