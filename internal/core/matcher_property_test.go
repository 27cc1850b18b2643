package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func TestMatchInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		codes := []string{"W1", "W2", "W3", "W4"}
		var wallets []*domain.Wallet
		totalAmount := decimal.Zero
		var totalQty int64
		for _, code := range codes {
			amount := decimal.New(rapid.Int64Range(0, 100_000).Draw(rt, "amount_"+code), -2)
			qty := rapid.Int64Range(0, 200).Draw(rt, "qty_"+code)
			wallets = append(wallets, &domain.Wallet{Code: code, Amount: amount, Quantity: qty})
			totalAmount = totalAmount.Add(amount)
			totalQty += qty
		}

		ob := NewOrderBook("PROP", nil)
		if err := ob.LoadSnapshot(&domain.OrderBookSnapshot{Wallets: wallets}); err != nil {
			rt.Fatalf("load: %v", err)
		}

		orders := make(map[string]*domain.Order)
		filled := make(map[string]int64)
		n := rapid.IntRange(1, 60).Draw(rt, "orders")
		for i := 0; i < n; i++ {
			side := rapid.SampledFrom([]domain.Side{domain.Buy, domain.Sell}).Draw(rt, "side")
			o := &domain.Order{
				ID:         fmt.Sprintf("o-%d", i),
				WalletCode: rapid.SampledFrom(codes).Draw(rt, "wallet"),
				Side:       side,
				Price:      decimal.New(rapid.Int64Range(90, 110).Draw(rt, "price"), -1),
				Quantity:   rapid.Int64Range(1, 30).Draw(rt, "quantity"),
				CreatedAt:  t0.Add(time.Duration(i) * time.Millisecond),
			}
			o.Remaining = o.Quantity
			orders[o.ID] = o

			res, err := ob.Match(o, o.CreatedAt)
			if err != nil {
				rt.Fatalf("match %s: %v", o.ID, err)
			}
			if err := res.Verify(); err != nil {
				rt.Fatalf("verify %s: %v", o.ID, err)
			}
			for _, tr := range res.Trades {
				buy, sell := orders[tr.BuyOrderID], orders[tr.SellOrderID]
				if buy.WalletCode == sell.WalletCode {
					rt.Fatalf("self-trade %s between %s and %s", tr.ID, buy.ID, sell.ID)
				}
				if buy.Side != domain.Buy || sell.Side != domain.Sell {
					rt.Fatalf("trade %s has sides swapped", tr.ID)
				}
				if tr.Price.GreaterThan(buy.Price) || tr.Price.LessThan(sell.Price) {
					rt.Fatalf("trade %s at %s outside [%s, %s]", tr.ID, tr.Price, sell.Price, buy.Price)
				}
				filled[buy.ID] += tr.Quantity
				filled[sell.ID] += tr.Quantity
			}
		}

		sumAmount := decimal.Zero
		var sumQty int64
		for _, w := range ob.Ledger().Wallets() {
			if w.Amount.IsNegative() || w.Quantity < 0 {
				rt.Fatalf("wallet %s went negative: %s / %d", w.Code, w.Amount, w.Quantity)
			}
			sumAmount = sumAmount.Add(w.Amount)
			sumQty += w.Quantity
		}
		if !sumAmount.Equal(totalAmount) {
			rt.Fatalf("currency not conserved: %s != %s", sumAmount, totalAmount)
		}
		if sumQty != totalQty {
			rt.Fatalf("asset not conserved: %d != %d", sumQty, totalQty)
		}

		for id, o := range orders {
			if o.Remaining < 0 || o.Remaining > o.Quantity {
				rt.Fatalf("order %s remaining %d outside [0, %d]", id, o.Remaining, o.Quantity)
			}
			if filled[id] != o.Filled() {
				rt.Fatalf("order %s traded %d but filled %d", id, filled[id], o.Filled())
			}
			_, active := ob.Lookup(id)
			if active == o.Fulfilled() {
				rt.Fatalf("order %s active=%v with remaining %d", id, active, o.Remaining)
			}
		}

		for _, side := range []domain.Side{domain.Buy, domain.Sell} {
			var prev *domain.Order
			for _, o := range ob.Resting(side) {
				if prev != nil {
					c := prev.Price.Cmp(o.Price)
					if side == domain.Buy {
						c = -c
					}
					if c > 0 || (c == 0 && prev.CreatedAt.After(o.CreatedAt)) {
						rt.Fatalf("%s side out of price-time order at %s", side, o.ID)
					}
				}
				prev = o
			}
		}
	})
}
