package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

// tradeNamespace seeds deterministic trade ids: redelivering the same order
// produces the same trade ids, so duplicate inserts collapse.
var tradeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("wallet-exchange/trades"))

// MatchResult carries everything a single match mutated, in first-touch order.
// Orders[0] is always the aggressor.
type MatchResult struct {
	Trades  []*domain.Trade
	Orders  []*domain.Order
	Wallets []*domain.Wallet
}

type fillOutcome int

const (
	filled fillOutcome = iota
	exhausted
)

type matchRun struct {
	book      *OrderBook
	aggressor *domain.Order
	own       *domain.Wallet
	at        time.Time
	res       *MatchResult
	orders    map[string]struct{}
	wallets   map[string]struct{}
}

// Match applies aggressor against the opposite side of the book, settling
// every fill in the ledger, and rests whatever quantity is left at the
// aggressor's limit price. The run cannot be interrupted; callers that fail to
// persist its effects must discard the book.
func (ob *OrderBook) Match(aggressor *domain.Order, at time.Time) (*MatchResult, error) {
	if aggressor == nil {
		return nil, fmt.Errorf("%w: nil order", domain.ErrInvalidOrder)
	}
	if err := aggressor.Validate(); err != nil {
		return nil, err
	}
	if _, exists := ob.index[aggressor.ID]; exists {
		return nil, fmt.Errorf("%w: order %s already active", domain.ErrInvalidOrder, aggressor.ID)
	}
	own, ok := ob.ledger.Wallet(aggressor.WalletCode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, aggressor.WalletCode)
	}

	ob.index[aggressor.ID] = aggressor
	run := &matchRun{
		book:      ob,
		aggressor: aggressor,
		own:       own,
		at:        at,
		res:       &MatchResult{},
		orders:    make(map[string]struct{}),
		wallets:   make(map[string]struct{}),
	}
	run.touchOrder(aggressor)

	opposite := ob.side(aggressor.Side.Opposite())
	for lvl := range opposite.ascend() {
		if !crosses(aggressor, lvl.price) {
			break
		}
		if !run.hasPower() {
			break
		}
		if run.sweep(opposite, lvl) == exhausted || aggressor.Fulfilled() {
			break
		}
	}

	if aggressor.Fulfilled() {
		delete(ob.index, aggressor.ID)
	} else if err := ob.InsertResting(aggressor); err != nil {
		return nil, err
	}
	return run.res, nil
}

// crosses reports whether a resting level at price can trade with o.
func crosses(o *domain.Order, price decimal.Decimal) bool {
	if o.Side == domain.Buy {
		return price.LessThanOrEqual(o.Price)
	}
	return price.GreaterThanOrEqual(o.Price)
}

// hasPower reports whether the aggressor's wallet can still pay (buy) or
// deliver (sell).
func (r *matchRun) hasPower() bool {
	if r.aggressor.Side == domain.Buy {
		return r.own.Amount.IsPositive()
	}
	return r.own.Quantity > 0
}

// sweep walks one level head first. Every queued order is visited at most once
// per run; a same-wallet order stays in place and the walk moves past it. A
// fill that finds either wallet unable to deliver or pay ends the run.
func (r *matchRun) sweep(s *bookSide, lvl *PriceLevel) fillOutcome {
	for e := lvl.orders.Front(); e != nil; {
		if r.aggressor.Fulfilled() || !r.hasPower() {
			return exhausted
		}
		next := e.Next()
		resting := e.Value.(*domain.Order)
		switch {
		case resting.Fulfilled():
			r.book.removeElement(s, lvl, e)
		case resting.WalletCode == r.aggressor.WalletCode:
			// self-trade
		default:
			if r.fill(resting) == exhausted {
				return exhausted
			}
			if resting.Fulfilled() {
				r.book.removeElement(s, lvl, e)
			}
		}
		e = next
	}
	return filled
}

func (r *matchRun) fill(resting *domain.Order) fillOutcome {
	counter, ok := r.book.ledger.Wallet(resting.WalletCode)
	if !ok {
		return exhausted
	}
	buyer, seller := r.own, counter
	buyOrder, sellOrder := r.aggressor, resting
	if r.aggressor.Side == domain.Sell {
		buyer, seller = counter, r.own
		buyOrder, sellOrder = resting, r.aggressor
	}

	// An unfunded wallet on either side ends the run; orders queued behind it
	// at this price never trade ahead of it.
	if seller.Quantity <= 0 || !buyer.Amount.IsPositive() {
		return exhausted
	}

	qty := min(r.aggressor.Remaining, resting.Remaining, seller.Quantity)
	price := resting.Price
	notional := price.Mul(decimal.NewFromInt(qty))
	if notional.GreaterThan(buyer.Amount) {
		qty = affordable(buyer.Amount, price)
		notional = price.Mul(decimal.NewFromInt(qty))
	}
	if qty <= 0 {
		return exhausted
	}

	r.aggressor.Remaining -= qty
	resting.Remaining -= qty
	r.book.ledger.transfer(buyer, seller, qty, notional, r.at)

	r.touchOrder(resting)
	r.touchWallet(buyer)
	r.touchWallet(seller)
	r.res.Trades = append(r.res.Trades, &domain.Trade{
		ID:          tradeID(r.aggressor.ID, len(r.res.Trades)),
		Price:       price,
		Quantity:    qty,
		BuyOrderID:  buyOrder.ID,
		SellOrderID: sellOrder.ID,
		Timestamp:   r.at,
	})
	return filled
}

// affordable is the largest whole quantity amount can pay for at price,
// truncated toward zero.
func affordable(amount, price decimal.Decimal) int64 {
	if !amount.IsPositive() || !price.IsPositive() {
		return 0
	}
	q, _ := amount.QuoRem(price, 0)
	return q.IntPart()
}

func (r *matchRun) touchOrder(o *domain.Order) {
	if _, ok := r.orders[o.ID]; ok {
		return
	}
	r.orders[o.ID] = struct{}{}
	r.res.Orders = append(r.res.Orders, o)
}

func (r *matchRun) touchWallet(w *domain.Wallet) {
	if _, ok := r.wallets[w.Code]; ok {
		return
	}
	r.wallets[w.Code] = struct{}{}
	r.res.Wallets = append(r.res.Wallets, w)
}

func tradeID(aggressorID string, seq int) string {
	return uuid.NewSHA1(tradeNamespace, []byte(aggressorID+"|"+strconv.Itoa(seq))).String()
}

// Verify checks the invariants every match must leave behind.
func (res *MatchResult) Verify() error {
	for _, o := range res.Orders {
		if o.Remaining < 0 || o.Remaining > o.Quantity {
			return fmt.Errorf("%w: order %s remaining %d outside [0, %d]", domain.ErrInvariantViolation, o.ID, o.Remaining, o.Quantity)
		}
	}
	for _, w := range res.Wallets {
		if err := checkWallet(w); err != nil {
			return err
		}
	}
	for _, t := range res.Trades {
		if t.Quantity <= 0 {
			return fmt.Errorf("%w: trade %s quantity %d", domain.ErrInvariantViolation, t.ID, t.Quantity)
		}
		if t.BuyOrderID == t.SellOrderID {
			return fmt.Errorf("%w: trade %s matches order %s with itself", domain.ErrInvariantViolation, t.ID, t.BuyOrderID)
		}
	}
	return nil
}
