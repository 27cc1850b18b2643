package core

import (
	"container/list"
	"fmt"
	"iter"
	"time"

	"github.com/google/btree"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

const btreeDegree = 8

// PriceLevel is the FIFO queue of resting orders at one price.
type PriceLevel struct {
	price  decimal.Decimal
	orders *list.List
}

func (l *PriceLevel) Price() decimal.Decimal { return l.price }

func (l *PriceLevel) Len() int { return l.orders.Len() }

// Head returns the oldest order of the level.
func (l *PriceLevel) Head() *domain.Order {
	if e := l.orders.Front(); e != nil {
		return e.Value.(*domain.Order)
	}
	return nil
}

// Orders returns the queued orders in arrival order.
func (l *PriceLevel) Orders() []*domain.Order {
	res := make([]*domain.Order, 0, l.orders.Len())
	for e := l.orders.Front(); e != nil; e = e.Next() {
		res = append(res, e.Value.(*domain.Order))
	}
	return res
}

type bookSide struct {
	side   domain.Side
	less   btree.LessFunc[*PriceLevel]
	levels *btree.BTreeG[*PriceLevel]
}

func newBookSide(side domain.Side) *bookSide {
	// bids: highest price first, asks: lowest price first
	less := func(a, b *PriceLevel) bool { return a.price.LessThan(b.price) }
	if side == domain.Buy {
		less = func(a, b *PriceLevel) bool { return a.price.GreaterThan(b.price) }
	}
	return &bookSide{
		side:   side,
		less:   less,
		levels: btree.NewG(btreeDegree, less),
	}
}

func (s *bookSide) level(price decimal.Decimal) (*PriceLevel, bool) {
	return s.levels.Get(&PriceLevel{price: price})
}

func (s *bookSide) getOrCreate(price decimal.Decimal) *PriceLevel {
	if lvl, ok := s.level(price); ok {
		return lvl
	}
	lvl := &PriceLevel{price: price, orders: list.New()}
	s.levels.ReplaceOrInsert(lvl)
	return lvl
}

// after returns the first level strictly behind price in priority order.
func (s *bookSide) after(price decimal.Decimal) (*PriceLevel, bool) {
	pivot := &PriceLevel{price: price}
	var next *PriceLevel
	s.levels.AscendGreaterOrEqual(pivot, func(l *PriceLevel) bool {
		if s.less(pivot, l) {
			next = l
			return false
		}
		return true
	})
	return next, next != nil
}

// ascend walks levels in priority order. Every step re-seeks from the last
// visited price, so levels pruned or added while iterating are observed.
func (s *bookSide) ascend() iter.Seq[*PriceLevel] {
	return func(yield func(*PriceLevel) bool) {
		cur, ok := s.levels.Min()
		for ok {
			if !yield(cur) {
				return
			}
			cur, ok = s.after(cur.price)
		}
	}
}

// OrderBook holds the resting orders of one instrument together with the
// ledger the matching algorithm settles against. It is not safe for concurrent
// use; Engine serializes every access.
type OrderBook struct {
	symbol string
	buys   *bookSide
	sells  *bookSide
	index  map[string]*domain.Order
	ledger *Ledger
	loaded bool
}

func NewOrderBook(symbol string, ledger *Ledger) *OrderBook {
	if ledger == nil {
		ledger = NewLedger()
	}
	return &OrderBook{
		symbol: symbol,
		buys:   newBookSide(domain.Buy),
		sells:  newBookSide(domain.Sell),
		index:  make(map[string]*domain.Order),
		ledger: ledger,
	}
}

func (ob *OrderBook) Symbol() string { return ob.symbol }

func (ob *OrderBook) Ledger() *Ledger { return ob.ledger }

func (ob *OrderBook) side(s domain.Side) *bookSide {
	if s == domain.Buy {
		return ob.buys
	}
	return ob.sells
}

// InsertResting appends o to the tail of its price level.
func (ob *OrderBook) InsertResting(o *domain.Order) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", domain.ErrInvalidOrder)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: invalid side %q", domain.ErrInvalidOrder, o.Side)
	}
	if o.Fulfilled() {
		return fmt.Errorf("%w: order %s is fulfilled", domain.ErrInvalidOrder, o.ID)
	}
	ob.side(o.Side).getOrCreate(o.Price).orders.PushBack(o)
	ob.index[o.ID] = o
	return nil
}

// RemoveIfFulfilled pops fulfilled orders off the head of the level at price
// and prunes the level once it is empty. It reports how many orders were removed.
func (ob *OrderBook) RemoveIfFulfilled(side domain.Side, price decimal.Decimal) int {
	s := ob.side(side)
	lvl, ok := s.level(price)
	if !ok {
		return 0
	}
	removed := 0
	for e := lvl.orders.Front(); e != nil; e = lvl.orders.Front() {
		if !e.Value.(*domain.Order).Fulfilled() {
			break
		}
		ob.removeElement(s, lvl, e)
		removed++
	}
	return removed
}

func (ob *OrderBook) removeElement(s *bookSide, lvl *PriceLevel, e *list.Element) {
	o := lvl.orders.Remove(e).(*domain.Order)
	delete(ob.index, o.ID)
	if lvl.orders.Len() == 0 {
		s.levels.Delete(lvl)
	}
}

// BestLevels yields the levels of side from best to worst price.
func (ob *OrderBook) BestLevels(side domain.Side) iter.Seq2[decimal.Decimal, *PriceLevel] {
	levels := ob.side(side).ascend()
	return func(yield func(decimal.Decimal, *PriceLevel) bool) {
		for lvl := range levels {
			if !yield(lvl.price, lvl) {
				return
			}
		}
	}
}

func (ob *OrderBook) Lookup(orderID string) (*domain.Order, bool) {
	o, ok := ob.index[orderID]
	return o, ok
}

// Len is the number of active orders, including an aggressor being matched.
func (ob *OrderBook) Len() int {
	return len(ob.index)
}

// LoadSnapshot fills an empty book from durable state. Within a price level
// orders are queued by creation time; ties keep the snapshot's order.
func (ob *OrderBook) LoadSnapshot(snap *domain.OrderBookSnapshot) error {
	if ob.loaded || len(ob.index) > 0 {
		return fmt.Errorf("order book %s already initialized", ob.symbol)
	}
	ob.loaded = true
	if snap == nil {
		return nil
	}
	for _, w := range snap.Wallets {
		ob.ledger.Register(w)
	}
	for _, orders := range [][]*domain.Order{
		priorityOrder(domain.Buy, snap.BuyOrders),
		priorityOrder(domain.Sell, snap.SellOrders),
	} {
		for _, o := range orders {
			if o == nil || o.Fulfilled() {
				continue
			}
			if _, dup := ob.index[o.ID]; dup {
				continue
			}
			if err := ob.InsertResting(o.Clone()); err != nil {
				return fmt.Errorf("load order %s: %w", o.ID, err)
			}
		}
	}
	return nil
}

// Resting returns copies of the resting orders of side in priority order.
func (ob *OrderBook) Resting(side domain.Side) []*domain.Order {
	var res []*domain.Order
	for _, lvl := range ob.BestLevels(side) {
		for _, o := range lvl.Orders() {
			res = append(res, o.Clone())
		}
	}
	return res
}

// Depth aggregates up to limit levels per side; limit <= 0 means all levels.
func (ob *OrderBook) Depth(limit int, at time.Time) *domain.Depth {
	return &domain.Depth{
		Symbol:    ob.symbol,
		Bids:      aggregate(ob.buys, limit),
		Asks:      aggregate(ob.sells, limit),
		Timestamp: at,
	}
}

func aggregate(s *bookSide, limit int) []domain.DepthLevel {
	res := []domain.DepthLevel{}
	for lvl := range s.ascend() {
		if limit > 0 && len(res) >= limit {
			break
		}
		dl := domain.DepthLevel{Price: lvl.price}
		for e := lvl.orders.Front(); e != nil; e = e.Next() {
			o := e.Value.(*domain.Order)
			if o.Fulfilled() {
				continue
			}
			dl.Quantity += o.Remaining
			dl.Orders++
		}
		res = append(res, dl)
	}
	return res
}
