package in_memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/olyamironova/wallet-exchange/internal/port"
)

var _ port.Repository = (*MemoryRepo)(nil)

// MemoryRepo is a process-local Repository. Transactions buffer their writes
// and apply them atomically on Commit.
type MemoryRepo struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	wallets map[string]*domain.Wallet
	trades  map[string]*domain.Trade
	// trade ids in insertion order
	tradeLog []string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		orders:  make(map[string]*domain.Order),
		wallets: make(map[string]*domain.Wallet),
		trades:  make(map[string]*domain.Trade),
	}
}

// PutWallet provisions or replaces a wallet.
func (r *MemoryRepo) PutWallet(w *domain.Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.Code] = w.Clone()
}

// PutOrder stores an order as if it had been processed earlier.
func (r *MemoryRepo) PutOrder(o *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o.Clone()
}

// Trades returns every stored trade in insertion order.
func (r *MemoryRepo) Trades() []*domain.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*domain.Trade, 0, len(r.tradeLog))
	for _, id := range r.tradeLog {
		t := *r.trades[id]
		res = append(res, &t)
	}
	return res
}

func (r *MemoryRepo) GetWallet(ctx context.Context, code string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[code]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", code, domain.ErrNotFound)
	}
	return w.Clone(), nil
}

func (r *MemoryRepo) ListWallets(ctx context.Context) ([]*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*domain.Wallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		res = append(res, w.Clone())
	}
	slices.SortFunc(res, func(a, b *domain.Wallet) int {
		switch {
		case a.Code < b.Code:
			return -1
		case a.Code > b.Code:
			return 1
		}
		return 0
	})
	return res, nil
}

func (r *MemoryRepo) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return o.Clone(), nil
}

func (r *MemoryRepo) ListActiveOrders(ctx context.Context, side domain.Side, limit int) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(side, limit), nil
}

func (r *MemoryRepo) activeLocked(side domain.Side, limit int) []*domain.Order {
	var res []*domain.Order
	for _, o := range r.orders {
		if o.Side == side && !o.Fulfilled() {
			res = append(res, o.Clone())
		}
	}
	slices.SortFunc(res, func(a, b *domain.Order) int {
		if c := a.Price.Cmp(b.Price); c != 0 {
			if side == domain.Buy {
				return -c
			}
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

func (r *MemoryRepo) ListTradesForOrder(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.Trade
	for _, id := range r.tradeLog {
		t := r.trades[id]
		if t.BuyOrderID == orderID || t.SellOrderID == orderID {
			c := *t
			res = append(res, &c)
		}
	}
	return res, nil
}

func (r *MemoryRepo) LoadSnapshot(ctx context.Context) (*domain.OrderBookSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := &domain.OrderBookSnapshot{
		BuyOrders:  r.activeLocked(domain.Buy, 0),
		SellOrders: r.activeLocked(domain.Sell, 0),
	}
	for _, w := range r.wallets {
		snap.Wallets = append(snap.Wallets, w.Clone())
	}
	return snap, nil
}

func (r *MemoryRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	return &memTx{repo: r}, nil
}

var errTxDone = errors.New("transaction already finished")

type memTx struct {
	repo *MemoryRepo
	ops  []func()
	done bool
}

func (t *memTx) stage(op func()) error {
	if t.done {
		return errTxDone
	}
	t.ops = append(t.ops, op)
	return nil
}

func (t *memTx) UpsertOrder(ctx context.Context, o *domain.Order) error {
	c := o.Clone()
	return t.stage(func() {
		if existing, ok := t.repo.orders[c.ID]; ok {
			existing.Remaining = c.Remaining
			existing.CreatedAt = c.CreatedAt
			return
		}
		t.repo.orders[c.ID] = c
	})
}

func (t *memTx) UpdateOrderRemaining(ctx context.Context, orderID string, remaining int64) error {
	return t.stage(func() {
		if o, ok := t.repo.orders[orderID]; ok {
			o.Remaining = remaining
		}
	})
}

func (t *memTx) UpdateWallet(ctx context.Context, w *domain.Wallet) error {
	c := w.Clone()
	return t.stage(func() {
		if existing, ok := t.repo.wallets[c.Code]; ok {
			existing.Amount = c.Amount
			existing.Quantity = c.Quantity
			existing.UpdatedAt = c.UpdatedAt
		}
	})
}

func (t *memTx) InsertTrade(ctx context.Context, tr *domain.Trade) error {
	c := *tr
	return t.stage(func() {
		if _, ok := t.repo.trades[c.ID]; ok {
			return
		}
		t.repo.trades[c.ID] = &c
		t.repo.tradeLog = append(t.repo.tradeLog, c.ID)
	})
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, op := range t.ops {
		op()
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.done = true
	t.ops = nil
	return nil
}
