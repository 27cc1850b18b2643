package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/olyamironova/wallet-exchange/internal/port"
	"go.uber.org/zap"
)

// Process outcomes reported to Metrics.
const (
	ResultMatched   = "matched"
	ResultRested    = "rested"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
	ResultHalted    = "halted"
)

type Metrics interface {
	ObserveOrder(result string, duration time.Duration)
	ObserveTrades(count int)
	SetDepth(side string, levels, orders int)
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine owns the long-lived book of one instrument and applies inbound
// orders to it one at a time: match in memory, persist every mutation in one
// transaction, then publish the new depth. A failed persist marks the book
// stale; it is rebuilt from the last committed snapshot before the next order.
type Engine struct {
	repo    port.Repository
	cache   port.Cache
	symbol  string
	logger  *zap.Logger
	metrics Metrics
	now     func() time.Time

	mu     sync.Mutex
	book   *OrderBook
	stale  bool
	halted error

	depth   atomic.Pointer[domain.Depth]
	wallets atomic.Pointer[[]*domain.Wallet]
	ready   atomic.Bool
}

type Result struct {
	Order     *domain.Order
	Trades    []*domain.Trade
	Duplicate bool
}

func NewEngine(repo port.Repository, cache port.Cache, symbol string, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		cache:  cache,
		symbol: symbol,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load builds the book from durable state. It is called once at startup.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reloadLocked(ctx)
}

// Reload discards the in-memory book and rebuilds it from durable state.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted != nil {
		return fmt.Errorf("%w: %w", domain.ErrHalted, e.halted)
	}
	return e.reloadLocked(ctx)
}

func (e *Engine) reloadLocked(ctx context.Context) error {
	snap, err := e.repo.LoadSnapshot(ctx)
	if err != nil {
		e.stale = true
		return fmt.Errorf("load snapshot: %w", err)
	}
	book := NewOrderBook(e.symbol, NewLedger())
	if err := book.LoadSnapshot(snap); err != nil {
		e.stale = true
		return err
	}
	e.book = book
	e.stale = false
	e.ready.Store(true)
	e.publishLocked(ctx)
	e.logger.Info("order book loaded",
		zap.String("symbol", e.symbol),
		zap.Int("orders", book.Len()),
		zap.Int("wallets", book.Ledger().Len()),
	)
	return nil
}

// Process applies o to the book. Redelivered orders are recognised by id and
// acknowledged without being applied twice.
func (e *Engine) Process(ctx context.Context, o *domain.Order) (*Result, error) {
	start := time.Now()
	res, outcome, err := e.process(ctx, o)
	if e.metrics != nil {
		e.metrics.ObserveOrder(outcome, time.Since(start))
		if res != nil && len(res.Trades) > 0 {
			e.metrics.ObserveTrades(len(res.Trades))
		}
	}
	return res, err
}

func (e *Engine) process(ctx context.Context, o *domain.Order) (*Result, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted != nil {
		return nil, ResultHalted, fmt.Errorf("%w: %w", domain.ErrHalted, e.halted)
	}
	if o == nil {
		return nil, ResultRejected, fmt.Errorf("%w: nil order", domain.ErrInvalidOrder)
	}
	if err := o.Validate(); err != nil {
		return nil, ResultRejected, err
	}
	if e.book == nil || e.stale {
		if err := e.reloadLocked(ctx); err != nil {
			return nil, ResultFailed, err
		}
	}

	seen, err := e.seenLocked(ctx, o.ID)
	if err != nil {
		return nil, ResultFailed, err
	}
	if seen {
		e.logger.Info("duplicate order skipped", zap.String("order_id", o.ID))
		return &Result{Order: o, Duplicate: true}, ResultDuplicate, nil
	}
	if err := e.ensureWalletLocked(ctx, o.WalletCode); err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			return nil, ResultRejected, err
		}
		return nil, ResultFailed, err
	}

	match, err := e.book.Match(o, e.now())
	if err != nil {
		return nil, ResultRejected, err
	}
	if err := match.Verify(); err != nil {
		e.halted = err
		e.ready.Store(false)
		e.logger.Error("order book halted", zap.String("order_id", o.ID), zap.Error(err))
		return nil, ResultHalted, fmt.Errorf("%w: %w", domain.ErrHalted, err)
	}
	if err := e.persist(ctx, match); err != nil {
		e.stale = true
		e.logger.Warn("persist failed, book will be reloaded", zap.String("order_id", o.ID), zap.Error(err))
		return nil, ResultFailed, fmt.Errorf("persist order %s: %w", o.ID, err)
	}
	e.publishLocked(ctx)

	e.logger.Info("order processed",
		zap.String("order_id", o.ID),
		zap.String("wallet", o.WalletCode),
		zap.String("side", string(o.Side)),
		zap.Int("trades", len(match.Trades)),
		zap.Int64("remaining", o.Remaining),
	)
	for _, w := range match.Wallets {
		e.logger.Debug("wallet updated",
			zap.String("wallet", w.Code),
			zap.String("amount", w.Amount.String()),
			zap.Int64("quantity", w.Quantity),
		)
	}

	outcome := ResultRested
	if len(match.Trades) > 0 {
		outcome = ResultMatched
	}
	return &Result{Order: o.Clone(), Trades: match.Trades}, outcome, nil
}

func (e *Engine) seenLocked(ctx context.Context, orderID string) (bool, error) {
	if _, ok := e.book.Lookup(orderID); ok {
		return true, nil
	}
	_, err := e.repo.GetOrder(ctx, orderID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("lookup order %s: %w", orderID, err)
	}
}

// ensureWalletLocked registers wallets provisioned after the book was loaded.
func (e *Engine) ensureWalletLocked(ctx context.Context, code string) error {
	if _, ok := e.book.Ledger().Wallet(code); ok {
		return nil
	}
	w, err := e.repo.GetWallet(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrWalletNotFound, code)
	}
	if err != nil {
		return fmt.Errorf("lookup wallet %s: %w", code, err)
	}
	e.book.Ledger().Register(w)
	return nil
}

func (e *Engine) persist(ctx context.Context, m *MatchResult) error {
	return withTx(ctx, e.repo, func(tx port.Tx) error {
		aggressor := m.Orders[0]
		if err := tx.UpsertOrder(ctx, aggressor); err != nil {
			return fmt.Errorf("upsert order %s: %w", aggressor.ID, err)
		}
		for _, t := range m.Trades {
			if err := tx.InsertTrade(ctx, t); err != nil {
				return fmt.Errorf("insert trade %s: %w", t.ID, err)
			}
		}
		for _, o := range m.Orders[1:] {
			if err := tx.UpdateOrderRemaining(ctx, o.ID, o.Remaining); err != nil {
				return fmt.Errorf("update order %s: %w", o.ID, err)
			}
		}
		for _, w := range m.Wallets {
			if err := tx.UpdateWallet(ctx, w); err != nil {
				return fmt.Errorf("update wallet %s: %w", w.Code, err)
			}
		}
		return nil
	})
}

func (e *Engine) publishLocked(ctx context.Context) {
	d := e.book.Depth(0, e.now())
	e.depth.Store(d)
	wallets := e.book.Ledger().Wallets()
	e.wallets.Store(&wallets)
	if e.metrics != nil {
		e.metrics.SetDepth("bid", len(d.Bids), countOrders(d.Bids))
		e.metrics.SetDepth("ask", len(d.Asks), countOrders(d.Asks))
	}
	updateCache(ctx, e.cache, e.logger, d)
}

func countOrders(levels []domain.DepthLevel) int {
	n := 0
	for _, l := range levels {
		n += l.Orders
	}
	return n
}

// Depth returns a copy of the depth published after the last processed order.
// It never waits for matching.
func (e *Engine) Depth(limit int) *domain.Depth {
	d := e.depth.Load().DeepCopy()
	if d == nil {
		return nil
	}
	if limit > 0 {
		if len(d.Bids) > limit {
			d.Bids = d.Bids[:limit]
		}
		if len(d.Asks) > limit {
			d.Asks = d.Asks[:limit]
		}
	}
	return d
}

// Ready reports whether the book is loaded and accepting orders.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

func (e *Engine) Symbol() string {
	return e.symbol
}

// Wallets returns copies of the ledger's wallets as of the last processed order.
func (e *Engine) Wallets() []*domain.Wallet {
	p := e.wallets.Load()
	if p == nil {
		return nil
	}
	res := make([]*domain.Wallet, len(*p))
	for i, w := range *p {
		res[i] = w.Clone()
	}
	return res
}
