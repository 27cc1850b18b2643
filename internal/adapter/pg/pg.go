package pg

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/olyamironova/wallet-exchange/internal/port"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

var _ port.Repository = (*PgRepo)(nil)

type PgRepo struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PgRepo {
	return &PgRepo{pool: pool}
}

// NewPool opens a pool; call Close on the returned pool when finished.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return pool, nil
}

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}

func (p *PgRepo) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const orderColumns = `id::text, wallet_code, side, price::text, quantity, remaining_quantity, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o     domain.Order
		side  string
		price string
	)
	if err := row.Scan(&o.ID, &o.WalletCode, &side, &price, &o.Quantity, &o.Remaining, &o.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("order %s: parse price %q: %w", o.ID, price, err)
	}
	o.Side = domain.Side(side)
	o.Price = d
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}

func scanWallet(row rowScanner) (*domain.Wallet, error) {
	var (
		w      domain.Wallet
		amount string
	)
	if err := row.Scan(&w.Code, &amount, &w.Quantity, &w.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: parse amount %q: %w", w.Code, amount, err)
	}
	w.Amount = d
	w.UpdatedAt = w.UpdatedAt.UTC()
	return &w, nil
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var (
		t     domain.Trade
		price string
	)
	if err := row.Scan(&t.ID, &price, &t.Quantity, &t.BuyOrderID, &t.SellOrderID, &t.Timestamp); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("trade %s: parse price %q: %w", t.ID, price, err)
	}
	t.Price = d
	t.Timestamp = t.Timestamp.UTC()
	return &t, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (p *PgRepo) GetWallet(ctx context.Context, code string) (*domain.Wallet, error) {
	w, err := scanWallet(p.pool.QueryRow(ctx, `
SELECT wallet_code, amount::text, quantity, updated_at
FROM wallets
WHERE wallet_code = $1
`, code))
	if err != nil {
		return nil, notFound(err, "wallet "+code)
	}
	return w, nil
}

func (p *PgRepo) ListWallets(ctx context.Context) ([]*domain.Wallet, error) {
	return p.queryWallets(ctx, p.pool)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (p *PgRepo) queryWallets(ctx context.Context, q querier) ([]*domain.Wallet, error) {
	rows, err := q.Query(ctx, `
SELECT wallet_code, amount::text, quantity, updated_at
FROM wallets
ORDER BY wallet_code
`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()
	var res []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (p *PgRepo) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := scanOrder(p.pool.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE id = $1
`, orderID))
	if err != nil {
		return nil, notFound(err, "order "+orderID)
	}
	return o, nil
}

func (p *PgRepo) ListActiveOrders(ctx context.Context, side domain.Side, limit int) ([]*domain.Order, error) {
	return p.queryActive(ctx, p.pool, side, limit)
}

func (p *PgRepo) queryActive(ctx context.Context, q querier, side domain.Side, limit int) ([]*domain.Order, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: invalid side %q", domain.ErrInvalidOrder, side)
	}
	dir := "ASC"
	if side == domain.Buy {
		dir = "DESC"
	}
	sql := `
SELECT ` + orderColumns + `
FROM orders
WHERE side = $1 AND remaining_quantity > 0
ORDER BY price ` + dir + `, created_at ASC, id ASC`
	args := []any{string(side)}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s orders: %w", side, err)
	}
	defer rows.Close()
	var res []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (p *PgRepo) ListTradesForOrder(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id::text, price::text, quantity, buy_order_id::text, sell_order_id::text, created_at
FROM trades
WHERE buy_order_id = $1 OR sell_order_id = $1
ORDER BY created_at ASC, id ASC
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list trades for %s: %w", orderID, err)
	}
	defer rows.Close()
	var res []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// LoadSnapshot reads every active order and wallet inside one read-only
// repeatable-read transaction so the book is rebuilt from a consistent view.
func (p *PgRepo) LoadSnapshot(ctx context.Context) (*domain.OrderBookSnapshot, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	snap := &domain.OrderBookSnapshot{}
	if snap.BuyOrders, err = p.queryActive(ctx, tx, domain.Buy, 0); err != nil {
		return nil, err
	}
	if snap.SellOrders, err = p.queryActive(ctx, tx, domain.Sell, 0); err != nil {
		return nil, err
	}
	if snap.Wallets, err = p.queryWallets(ctx, tx); err != nil {
		return nil, err
	}
	return snap, nil
}

func (p *PgRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) UpsertOrder(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	_, err := t.tx.Exec(ctx, `
INSERT INTO orders(id, wallet_code, side, price, quantity, remaining_quantity, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  remaining_quantity = EXCLUDED.remaining_quantity,
  created_at = EXCLUDED.created_at
`, o.ID, o.WalletCode, string(o.Side), o.Price.String(), o.Quantity, o.Remaining, o.CreatedAt)
	return err
}

func (t *pgTx) UpdateOrderRemaining(ctx context.Context, orderID string, remaining int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET remaining_quantity = $2 WHERE id = $1`, orderID, remaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) UpdateWallet(ctx context.Context, w *domain.Wallet) error {
	if w == nil {
		return errors.New("nil wallet")
	}
	updated := w.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	tag, err := t.tx.Exec(ctx, `
UPDATE wallets SET amount = $2, quantity = $3, updated_at = $4
WHERE wallet_code = $1
`, w.Code, w.Amount.String(), w.Quantity, updated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet %s: %w", w.Code, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) InsertTrade(ctx context.Context, tr *domain.Trade) error {
	if tr == nil {
		return errors.New("nil trade")
	}
	_, err := t.tx.Exec(ctx, `
INSERT INTO trades(id, price, quantity, buy_order_id, sell_order_id, created_at)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING
`, tr.ID, tr.Price.String(), tr.Quantity, tr.BuyOrderID, tr.SellOrderID, tr.Timestamp)
	return err
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
