package port

import (
	"context"

	"github.com/olyamironova/wallet-exchange/internal/domain"
)

// Repository is the durable store of orders, wallets and trades.
// Lookups of missing entities return an error wrapping domain.ErrNotFound.
type Repository interface {
	GetWallet(ctx context.Context, code string) (*domain.Wallet, error)
	ListWallets(ctx context.Context) ([]*domain.Wallet, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	// ListActiveOrders returns non-fulfilled orders of side, best price first
	// and oldest first within a price. limit <= 0 means no limit.
	ListActiveOrders(ctx context.Context, side domain.Side, limit int) ([]*domain.Order, error)
	ListTradesForOrder(ctx context.Context, orderID string) ([]*domain.Trade, error)
	LoadSnapshot(ctx context.Context) (*domain.OrderBookSnapshot, error)
	BeginTx(ctx context.Context) (Tx, error)
}

type Tx interface {
	UpsertOrder(ctx context.Context, o *domain.Order) error
	UpdateOrderRemaining(ctx context.Context, orderID string, remaining int64) error
	UpdateWallet(ctx context.Context, w *domain.Wallet) error
	InsertTrade(ctx context.Context, t *domain.Trade) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
