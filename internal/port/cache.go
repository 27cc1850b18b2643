package port

import (
	"context"

	"github.com/olyamironova/wallet-exchange/internal/domain"
)

// Cache shares the aggregated book depth between the worker that owns the
// book and the processes that report it.
type Cache interface {
	SetOrderbook(ctx context.Context, symbol string, d *domain.Depth) error
	GetOrderbook(ctx context.Context, symbol string) (*domain.Depth, error)
}
