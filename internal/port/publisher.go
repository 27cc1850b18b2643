package port

import (
	"context"

	"github.com/olyamironova/wallet-exchange/internal/domain"
)

// OrderPublisher hands an accepted order to the transport that feeds the worker.
type OrderPublisher interface {
	PublishOrder(ctx context.Context, correlationID string, o *domain.Order) error
}
