package core

import (
	"context"
	"slices"

	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/olyamironova/wallet-exchange/internal/port"
	"go.uber.org/zap"
)

// updateCache publishes depth for reporting processes. The cache is advisory,
// so failures are logged and dropped.
func updateCache(ctx context.Context, cache port.Cache, logger *zap.Logger, d *domain.Depth) {
	if cache == nil || d == nil {
		return
	}
	if err := cache.SetOrderbook(ctx, d.Symbol, d.DeepCopy()); err != nil {
		logger.Warn("orderbook cache update failed", zap.String("symbol", d.Symbol), zap.Error(err))
	}
}

// priorityOrder returns orders sorted best price first for side, then by
// creation time. The sort is stable so equal timestamps keep their input order.
func priorityOrder(side domain.Side, orders []*domain.Order) []*domain.Order {
	sorted := make([]*domain.Order, 0, len(orders))
	for _, o := range orders {
		if o != nil {
			sorted = append(sorted, o)
		}
	}
	slices.SortStableFunc(sorted, func(a, b *domain.Order) int {
		if c := a.Price.Cmp(b.Price); c != 0 {
			if side == domain.Buy {
				return -c
			}
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return sorted
}
