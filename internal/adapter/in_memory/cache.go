package in_memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/olyamironova/wallet-exchange/internal/port"
)

type Cache struct {
	mu    sync.Mutex
	store map[string]*domain.Depth
}

var _ port.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{store: make(map[string]*domain.Depth)}
}

func (c *Cache) SetOrderbook(ctx context.Context, symbol string, d *domain.Depth) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[symbol] = d.DeepCopy()
	return nil
}

func (c *Cache) GetOrderbook(ctx context.Context, symbol string) (*domain.Depth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.store[symbol]
	if !ok {
		return nil, fmt.Errorf("orderbook %s: %w", symbol, domain.ErrNotFound)
	}
	return d.DeepCopy(), nil
}
