package in_memory

import (
	"context"
	"testing"
	"time"

	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(id string, side domain.Side, price, qty, remaining int64, at time.Time) *domain.Order {
	return &domain.Order{
		ID:         id,
		WalletCode: "W",
		Side:       side,
		Price:      decimal.NewFromInt(price),
		Quantity:   qty,
		Remaining:  remaining,
		CreatedAt:  at,
	}
}

func TestTxAppliesOnlyOnCommit(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	repo.PutWallet(&domain.Wallet{Code: "W", Amount: decimal.NewFromInt(10)})

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertOrder(ctx, order("o1", domain.Buy, 5, 2, 2, time.Now())))
	require.NoError(t, tx.UpdateWallet(ctx, &domain.Wallet{Code: "W", Amount: decimal.NewFromInt(3)}))

	_, err = repo.GetOrder(ctx, "o1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, tx.Commit(ctx))
	_, err = repo.GetOrder(ctx, "o1")
	require.NoError(t, err)
	w, err := repo.GetWallet(ctx, "W")
	require.NoError(t, err)
	assert.True(t, w.Amount.Equal(decimal.NewFromInt(3)))

	assert.Error(t, tx.UpsertOrder(ctx, order("o2", domain.Buy, 5, 1, 1, time.Now())))
}

func TestTxRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertTrade(ctx, &domain.Trade{ID: "t1", Quantity: 1}))
	require.NoError(t, tx.Rollback(ctx))
	assert.Error(t, tx.Commit(ctx))
	assert.Empty(t, repo.Trades())
}

func TestInsertTradeIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	for range 2 {
		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.InsertTrade(ctx, &domain.Trade{ID: "t1", Quantity: 1, BuyOrderID: "b", SellOrderID: "s"}))
		require.NoError(t, tx.Commit(ctx))
	}
	assert.Len(t, repo.Trades(), 1)

	trades, err := repo.ListTradesForOrder(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestListActiveOrdersPriceTimePriority(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.PutOrder(order("a", domain.Sell, 11, 1, 1, t0))
	repo.PutOrder(order("b", domain.Sell, 10, 1, 1, t0.Add(time.Second)))
	repo.PutOrder(order("c", domain.Sell, 10, 1, 1, t0))
	repo.PutOrder(order("d", domain.Sell, 9, 1, 0, t0))
	repo.PutOrder(order("e", domain.Buy, 12, 1, 1, t0))

	asks, err := repo.ListActiveOrders(ctx, domain.Sell, 0)
	require.NoError(t, err)
	ids := make([]string, len(asks))
	for i, o := range asks {
		ids[i] = o.ID
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	limited, err := repo.ListActiveOrders(ctx, domain.Sell, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	snap, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.BuyOrders, 1)
	assert.Len(t, snap.SellOrders, 3)
}
