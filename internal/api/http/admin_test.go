package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/olyamironova/wallet-exchange/internal/adapter/in_memory"
	"github.com/olyamironova/wallet-exchange/internal/api/dto"
	"github.com/olyamironova/wallet-exchange/internal/core"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	repo := in_memory.NewMemoryRepo()
	repo.PutWallet(&domain.Wallet{Code: "W1", Amount: decimal.NewFromInt(100)})
	e := core.NewEngine(repo, nil, "TEST")

	r := gin.New()
	NewAdminServer(e, Limits{Default: 10, Max: 10}, nil).Register(r)
	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusServiceUnavailable, get("/orderbook").Code, "not loaded yet")

	require.NoError(t, e.Load(ctx))
	for _, p := range []int64{9, 8} {
		_, err := e.Process(ctx, &domain.Order{ID: uuid.NewString(), WalletCode: "W1", Side: domain.Buy,
			Price: decimal.NewFromInt(p), Quantity: 1, Remaining: 1, CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
	}

	w := get("/orderbook?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	book := decode[dto.GetOrderbookResponse](t, w)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "9", book.Bids[0].Price.String())

	wallets := decode[dto.ListWalletsResponse](t, get("/wallets"))
	require.Len(t, wallets.Wallets, 1)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orderbook/reload", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[dto.ReloadResponse](t, w).Orders)
}
