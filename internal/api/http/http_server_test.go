package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/olyamironova/wallet-exchange/internal/adapter/in_memory"
	"github.com/olyamironova/wallet-exchange/internal/api/dto"
	"github.com/olyamironova/wallet-exchange/internal/core"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/olyamironova/wallet-exchange/internal/health"
	"github.com/olyamironova/wallet-exchange/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	correlationID string
	order         *domain.Order
}

type stubPublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *stubPublisher) PublishOrder(_ context.Context, correlationID string, o *domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{correlationID: correlationID, order: o.Clone()})
	return nil
}

type fixture struct {
	router    *gin.Engine
	repo      *in_memory.MemoryRepo
	cache     *in_memory.Cache
	publisher *stubPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{
		repo:      in_memory.NewMemoryRepo(),
		cache:     in_memory.NewCache(),
		publisher: &stubPublisher{},
	}
	f.repo.PutWallet(&domain.Wallet{Code: "W1", Amount: decimal.NewFromInt(1000)})
	f.repo.PutWallet(&domain.Wallet{Code: "W2", Quantity: 10})

	ready := health.NewManager(true)
	f.router = NewRouter(zap.NewNop(), prometheus.NewRegistry(), "/metrics", ready)
	NewHTTPServer(f.repo, f.publisher, f.cache, "TEST", Limits{Default: 2, Max: 3}, zap.NewNop()).Register(f.router)
	return f
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSubmitOrderAccepted(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/orders/bids", `{"walletCode":"W1","price":"10.5","quantity":3}`,
		middleware.CorrelationIDHeader, "corr-42")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	resp := decode[dto.SubmitOrderResponse](t, w)
	assert.Equal(t, domain.Buy, resp.Order.Side)
	assert.Equal(t, int64(3), resp.Order.Remaining)
	assert.Equal(t, dto.StatusActive, resp.Order.Status)
	_, err := uuid.Parse(resp.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "/orders/"+resp.Order.ID, w.Header().Get("Location"))

	require.Len(t, f.publisher.sent, 1)
	sent := f.publisher.sent[0]
	assert.Equal(t, "corr-42", sent.correlationID)
	assert.Equal(t, resp.Order.ID, sent.order.ID)
	assert.True(t, sent.order.Price.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, int64(3), sent.order.Remaining)

	w = f.do(http.MethodPost, "/orders/asks", `{"walletCode":"W2","price":"11","quantity":1}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, domain.Sell, f.publisher.sent[1].order.Side)
}

func TestSubmitOrderRejected(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"unknown wallet":   `{"walletCode":"NOPE","price":"10","quantity":1}`,
		"zero price":       `{"walletCode":"W1","price":"0","quantity":1}`,
		"negative price":   `{"walletCode":"W1","price":"-2","quantity":1}`,
		"missing quantity": `{"walletCode":"W1","price":"10"}`,
		"zero quantity":    `{"walletCode":"W1","price":"10","quantity":0}`,
		"fractional qty":   `{"walletCode":"W1","price":"10","quantity":1.5}`,
		"missing wallet":   `{"price":"10","quantity":1}`,
		"long wallet":      `{"walletCode":"` + strings.Repeat("x", 51) + `","price":"10","quantity":1}`,
		"fine price":       `{"walletCode":"W1","price":"0.333333333","quantity":1}`,
		"malformed":        `{"walletCode":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/orders/bids", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode[dto.ErrorResponse](t, w).Error)
		})
	}
	assert.Empty(t, f.publisher.sent, "rejected orders are never enqueued")
}

func TestSubmitOrderPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	w := f.do(http.MethodPost, "/orders/bids", `{"walletCode":"W1","price":"10","quantity":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListOrdersAppliesLimit(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []string{"11", "10", "12", "10"} {
		f.repo.PutOrder(&domain.Order{
			ID: uuid.NewString(), WalletCode: "W2", Side: domain.Sell,
			Price: decimal.RequireFromString(p), Quantity: 1, Remaining: 1,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	resp := decode[dto.ListOrdersResponse](t, f.do(http.MethodGet, "/orders/asks", ""))
	require.Len(t, resp.Orders, 2)
	assert.Equal(t, "10", resp.Orders[0].Price.String())
	assert.Equal(t, "10", resp.Orders[1].Price.String())
	assert.True(t, resp.Orders[0].CreatedAt.Before(resp.Orders[1].CreatedAt))

	resp = decode[dto.ListOrdersResponse](t, f.do(http.MethodGet, "/orders/asks?limit=100", ""))
	assert.Len(t, resp.Orders, 3, "capped at max")

	resp = decode[dto.ListOrdersResponse](t, f.do(http.MethodGet, "/orders/bids", ""))
	assert.Empty(t, resp.Orders)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/orders/asks?limit=-1", "").Code)
}

func TestGetOrderAndTrades(t *testing.T) {
	f := newFixture(t)
	e := core.NewEngine(f.repo, f.cache, "TEST")
	ctx := context.Background()
	require.NoError(t, e.Load(ctx))

	sell := &domain.Order{ID: uuid.NewString(), WalletCode: "W2", Side: domain.Sell,
		Price: decimal.NewFromInt(10), Quantity: 5, Remaining: 5, CreatedAt: time.Now().UTC()}
	buy := &domain.Order{ID: uuid.NewString(), WalletCode: "W1", Side: domain.Buy,
		Price: decimal.NewFromInt(10), Quantity: 2, Remaining: 2, CreatedAt: time.Now().UTC()}
	_, err := e.Process(ctx, sell)
	require.NoError(t, err)
	_, err = e.Process(ctx, buy)
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/orders/"+buy.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	order := decode[dto.GetOrderResponse](t, w).Order
	assert.Equal(t, dto.StatusFulfilled, order.Status)
	assert.Equal(t, int64(2), order.Filled)

	w = f.do(http.MethodGet, "/orders/"+sell.ID+"/trades", "")
	require.Equal(t, http.StatusOK, w.Code)
	trades := decode[dto.GetTradesResponse](t, w).Trades
	require.Len(t, trades, 1)
	assert.Equal(t, buy.ID, trades[0].BuyOrderID)
	assert.Equal(t, int64(2), trades[0].Quantity)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders/"+uuid.NewString()+"/trades", "").Code)

	book := decode[dto.GetOrderbookResponse](t, f.do(http.MethodGet, "/orderbook", ""))
	require.Len(t, book.Asks, 1)
	assert.Equal(t, int64(3), book.Asks[0].Quantity)
	assert.Empty(t, book.Bids)

	wallets := decode[dto.ListWalletsResponse](t, f.do(http.MethodGet, "/wallets", ""))
	require.Len(t, wallets.Wallets, 2)
	assert.Equal(t, "W1", wallets.Wallets[0].Code)
	assert.Equal(t, int64(2), wallets.Wallets[0].Quantity)
	assert.Equal(t, "980", wallets.Wallets[0].Amount.String())
}

func TestOrderbookNotPublished(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orderbook", "").Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/readyz", "").Code)
	w := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
