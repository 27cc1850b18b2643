package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/olyamironova/wallet-exchange/internal/api/dto"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/olyamironova/wallet-exchange/internal/middleware"
	"github.com/olyamironova/wallet-exchange/internal/port"
	"go.uber.org/zap"
)

type Limits struct {
	Default int
	Max     int
}

// HTTPServer accepts orders for one instrument and answers reporting queries
// from durable storage. Accepted orders are handed to the transport; matching
// happens in the worker.
type HTTPServer struct {
	repo      port.Repository
	publisher port.OrderPublisher
	cache     port.Cache
	symbol    string
	limits    Limits
	logger    *zap.Logger
	now       func() time.Time
}

func NewHTTPServer(repo port.Repository, publisher port.OrderPublisher, cache port.Cache, symbol string, limits Limits, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.Default <= 0 {
		limits.Default = 50
	}
	if limits.Max < limits.Default {
		limits.Max = limits.Default
	}
	return &HTTPServer{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		symbol:    symbol,
		limits:    limits,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *HTTPServer) Register(r gin.IRouter) {
	orders := r.Group("/orders")
	orders.POST("/bids", s.submitOrder(domain.Buy))
	orders.POST("/asks", s.submitOrder(domain.Sell))
	orders.GET("/bids", s.listOrders(domain.Buy))
	orders.GET("/asks", s.listOrders(domain.Sell))
	orders.GET("/:id", s.getOrder)
	orders.GET("/:id/trades", s.getTrades)

	r.GET("/wallets", s.listWallets)
	r.GET("/orderbook", s.getOrderbook)
}

func (s *HTTPServer) submitOrder(side domain.Side) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.SubmitOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		o := &domain.Order{
			ID:         uuid.NewString(),
			WalletCode: domain.NormalizeWalletCode(req.WalletCode),
			Side:       side,
			Price:      req.Price,
			Quantity:   req.Quantity,
			Remaining:  req.Quantity,
			CreatedAt:  s.now(),
		}
		if err := o.Validate(); err != nil {
			badRequest(c, err)
			return
		}

		ctx := c.Request.Context()
		if _, err := s.repo.GetWallet(ctx, o.WalletCode); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				badRequest(c, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, o.WalletCode))
				return
			}
			s.internalError(c, err)
			return
		}

		if err := s.publisher.PublishOrder(ctx, middleware.GetCorrelationID(c), o); err != nil {
			s.logger.Error("publish order failed", zap.String("order_id", o.ID), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "order could not be queued, retry later"})
			return
		}

		c.Header("Location", "/orders/"+o.ID)
		c.JSON(http.StatusAccepted, dto.SubmitOrderResponse{
			Order:   dto.FromOrder(o),
			Message: "order accepted",
		})
	}
}

func (s *HTTPServer) listOrders(side domain.Side) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := s.limit(c)
		if err != nil {
			badRequest(c, err)
			return
		}
		orders, err := s.repo.ListActiveOrders(c.Request.Context(), side, limit)
		if err != nil {
			s.internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.ListOrdersResponse{Orders: dto.FromOrders(orders)})
	}
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	o, ok := s.findOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.GetOrderResponse{Order: dto.FromOrder(o)})
}

func (s *HTTPServer) getTrades(c *gin.Context) {
	o, ok := s.findOrder(c)
	if !ok {
		return
	}
	trades, err := s.repo.ListTradesForOrder(c.Request.Context(), o.ID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetTradesResponse{Trades: dto.FromTrades(trades)})
}

func (s *HTTPServer) findOrder(c *gin.Context) (*domain.Order, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "order not found"})
		return nil, false
	}
	o, err := s.repo.GetOrder(c.Request.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "order not found"})
		return nil, false
	}
	if err != nil {
		s.internalError(c, err)
		return nil, false
	}
	return o, true
}

func (s *HTTPServer) listWallets(c *gin.Context) {
	wallets, err := s.repo.ListWallets(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListWalletsResponse{Wallets: dto.FromWallets(wallets)})
}

// getOrderbook serves the depth last published by the worker.
func (s *HTTPServer) getOrderbook(c *gin.Context) {
	d, err := s.cache.GetOrderbook(c.Request.Context(), s.symbol)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "order book not published yet"})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	writeDepth(c, d, s.limits)
}

func (s *HTTPServer) limit(c *gin.Context) (int, error) {
	return parseLimit(c, s.limits)
}

func parseLimit(c *gin.Context, limits Limits) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return limits.Default, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, limits.Max), nil
}

func writeDepth(c *gin.Context, d *domain.Depth, limits Limits) {
	limit, err := parseLimit(c, limits)
	if err != nil {
		badRequest(c, err)
		return
	}
	d = d.DeepCopy()
	if len(d.Bids) > limit {
		d.Bids = d.Bids[:limit]
	}
	if len(d.Asks) > limit {
		d.Asks = d.Asks[:limit]
	}
	c.JSON(http.StatusOK, dto.FromDepth(d))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
}

func (s *HTTPServer) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
}
