package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/olyamironova/wallet-exchange/internal/api/dto"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"go.uber.org/zap"
)

// BookView is the worker's in-memory book as seen by the admin API.
type BookView interface {
	Depth(limit int) *domain.Depth
	Wallets() []*domain.Wallet
	Reload(ctx context.Context) error
}

// AdminServer exposes the live book of a worker. Reads are copies and never
// wait for matching.
type AdminServer struct {
	book   BookView
	limits Limits
	logger *zap.Logger
}

func NewAdminServer(book BookView, limits Limits, logger *zap.Logger) *AdminServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminServer{book: book, limits: limits, logger: logger}
}

func (s *AdminServer) Register(r gin.IRouter) {
	r.GET("/orderbook", s.getOrderbook)
	r.GET("/wallets", s.listWallets)
	r.POST("/orderbook/reload", s.reload)
}

func (s *AdminServer) getOrderbook(c *gin.Context) {
	d := s.book.Depth(0)
	if d == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "order book not loaded"})
		return
	}
	writeDepth(c, d, s.limits)
}

func (s *AdminServer) listWallets(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ListWalletsResponse{Wallets: dto.FromWallets(s.book.Wallets())})
}

func (s *AdminServer) reload(c *gin.Context) {
	if err := s.book.Reload(c.Request.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrHalted) {
			status = http.StatusConflict
		}
		s.logger.Error("order book reload failed", zap.Error(err))
		c.JSON(status, dto.ErrorResponse{Error: err.Error()})
		return
	}
	d := s.book.Depth(0)
	orders := 0
	for _, levels := range [][]domain.DepthLevel{d.Bids, d.Asks} {
		for _, l := range levels {
			orders += l.Orders
		}
	}
	s.logger.Info("order book reloaded on request", zap.Int("orders", orders))
	c.JSON(http.StatusOK, dto.ReloadResponse{Ok: true, Orders: orders})
}
