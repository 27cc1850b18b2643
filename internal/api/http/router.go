package http

import (
	"github.com/gin-gonic/gin"
	"github.com/olyamironova/wallet-exchange/internal/health"
	"github.com/olyamironova/wallet-exchange/internal/metrics"
	"github.com/olyamironova/wallet-exchange/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NewRouter returns a gin engine with the shared middleware chain and the
// health and metrics endpoints every process serves.
func NewRouter(logger *zap.Logger, registry *prometheus.Registry, metricsPath string, ready *health.Manager) *gin.Engine {
	httpMetrics := metrics.NewHTTPMetrics(registry)

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Logger(logger, httpMetrics))
	router.Use(middleware.Recovery(logger))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	router.GET(metricsPath, gin.WrapH(metrics.Handler(registry)))
	return router
}
