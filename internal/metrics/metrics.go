package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

type HTTPMetrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func NewHTTPMetrics(registry prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	registry.MustRegister(m.RequestCount, m.RequestDuration)
	return m
}

func (m *HTTPMetrics) Observe(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.RequestCount.WithLabelValues(method, path, code).Inc()
	m.RequestDuration.WithLabelValues(method, path, code).Observe(d.Seconds())
}

// EngineMetrics reports matching activity of one instrument.
type EngineMetrics struct {
	symbol          string
	OrdersProcessed *prometheus.CounterVec
	TradesExecuted  *prometheus.CounterVec
	MatchingLatency *prometheus.HistogramVec
	DepthLevels     *prometheus.GaugeVec
	DepthOrders     *prometheus.GaugeVec
}

func NewEngineMetrics(registry prometheus.Registerer, symbol string) *EngineMetrics {
	m := &EngineMetrics{
		symbol: symbol,
		OrdersProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matching_orders_processed_total",
				Help: "Orders processed by the matching engine by result.",
			},
			[]string{"symbol", "result"},
		),
		TradesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matching_trades_executed_total",
				Help: "Trades executed by the matching engine.",
			},
			[]string{"symbol"},
		),
		MatchingLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matching_latency_seconds",
				Help:    "Time to match and persist one order.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
		DepthLevels: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "matching_orderbook_levels",
				Help: "Price levels resting in the book.",
			},
			[]string{"symbol", "side"},
		),
		DepthOrders: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "matching_orderbook_orders",
				Help: "Orders resting in the book.",
			},
			[]string{"symbol", "side"},
		),
	}
	registry.MustRegister(m.OrdersProcessed, m.TradesExecuted, m.MatchingLatency, m.DepthLevels, m.DepthOrders)
	return m
}

func (m *EngineMetrics) ObserveOrder(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OrdersProcessed.WithLabelValues(m.symbol, result).Inc()
	m.MatchingLatency.WithLabelValues(m.symbol).Observe(duration.Seconds())
}

func (m *EngineMetrics) ObserveTrades(count int) {
	if m == nil {
		return
	}
	m.TradesExecuted.WithLabelValues(m.symbol).Add(float64(count))
}

func (m *EngineMetrics) SetDepth(side string, levels, orders int) {
	if m == nil {
		return
	}
	m.DepthLevels.WithLabelValues(m.symbol, side).Set(float64(levels))
	m.DepthOrders.WithLabelValues(m.symbol, side).Set(float64(orders))
}
