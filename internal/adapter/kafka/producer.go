package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/olyamironova/wallet-exchange/internal/port"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type ProducerMetrics struct {
	PublishTotal   *prometheus.CounterVec
	PublishLatency prometheus.Histogram
}

func NewProducerMetrics(registry prometheus.Registerer) *ProducerMetrics {
	m := &ProducerMetrics{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_publish_total",
				Help: "Total Kafka publish attempts.",
			},
			[]string{"topic", "status"},
		),
		PublishLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kafka_publish_latency_seconds",
				Help:    "Kafka publish latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	registry.MustRegister(m.PublishTotal, m.PublishLatency)
	return m
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error)
	Close() error
}

type SyncProducer struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
	metrics  *ProducerMetrics
}

func NewSyncProducer(brokers []string, logger *zap.Logger, metrics *ProducerMetrics) (*SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewSyncProducerFrom(producer, logger, metrics), nil
}

// NewSyncProducerFrom wraps an existing sarama producer, e.g. a mock.
func NewSyncProducerFrom(producer sarama.SyncProducer, logger *zap.Logger, metrics *ProducerMetrics) *SyncProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncProducer{
		producer: producer,
		logger:   logger,
		metrics:  metrics,
	}
}

func (p *SyncProducer) PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error) {
	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	default:
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal kafka payload: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.PublishTotal.WithLabelValues(topic, status).Inc()
		p.metrics.PublishLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		p.logger.Error("kafka publish failed", zap.String("topic", topic), zap.Error(err))
		return 0, 0, fmt.Errorf("kafka publish failed: %w", err)
	}
	return partition, offset, nil
}

func (p *SyncProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

var _ port.OrderPublisher = (*OrderPublisher)(nil)

// OrderPublisher emits accepted orders keyed by instrument, so every order of
// one book lands on one partition in submission order.
type OrderPublisher struct {
	pub    Publisher
	topic  string
	symbol string
	logger *zap.Logger
}

func NewOrderPublisher(pub Publisher, topic, symbol string, logger *zap.Logger) *OrderPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderPublisher{pub: pub, topic: topic, symbol: symbol, logger: logger}
}

func (p *OrderPublisher) PublishOrder(ctx context.Context, correlationID string, o *domain.Order) error {
	evt, err := NewOrderSubmittedEvent(correlationID, o)
	if err != nil {
		return err
	}
	partition, offset, err := p.pub.PublishJSON(ctx, p.topic, p.symbol, evt)
	if err != nil {
		return err
	}
	p.logger.Info("order published",
		zap.String("order_id", o.ID),
		zap.String("correlation_id", correlationID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}
