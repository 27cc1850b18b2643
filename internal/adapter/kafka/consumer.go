package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type HandlerFunc func(context.Context, *sarama.ConsumerMessage) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}

type ConsumerMetrics struct {
	Processed *prometheus.CounterVec
	Retries   prometheus.Counter
}

func NewConsumerMetrics(registry prometheus.Registerer) *ConsumerMetrics {
	m := &ConsumerMetrics{
		Processed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_processed_total",
				Help: "Consumed Kafka messages by outcome.",
			},
			[]string{"topic", "outcome"},
		),
		Retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kafka_message_retries_total",
				Help: "Handler retries after transient failures.",
			},
		),
	}
	registry.MustRegister(m.Processed, m.Retries)
	return m
}

type ConsumerOptions struct {
	DLQTopic       string
	DLQPublisher   Publisher
	MaxAttempts    int
	InitialBackoff time.Duration
	Metrics        *ConsumerMetrics
}

type Consumer struct {
	group   sarama.ConsumerGroup
	logger  *zap.Logger
	handler *consumerGroupHandler
}

func NewConsumer(brokers []string, groupID string, logger *zap.Logger, opts ConsumerOptions) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Session.Timeout = 30 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return NewConsumerFromGroup(group, logger, opts), nil
}

func NewConsumerFromGroup(group sarama.ConsumerGroup, logger *zap.Logger, opts ConsumerOptions) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		group:   group,
		logger:  logger,
		handler: newConsumerGroupHandler(logger, opts),
	}
}

// Consume runs handler over topics until ctx is cancelled or a handler
// returns a Fatal error. Transient failures end the current session without
// committing the failed message, so it is redelivered when consumption resumes.
func (c *Consumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler required")
	}
	c.handler.handler = handler

	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("kafka consumer group error", zap.Error(err))
		}
	}()

	for {
		err := c.group.Consume(ctx, topics, c.handler)
		if fatal := c.handler.fatalErr(); fatal != nil {
			return fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return err
		}
		if err != nil {
			c.logger.Error("kafka consume error", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (c *Consumer) Close() error {
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler        MessageHandler
	logger         *zap.Logger
	dlqPublisher   Publisher
	dlqTopic       string
	maxAttempts    int
	initialBackoff time.Duration
	metrics        *ConsumerMetrics

	mu    sync.Mutex
	fatal error
}

func newConsumerGroupHandler(logger *zap.Logger, opts ConsumerOptions) *consumerGroupHandler {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &consumerGroupHandler{
		logger:         logger,
		dlqPublisher:   opts.DLQPublisher,
		dlqTopic:       opts.DLQTopic,
		maxAttempts:    attempts,
		initialBackoff: opts.InitialBackoff,
		metrics:        opts.Metrics,
	}
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return err
			}
			session.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

// process returns nil when msg may be acknowledged: it was handled or it was
// dead-lettered.
func (h *consumerGroupHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	attempts := 0
	op := func() error {
		attempts++
		err := h.handler.HandleMessage(ctx, msg)
		if err == nil {
			return nil
		}
		var dlqErr *DLQError
		if errors.As(err, &dlqErr) || IsFatal(err) {
			return backoff.Permanent(err)
		}
		if attempts < h.maxAttempts {
			h.logger.Warn("kafka handler failed, retrying",
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			if h.metrics != nil {
				h.metrics.Retries.Inc()
			}
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(h.backoff(), ctx))
	switch {
	case err == nil:
		h.observe(msg.Topic, "ok")
		return nil
	case IsFatal(err):
		h.observe(msg.Topic, "fatal")
		h.setFatal(err)
		h.logger.Error("kafka handler fatal error, stopping consumer",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return err
	}

	var dlqErr *DLQError
	if errors.As(err, &dlqErr) {
		return h.deadLetter(ctx, msg, dlqErr, attempts)
	}
	h.observe(msg.Topic, "retry_exhausted")
	h.logger.Error("kafka handler failed, message left unacknowledged",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return err
}

func (h *consumerGroupHandler) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if h.initialBackoff > 0 {
		b.InitialInterval = h.initialBackoff
	}
	return backoff.WithMaxRetries(b, uint64(h.maxAttempts-1))
}

func (h *consumerGroupHandler) deadLetter(ctx context.Context, msg *sarama.ConsumerMessage, dlqErr *DLQError, attempts int) error {
	if h.dlqPublisher == nil || h.dlqTopic == "" {
		h.observe(msg.Topic, "dropped")
		h.logger.Error("kafka message dropped, no dead-letter topic",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(dlqErr),
		)
		return nil
	}
	payload := BuildDLQPayload(msg, dlqErr, attempts)
	if _, _, err := h.dlqPublisher.PublishJSON(ctx, h.dlqTopic, string(msg.Key), payload); err != nil {
		h.observe(msg.Topic, "dlq_failed")
		return fmt.Errorf("publish dead letter: %w", err)
	}
	h.observe(msg.Topic, "dlq")
	h.logger.Warn("kafka message dead-lettered",
		zap.String("topic", msg.Topic),
		zap.Int64("offset", msg.Offset),
		zap.String("reason", dlqErr.Reason),
		zap.Error(dlqErr.Err),
	)
	return nil
}

func (h *consumerGroupHandler) observe(topic, outcome string) {
	if h.metrics != nil {
		h.metrics.Processed.WithLabelValues(topic, outcome).Inc()
	}
}

func (h *consumerGroupHandler) setFatal(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fatal == nil {
		h.fatal = err
	}
}

func (h *consumerGroupHandler) fatalErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fatal
}
