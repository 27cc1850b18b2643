package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/olyamironova/wallet-exchange/internal/adapter/kafka"
	"github.com/olyamironova/wallet-exchange/internal/core"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"go.uber.org/zap"
)

type OrderProcessor interface {
	Process(ctx context.Context, o *domain.Order) (*core.Result, error)
}

// OrderHandler feeds orders.submitted events to the matching engine and
// classifies failures for the consumer: malformed or unprocessable orders are
// dead-lettered, a halted engine stops consumption, anything else is retried.
type OrderHandler struct {
	engine OrderProcessor
	logger *zap.Logger
}

var _ kafka.MessageHandler = (*OrderHandler)(nil)

func NewOrderHandler(engine OrderProcessor, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{engine: engine, logger: logger}
}

func (h *OrderHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var evt kafka.OrderSubmittedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return kafka.DLQ(err, "decode")
	}
	o, err := evt.ToOrder()
	if err != nil {
		return kafka.DLQ(err, "invalid_order")
	}

	res, err := h.engine.Process(ctx, o)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrHalted):
		return kafka.Fatal(err)
	case errors.Is(err, domain.ErrWalletNotFound):
		return kafka.DLQ(err, "unknown_wallet")
	case errors.Is(err, domain.ErrInvalidOrder):
		return kafka.DLQ(err, "invalid_order")
	default:
		return err
	}

	if !res.Duplicate {
		h.logger.Debug("order event applied",
			zap.String("event_id", evt.EventID),
			zap.String("correlation_id", evt.CorrelationID),
			zap.String("order_id", o.ID),
			zap.Int("trades", len(res.Trades)),
		)
	}
	return nil
}
