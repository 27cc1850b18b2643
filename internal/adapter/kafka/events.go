package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	EventTypeOrderSubmitted    = "orders.submitted"
	OrderSubmittedEventVersion = 1
)

type Envelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	EventVersion  int       `json:"event_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func NewEnvelopeWithID(eventID, eventType string, version int, correlationID string) (Envelope, error) {
	if eventID == "" {
		return Envelope{}, fmt.Errorf("event_id is required")
	}
	if eventType == "" {
		return Envelope{}, fmt.Errorf("event_type is required")
	}
	if version <= 0 {
		return Envelope{}, fmt.Errorf("event_version must be positive")
	}
	return Envelope{
		EventID:       eventID,
		EventType:     eventType,
		EventVersion:  version,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}, nil
}

func DeterministicEventID(parts ...string) string {
	joined := strings.Join(parts, "|")
	if joined == "" {
		return uuid.Nil.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(joined)).String()
}

func (e Envelope) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.EventVersion <= 0 {
		return fmt.Errorf("event_version must be positive")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// OrderSubmittedEvent is an accepted order on its way to the matching worker.
type OrderSubmittedEvent struct {
	Envelope
	OrderID    string          `json:"order_id"`
	WalletCode string          `json:"wallet_code"`
	Side       domain.Side     `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewOrderSubmittedEvent derives the event id from the order id, so a
// republished order carries the same event id.
func NewOrderSubmittedEvent(correlationID string, o *domain.Order) (*OrderSubmittedEvent, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil order", domain.ErrInvalidOrder)
	}
	env, err := NewEnvelopeWithID(
		DeterministicEventID(EventTypeOrderSubmitted, o.ID),
		EventTypeOrderSubmitted,
		OrderSubmittedEventVersion,
		correlationID,
	)
	if err != nil {
		return nil, err
	}
	return &OrderSubmittedEvent{
		Envelope:   env,
		OrderID:    o.ID,
		WalletCode: o.WalletCode,
		Side:       o.Side,
		Price:      o.Price,
		Quantity:   o.Quantity,
		CreatedAt:  o.CreatedAt,
	}, nil
}

// ToOrder validates the event and returns the order it carries with its full
// quantity remaining.
func (e *OrderSubmittedEvent) ToOrder() (*domain.Order, error) {
	if err := e.Envelope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidOrder, err)
	}
	if e.EventType != EventTypeOrderSubmitted {
		return nil, fmt.Errorf("%w: unexpected event type %q", domain.ErrInvalidOrder, e.EventType)
	}
	if e.EventVersion != OrderSubmittedEventVersion {
		return nil, fmt.Errorf("%w: unsupported event version %d", domain.ErrInvalidOrder, e.EventVersion)
	}
	if _, err := uuid.Parse(e.OrderID); err != nil {
		return nil, fmt.Errorf("%w: order_id %q: %w", domain.ErrInvalidOrder, e.OrderID, err)
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = e.Timestamp
	}
	o := &domain.Order{
		ID:         e.OrderID,
		WalletCode: domain.NormalizeWalletCode(e.WalletCode),
		Side:       e.Side,
		Price:      e.Price,
		Quantity:   e.Quantity,
		Remaining:  e.Quantity,
		CreatedAt:  created.UTC(),
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}
