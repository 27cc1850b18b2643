package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/olyamironova/wallet-exchange/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncProducerPublishJSON(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	defer mock.Close()
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got map[string]string
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got["k"] != "v" {
			return errors.New("unexpected payload")
		}
		return nil
	})
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	m := NewProducerMetrics(prometheus.NewRegistry())
	p := NewSyncProducerFrom(mock, nil, m)

	_, _, err := p.PublishJSON(context.Background(), "orders.submitted", "TEST", map[string]string{"k": "v"})
	require.NoError(t, err)
	_, _, err = p.PublishJSON(context.Background(), "orders.submitted", "TEST", map[string]string{"k": "v"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishTotal.WithLabelValues("orders.submitted", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishTotal.WithLabelValues("orders.submitted", "error")))
}

func TestOrderPublisherKeysByInstrument(t *testing.T) {
	pub := &stubPublisher{}
	op := NewOrderPublisher(pub, "orders.submitted", "TEST", nil)
	o := &domain.Order{
		ID:         uuid.NewString(),
		WalletCode: "A",
		Side:       domain.Buy,
		Price:      decimal.NewFromInt(10),
		Quantity:   2,
		Remaining:  2,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, op.PublishOrder(context.Background(), "corr-1", o))
	require.Len(t, pub.calls, 1)
	call := pub.calls[0]
	assert.Equal(t, "orders.submitted", call.topic)
	assert.Equal(t, "TEST", call.key)

	evt, ok := call.value.(*OrderSubmittedEvent)
	require.True(t, ok)
	assert.Equal(t, "corr-1", evt.CorrelationID)
	assert.Equal(t, o.ID, evt.OrderID)

	pub.err = errors.New("broker down")
	assert.Error(t, op.PublishOrder(context.Background(), "corr-2", o))
}
