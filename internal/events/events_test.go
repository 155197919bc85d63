package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cod-order-service/internal/config"
	"cod-order-service/internal/modal"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	orders, carts := &fakeWriter{}, &fakeWriter{}
	p := &KafkaPublisher{orders: orders, carts: carts}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.PublishOrder(context.Background(), OrderEvent{
		Type: OrderFlagged, Shop: "demo.myshopify.com", SessionID: "s1", Score: 45, Decision: modal.DecisionFlag, At: at,
	}))
	require.NoError(t, p.PublishCart(context.Background(), CartEvent{
		Type: CartRecovered, Shop: "demo.myshopify.com", SessionID: "s1", DraftOrderID: "gid://shopify/DraftOrder/1", At: at,
	}))

	require.Len(t, orders.msgs, 1)
	assert.Equal(t, "demo.myshopify.com/s1", string(orders.msgs[0].Key))
	assert.JSONEq(t, `{"type":"order.flagged","shop":"demo.myshopify.com","sessionId":"s1","score":45,"decision":"flag","at":"2026-03-01T10:00:00Z"}`,
		string(orders.msgs[0].Value))
	require.Len(t, carts.msgs, 1)

	require.NoError(t, p.Close())
	assert.True(t, orders.closed)
	assert.True(t, carts.closed)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	p := &KafkaPublisher{orders: &fakeWriter{err: errors.New("leader not available")}, carts: &fakeWriter{}}
	err := p.PublishOrder(context.Background(), OrderEvent{Type: OrderCreated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewWithoutBrokers(t *testing.T) {
	p := New(config.KafkaConfig{})
	assert.IsType(t, Noop{}, p)
	assert.NoError(t, p.PublishOrder(context.Background(), OrderEvent{}))
}
