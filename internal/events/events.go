// Package events publishes COD order and cart lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"cod-order-service/internal/config"
	"cod-order-service/internal/modal"
)

const (
	OrderCreated  = "order.created"
	OrderFlagged  = "order.flagged"
	OrderRejected = "order.rejected"
	OrderFailed   = "order.failed"
	OrderApproved = "order.approved"
	OrderDeclined = "order.declined"

	CartAbandoned = "cart.abandoned"
	CartRecovered = "cart.recovered"
)

type OrderEvent struct {
	Type         string         `json:"type"`
	Shop         string         `json:"shop"`
	SessionID    string         `json:"sessionId"`
	DraftOrderID string         `json:"draftOrderId,omitempty"`
	OrderID      string         `json:"orderId,omitempty"`
	Name         string         `json:"name,omitempty"`
	Score        int            `json:"score"`
	Decision     modal.Decision `json:"decision,omitempty"`
	Reasons      []string       `json:"reasons,omitempty"`
	At           time.Time      `json:"at"`
}

type CartEvent struct {
	Type         string    `json:"type"`
	Shop         string    `json:"shop"`
	SessionID    string    `json:"sessionId"`
	CartID       string    `json:"cartId,omitempty"`
	DraftOrderID string    `json:"draftOrderId,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher is what the submission workflow and review activities emit to.
type Publisher interface {
	PublishOrder(ctx context.Context, e OrderEvent) error
	PublishCart(ctx context.Context, e CartEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON events keyed by shop/session so one shopper's
// events stay ordered within a partition.
type KafkaPublisher struct {
	orders messageWriter
	carts  messageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		orders: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.OrdersTopic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		carts: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.CartsTopic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// New returns a KafkaPublisher, or a Noop when no brokers are configured.
func New(cfg config.KafkaConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		return Noop{}
	}
	return NewKafkaPublisher(cfg)
}

func (p *KafkaPublisher) PublishOrder(ctx context.Context, e OrderEvent) error {
	return write(ctx, p.orders, e.Shop+"/"+e.SessionID, e)
}

func (p *KafkaPublisher) PublishCart(ctx context.Context, e CartEvent) error {
	return write(ctx, p.carts, e.Shop+"/"+e.SessionID, e)
}

func (p *KafkaPublisher) Close() error {
	return errors.Join(p.orders.Close(), p.carts.Close())
}

func write(ctx context.Context, w messageWriter, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data}); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

type Noop struct{}

func (Noop) PublishOrder(context.Context, OrderEvent) error { return nil }
func (Noop) PublishCart(context.Context, CartEvent) error   { return nil }
func (Noop) Close() error                                   { return nil }
