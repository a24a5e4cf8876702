// Package events publishes domain events for downstream consumers such as notification delivery.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Type string

const (
	OrderCreated    Type = "order.created"
	OrderConfirmed  Type = "order.confirmed"
	OrderCancelled  Type = "order.cancelled"
	OrderShipped    Type = "order.shipped"
	OrderDelivered  Type = "order.delivered"
	PaymentReceived Type = "payment.received"
	PaymentFailed   Type = "payment.failed"
	StockLow        Type = "stock.low"
)

type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Key        string         `json:"key"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func New(t Type, key string, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Key:        key,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher is called after the transaction that produced the event has committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type batchKey struct{}

type Batch struct {
	mu     sync.Mutex
	events []Event
}

// Defer makes Emit calls made with the returned context queue into the batch
// instead of publishing. The owner of the transaction flushes after commit.
func Defer(ctx context.Context) (context.Context, *Batch) {
	if b, ok := ctx.Value(batchKey{}).(*Batch); ok {
		return ctx, b
	}
	b := &Batch{}
	return context.WithValue(ctx, batchKey{}, b), b
}

func (b *Batch) add(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

// Flush publishes queued events in order. ctx must not carry the batch.
func (b *Batch) Flush(ctx context.Context, p Publisher) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	for _, e := range pending {
		Emit(ctx, p, e)
	}
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Emit publishes e and only logs a failure: a lost event never undoes committed state.
func Emit(ctx context.Context, p Publisher, e Event) {
	if b, ok := ctx.Value(batchKey{}).(*Batch); ok {
		b.add(e)
		return
	}
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Log.Warn("publish event failed",
			zap.String("event_id", e.ID),
			zap.String("type", string(e.Type)),
			zap.String("key", e.Key),
			zap.Error(err),
		)
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e Event) error {
	logger.Log.Info("event",
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.String("key", e.Key),
		zap.Any("payload", e.Payload),
	)
	return nil
}
