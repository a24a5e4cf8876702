package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Publish(ctx context.Context, e Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []Type {
	var out []Type
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	e := New(OrderCreated, "WS202601010001", map[string]any{"order_id": 1})
	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "WS202601010001", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "order.created", string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, OrderCreated, got.Type)
}

func TestEmitSwallowsErrors(t *testing.T) {
	r := &recorder{err: errors.New("broker down")}
	Emit(context.Background(), r, New(StockLow, "stock", nil))
	assert.Empty(t, r.events)

	Emit(context.Background(), nil, New(StockLow, "stock", nil))

	r.err = nil
	Emit(context.Background(), r, New(StockLow, "stock", nil))
	assert.Equal(t, []Type{StockLow}, r.types())
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New(OrderShipped, "k", nil)
	b := New(OrderShipped, "k", nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.OccurredAt.IsZero())
}

func TestDeferQueuesUntilFlush(t *testing.T) {
	r := &recorder{}
	base := context.Background()
	ctx, batch := Defer(base)

	Emit(ctx, r, New(OrderConfirmed, "a", nil))
	Emit(ctx, r, New(PaymentReceived, "a", nil))
	assert.Empty(t, r.events)
	assert.Equal(t, 2, batch.Len())

	nested, same := Defer(ctx)
	assert.Same(t, batch, same)
	Emit(nested, r, New(OrderShipped, "a", nil))

	batch.Flush(base, r)
	assert.Equal(t, []Type{OrderConfirmed, PaymentReceived, OrderShipped}, r.types())
	assert.Equal(t, 0, batch.Len())
}
