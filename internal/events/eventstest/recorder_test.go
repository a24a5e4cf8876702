package eventstest

import (
	"context"
	"errors"
	"testing"

	"github.com/antonminaichev/wholesale/internal/events"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	events.Emit(context.Background(), r, events.New(events.OrderCreated, "WS1", nil))
	assert.Equal(t, []events.Type{events.OrderCreated}, r.Types())

	r.Err = errors.New("down")
	events.Emit(context.Background(), r, events.New(events.OrderShipped, "WS1", nil))
	assert.Len(t, r.Events, 1)
}
