package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pixelmint/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records emitted events for assertions
type fakeConn struct {
	mu      sync.Mutex
	emitted []envelope
	emitErr error
	closed  bool
	notify  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{notify: make(chan struct{}, 16)}
}

func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emitted = append(c.emitted, envelope{Event: event, Payload: payload})
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) events() []envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]envelope, len(c.emitted))
	copy(out, c.emitted)
	return out
}

func (c *fakeConn) waitForEvent(t *testing.T) {
	t.Helper()
	select {
	case <-c.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for realtime event")
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	conn := newFakeConn()

	assert.Nil(t, registry.Get(42))

	registry.Register(42, conn)
	assert.Equal(t, Conn(conn), registry.Get(42))
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_ReplaceClosesPrevious(t *testing.T) {
	registry := NewRegistry()
	first := newFakeConn()
	second := newFakeConn()

	registry.Register(42, first)
	registry.Register(42, second)

	assert.True(t, first.closed)
	assert.False(t, second.closed)
	assert.Equal(t, Conn(second), registry.Get(42))
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_StaleUnregisterIgnored(t *testing.T) {
	registry := NewRegistry()
	old := newFakeConn()
	current := newFakeConn()

	registry.Register(42, old)
	registry.Register(42, current)

	// The old connection's deferred cleanup fires after the replacement
	registry.Unregister(42, old)

	assert.Equal(t, Conn(current), registry.Get(42))
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()
	conn := newFakeConn()

	registry.Register(42, conn)
	registry.Unregister(42, conn)

	assert.Nil(t, registry.Get(42))
	assert.Equal(t, 0, registry.Len())
}

func TestDispatcher_Notify(t *testing.T) {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry)

	conn := newFakeConn()
	registry.Register(42, conn)

	dispatcher.Notify(42, EventJobCompleted, map[string]any{"jobId": "job-1"})

	emitted := conn.events()
	require.Len(t, emitted, 1)
	assert.Equal(t, EventJobCompleted, emitted[0].Event)
}

func TestDispatcher_NotifyWithoutConnectionIsNoop(t *testing.T) {
	dispatcher := NewDispatcher(NewRegistry())

	// Nothing registered for the user: the event is dropped silently
	dispatcher.Notify(42, EventJobCompleted, nil)
}

func TestDispatcher_NotifyWriteFailureDropsEvent(t *testing.T) {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry)

	conn := newFakeConn()
	conn.emitErr = errors.New("broken pipe")
	registry.Register(42, conn)

	// Must not panic or block
	dispatcher.Notify(42, EventJobFailed, nil)
	assert.Empty(t, conn.events())
}

func TestDispatcher_SubscribeTo(t *testing.T) {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry)

	bus := events.NewBus()
	dispatcher.SubscribeTo(bus)

	conn := newFakeConn()
	registry.Register(42, conn)

	ctx := context.Background()

	bus.Emit(ctx, events.JobCompletedEvent{
		JobID:     "job-1",
		UserID:    42,
		ResultURI: "https://cdn.example.com/out.png",
	})
	conn.waitForEvent(t)

	bus.Emit(ctx, events.JobFailedEvent{
		JobID:        "job-2",
		UserID:       42,
		ErrorMessage: "boom",
		Refunded:     10,
	})
	conn.waitForEvent(t)

	bus.Emit(ctx, events.PaymentCreditedEvent{
		PaymentID: 7,
		UserID:    42,
		Tokens:    999,
	})
	conn.waitForEvent(t)

	emitted := conn.events()
	require.Len(t, emitted, 3)
	names := []string{emitted[0].Event, emitted[1].Event, emitted[2].Event}
	assert.Contains(t, names, EventJobCompleted)
	assert.Contains(t, names, EventJobFailed)
	assert.Contains(t, names, EventTokensTopUp)

	t.Run("other users unaffected", func(t *testing.T) {
		bus.Emit(ctx, events.JobCompletedEvent{JobID: "job-3", UserID: 99})

		// Give the async handler a moment; no new event should arrive
		time.Sleep(50 * time.Millisecond)
		assert.Len(t, conn.events(), 3)
	})
}
