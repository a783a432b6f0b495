package events

import (
	"context"
	"sync"

	"pixelmint/models"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange   EventType = "balance_change"
	EventTypeAccountCreated  EventType = "account_created"
	EventTypeJobCompleted    EventType = "job_completed"
	EventTypeJobFailed       EventType = "job_failed"
	EventTypePaymentCredited EventType = "payment_credited"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	UserID     int64
	OldBalance int64
	NewBalance int64
	Kind       models.EntryKind
	Reason     models.EntryReason
	Amount     int64
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// AccountCreatedEvent represents a new account creation
type AccountCreatedEvent struct {
	UserID         int64
	InitialBalance int64
}

func (e AccountCreatedEvent) Type() EventType {
	return EventTypeAccountCreated
}

// JobCompletedEvent represents a generation job reaching the completed state
type JobCompletedEvent struct {
	JobID     string
	UserID    int64
	Provider  string
	ResultURI string
}

func (e JobCompletedEvent) Type() EventType {
	return EventTypeJobCompleted
}

// JobFailedEvent represents a generation job reaching the failed state
type JobFailedEvent struct {
	JobID        string
	UserID       int64
	Provider     string
	ErrorMessage string
	Refunded     int64
}

func (e JobFailedEvent) Type() EventType {
	return EventTypeJobFailed
}

// PaymentCreditedEvent represents tokens credited from a completed payment
type PaymentCreditedEvent struct {
	PaymentID  int64
	UserID     int64
	ExternalID string
	Tokens     int64
}

func (e PaymentCreditedEvent) Type() EventType {
	return EventTypePaymentCredited
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers. Handlers run
// asynchronously; a panicking handler does not affect the others.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType": event.Type(),
						"panic":     r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler)
	}
}

// TransactionalBus stages events coupled to a unit of work until the
// enclosing database transaction commits, then flushes them to the real bus.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all pending events. Called after a successful DB commit.
func (b *TransactionalBus) Flush(ctx context.Context) {
	// Events outlive the transaction context, so emit on a background context.
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops all pending events. Called after a rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
