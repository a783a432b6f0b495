package realtime

import (
	"context"

	"pixelmint/events"

	log "github.com/sirupsen/logrus"
)

// Event names pushed to clients
const (
	EventJobCompleted  = "jobCompleted"
	EventJobFailed     = "jobFailed"
	EventBalanceChange = "balanceChanged"
	EventTokensTopUp   = "tokensToppedUp"
)

// Dispatcher pushes events to live client connections. Delivery is
// best-effort and at most once: no queue, no retry, no persistence. A user
// without a live connection simply misses the event and is expected to
// reconcile by re-fetching state.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over the given connection registry
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Notify pushes one event to the user's connection if one is registered.
// A write failure is logged and the event is dropped.
func (d *Dispatcher) Notify(userID int64, event string, payload any) {
	conn := d.registry.Get(userID)
	if conn == nil {
		return
	}

	if err := conn.Emit(event, payload); err != nil {
		log.WithFields(log.Fields{
			"userID": userID,
			"event":  event,
		}).WithError(err).Debug("Dropped realtime event after write failure")
	}
}

// SubscribeTo wires the dispatcher to the domain event bus
func (d *Dispatcher) SubscribeTo(bus *events.Bus) {
	bus.Subscribe(events.EventTypeJobCompleted, func(_ context.Context, e events.Event) {
		ev := e.(events.JobCompletedEvent)
		d.Notify(ev.UserID, EventJobCompleted, map[string]any{
			"jobId":     ev.JobID,
			"resultUri": ev.ResultURI,
		})
	})

	bus.Subscribe(events.EventTypeJobFailed, func(_ context.Context, e events.Event) {
		ev := e.(events.JobFailedEvent)
		d.Notify(ev.UserID, EventJobFailed, map[string]any{
			"jobId":    ev.JobID,
			"error":    ev.ErrorMessage,
			"refunded": ev.Refunded,
		})
	})

	bus.Subscribe(events.EventTypeBalanceChange, func(_ context.Context, e events.Event) {
		ev := e.(events.BalanceChangeEvent)
		d.Notify(ev.UserID, EventBalanceChange, map[string]any{
			"balance": ev.NewBalance,
			"reason":  ev.Reason,
		})
	})

	bus.Subscribe(events.EventTypePaymentCredited, func(_ context.Context, e events.Event) {
		ev := e.(events.PaymentCreditedEvent)
		d.Notify(ev.UserID, EventTokensTopUp, map[string]any{
			"paymentId": ev.PaymentID,
			"tokens":    ev.Tokens,
		})
	})
}
