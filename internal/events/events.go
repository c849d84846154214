// Package events delivers typed transaction status events to listeners
// registered at wiring time.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jask/payledger/internal/database/repository"
)

// Kind names an event.
type Kind string

const (
	KindPaid          Kind = "paid"
	KindFailed        Kind = "failed" // failed, canceled or expired
	KindAuthorized    Kind = "authorized"
	KindStatusChanged Kind = "status_changed"
)

// Event describes one applied status change.
type Event struct {
	Kind             Kind
	TransactionID    string
	GatewayPaymentID string
	Status           repository.Status
	PreviousStatus   repository.Status
	Testmode         bool
	Metadata         map[string]string
	OccurredAt       time.Time
}

// Listener reacts to events. Returned errors are logged by the bus.
type Listener interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

func (f ListenerFunc) HandleEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Bus fans events out to listeners synchronously, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	byKind map[Kind][]Listener
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{byKind: make(map[Kind][]Listener), logger: logger}
}

// Subscribe registers l for the given kinds.
func (b *Bus) Subscribe(l Listener, kinds ...Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range kinds {
		b.byKind[k] = append(b.byKind[k], l)
	}
}

// Publish delivers each event to the listeners of its kind. A failing
// listener does not stop delivery to the others.
func (b *Bus) Publish(ctx context.Context, evs ...Event) {
	for _, ev := range evs {
		b.mu.RLock()
		ls := append([]Listener(nil), b.byKind[ev.Kind]...)
		b.mu.RUnlock()
		for _, l := range ls {
			if err := l.HandleEvent(ctx, ev); err != nil {
				b.logger.Error("event listener failed",
					"kind", ev.Kind, "transaction_id", ev.TransactionID, "err", err)
			}
		}
	}
}

// ForTransition builds the events for tx having moved from prev to its
// current status: one status-specific event when one applies, then
// status_changed.
func ForTransition(tx repository.Transaction, prev repository.Status) []Event {
	base := Event{
		TransactionID:  tx.ID,
		Status:         tx.Status,
		PreviousStatus: prev,
		Testmode:       tx.Testmode,
		Metadata:       tx.Metadata,
		OccurredAt:     time.Now().UTC(),
	}
	if tx.GatewayPaymentID != nil {
		base.GatewayPaymentID = *tx.GatewayPaymentID
	}
	var out []Event
	switch tx.Status {
	case repository.StatusPaid:
		out = append(out, withKind(base, KindPaid))
	case repository.StatusFailed, repository.StatusCanceled, repository.StatusExpired:
		out = append(out, withKind(base, KindFailed))
	case repository.StatusAuthorized:
		out = append(out, withKind(base, KindAuthorized))
	}
	return append(out, withKind(base, KindStatusChanged))
}

func withKind(ev Event, k Kind) Event {
	ev.Kind = k
	return ev
}

// LogListener logs every event it receives at info level.
func LogListener(logger *slog.Logger) Listener {
	return ListenerFunc(func(_ context.Context, ev Event) error {
		logger.Info("transaction event",
			"kind", ev.Kind,
			"transaction_id", ev.TransactionID,
			"gateway_payment_id", ev.GatewayPaymentID,
			"status", ev.Status,
			"previous_status", ev.PreviousStatus,
		)
		return nil
	})
}

// AllKinds lists every kind, for listeners that want everything.
var AllKinds = []Kind{KindPaid, KindFailed, KindAuthorized, KindStatusChanged}
