package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/events"
	"github.com/jask/payledger/internal/gateway"
)

// Ack is the reply to a gateway notification. Only an unknown payment id
// produces Found=false; every other outcome is acknowledged.
type Ack struct {
	Found   bool
	Status  string
	Message string
}

// WebhookReconciler applies gateway notifications. The notification only
// names a payment; its status is always re-fetched from the gateway.
type WebhookReconciler struct {
	Transactions *repository.TransactionRepo
	Gateway      gateway.Client
	Events       *events.Bus
	Logger       *slog.Logger

	group singleflight.Group
}

// HandleNotification reconciles the transaction behind gatewayPaymentID.
// Concurrent notifications for the same id share one reconciliation, which
// outlives the cancellation of whichever caller started it.
func (w *WebhookReconciler) HandleNotification(ctx context.Context, gatewayPaymentID string) Ack {
	gatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	if gatewayPaymentID == "" {
		return Ack{Found: false, Message: "missing payment id"}
	}
	shared := context.WithoutCancel(ctx)
	v, _, _ := w.group.Do(gatewayPaymentID, func() (any, error) {
		return w.reconcile(shared, gatewayPaymentID), nil
	})
	return v.(Ack)
}

func (w *WebhookReconciler) reconcile(ctx context.Context, gatewayPaymentID string) Ack {
	log := w.logger().With("gateway_payment_id", gatewayPaymentID)

	tx, err := w.Transactions.GetByGatewayPaymentID(ctx, gatewayPaymentID)
	if err != nil {
		log.Error("webhook lookup failed", "err", err)
		return Ack{Found: true, Message: "lookup failed"}
	}
	if tx == nil {
		log.Warn("webhook for unknown payment")
		return Ack{Found: false, Message: "unknown payment"}
	}
	log = log.With("transaction_id", tx.ID)

	payment, err := w.Gateway.GetPayment(ctx, gatewayPaymentID, gateway.GetOptions{Testmode: tx.Testmode})
	if err != nil {
		log.Error("webhook gateway fetch failed", "err", err)
		return Ack{Found: true, Status: string(tx.Status), Message: "gateway unavailable"}
	}
	status, ok := MapGatewayStatus(payment.Status)
	if !ok {
		log.Error("webhook unknown gateway status", "gateway_status", payment.Status)
		return Ack{Found: true, Status: string(tx.Status), Message: "unknown gateway status"}
	}

	prev := tx.Status
	changed, updated, err := w.Transactions.UpdateStatus(ctx, gatewayPaymentID, status)
	switch {
	case errors.Is(err, repository.ErrInvalidTransition):
		log.Warn("webhook status ignored", "from", prev, "to", status, "err", err)
		return Ack{Found: true, Status: string(prev), Message: "transition ignored"}
	case errors.Is(err, repository.ErrNotFound):
		return Ack{Found: false, Message: "unknown payment"}
	case err != nil:
		log.Error("webhook status update failed", "to", status, "err", err)
		return Ack{Found: true, Status: string(prev), Message: "update failed"}
	}
	if !changed {
		return Ack{Found: true, Status: string(updated.Status), Message: "unchanged"}
	}
	log.Info("transaction status changed", "from", prev, "to", updated.Status)
	if w.Events != nil {
		w.Events.Publish(ctx, events.ForTransition(*updated, prev)...)
	}
	return Ack{Found: true, Status: string(updated.Status), Message: "updated"}
}

// MapGatewayStatus translates a gateway payment status into a transaction
// status. open and pending both mean the payer has not finished yet.
func MapGatewayStatus(s string) (repository.Status, bool) {
	switch strings.ToLower(s) {
	case gateway.StatusOpen, gateway.StatusPending:
		return repository.StatusPendingPayment, true
	case gateway.StatusAuthorized:
		return repository.StatusAuthorized, true
	case gateway.StatusPaid:
		return repository.StatusPaid, true
	case gateway.StatusFailed:
		return repository.StatusFailed, true
	case gateway.StatusCanceled:
		return repository.StatusCanceled, true
	case gateway.StatusExpired:
		return repository.StatusExpired, true
	}
	return "", false
}

func (w *WebhookReconciler) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}
