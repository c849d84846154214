// Package gateway abstracts the external payment provider.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Provider statuses as reported by the gateway.
const (
	StatusOpen       = "open"
	StatusPending    = "pending"
	StatusAuthorized = "authorized"
	StatusPaid       = "paid"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
	StatusExpired    = "expired"
)

// Config holds credentials and operating mode. It is built once from the
// application config and injected; nothing in this package reads globals.
type Config struct {
	BaseURL string
	// APIKey is used as a static bearer token when no OAuth client is set.
	APIKey       string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Testmode     bool
	Timeout      time.Duration
	// RatePerSecond limits outbound calls; zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// CreatePaymentRequest carries everything the gateway needs to create a payment.
type CreatePaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	RedirectURL string
	WebhookURL  string
	Metadata    map[string]string
	Testmode    bool
	// IdempotencyKey makes retried creates return the original payment.
	IdempotencyKey string
}

// Payment is the gateway's view of a payment.
type Payment struct {
	ID          string
	Status      string
	CheckoutURL string
	Amount      decimal.Decimal
	Currency    string
	Metadata    map[string]string
	Testmode    bool
}

// GetOptions selects the mode a payment is looked up in.
type GetOptions struct {
	Testmode bool
}

// Client is the narrow contract the payment services depend on. Any returned
// error means the remote state is unknown; callers must not change local state.
type Client interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (Payment, error)
	GetPayment(ctx context.Context, id string, opts GetOptions) (Payment, error)
}

// Error is a non-2xx response from the gateway.
type Error struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("gateway: %d %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("gateway: %d %s", e.StatusCode, e.Title)
}
