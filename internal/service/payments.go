package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/gateway"
	"github.com/jask/payledger/internal/lineitems"
)

// DefaultFeePercent is the application fee taken on every transaction.
var DefaultFeePercent = decimal.NewFromInt(2)

// PaymentService creates transactions and starts their remote payments.
type PaymentService struct {
	Transactions *repository.TransactionRepo
	LineItems    *repository.LineItemRepo
	Gateway      gateway.Client
	Logger       *slog.Logger

	Testmode   bool
	Currency   string
	FeePercent decimal.Decimal
	// WebhookURL is used when InitiateArgs carries none.
	WebhookURL string

	inFlight sync.Map
}

// CreateArgs are the caller-supplied fields of a new transaction.
type CreateArgs struct {
	Currency    string
	Description string
	Metadata    map[string]string
	// RedirectURL and WebhookURL are defaults for InitiatePayment.
	RedirectURL string
	WebhookURL  string
}

// InitiateArgs are the per-call inputs of InitiatePayment.
type InitiateArgs struct {
	RedirectURL string
	WebhookURL  string
}

// InitiateResult is what a caller needs to send the payer to checkout.
type InitiateResult struct {
	TransactionID    string
	GatewayPaymentID string
	CheckoutURL      string
	Status           repository.Status
}

// CreateTransaction composes items into a draft transaction and stores it.
func (s *PaymentService) CreateTransaction(ctx context.Context, items []lineitems.Item, args CreateArgs) (string, error) {
	cart, err := lineitems.Compose(items)
	if err != nil {
		return "", err
	}
	percent := s.FeePercent
	if percent.IsZero() {
		percent = DefaultFeePercent
	}
	currency := strings.ToUpper(strings.TrimSpace(args.Currency))
	if currency == "" {
		currency = s.currency()
	}
	tx := repository.Transaction{
		ID:             uuid.NewString(),
		Amount:         cart.Total,
		Currency:       currency,
		ApplicationFee: lineitems.ApplicationFee(cart.Total, percent),
		Testmode:       s.Testmode,
		Description:    args.Description,
		RedirectURL:    strings.TrimSpace(args.RedirectURL),
		WebhookURL:     strings.TrimSpace(args.WebhookURL),
		Metadata:       args.Metadata,
	}
	rows := make([]repository.LineItem, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		rows = append(rows, repository.LineItem{
			Name:        l.Name,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitAmount:  l.Amount,
			TotalAmount: l.Total,
		})
	}
	if err := s.Transactions.Create(ctx, tx, rows); err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}
	s.logger().Info("transaction created", "transaction_id", tx.ID, "amount", tx.Amount.StringFixed(2),
		"currency", tx.Currency, "items", len(rows), "testmode", tx.Testmode)
	return tx.ID, nil
}

// InitiatePayment creates the remote payment for a draft transaction and
// moves it to pending_payment. A transaction is initiated at most once.
// Redirect and webhook URLs fall back to the ones stored at creation, then
// to the service default webhook.
func (s *PaymentService) InitiatePayment(ctx context.Context, id string, args InitiateArgs) (InitiateResult, error) {
	if _, busy := s.inFlight.LoadOrStore(id, struct{}{}); busy {
		tx, err := s.Transactions.Get(ctx, id)
		if err != nil {
			return InitiateResult{}, err
		}
		if tx == nil {
			return InitiateResult{}, fmt.Errorf("transaction %s: %w", id, repository.ErrNotFound)
		}
		return InitiateResult{}, repository.ErrAlreadyInitiated
	}
	defer s.inFlight.Delete(id)

	tx, err := s.Transactions.Get(ctx, id)
	if err != nil {
		return InitiateResult{}, err
	}
	if tx == nil {
		return InitiateResult{}, fmt.Errorf("transaction %s: %w", id, repository.ErrNotFound)
	}
	if tx.PaymentInitiatedAt != nil {
		return InitiateResult{}, repository.ErrAlreadyInitiated
	}
	if tx.Status != repository.StatusDraft {
		return InitiateResult{}, fmt.Errorf("%w: %s", ErrInvalidStatus, tx.Status)
	}
	redirectURL := firstNonEmpty(args.RedirectURL, tx.RedirectURL)
	if redirectURL == "" {
		return InitiateResult{}, ErrRedirectURLRequired
	}

	req := gateway.CreatePaymentRequest{
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		Description:    tx.Description,
		RedirectURL:    redirectURL,
		WebhookURL:     firstNonEmpty(args.WebhookURL, tx.WebhookURL, s.WebhookURL),
		Metadata:       map[string]string{},
		Testmode:       tx.Testmode,
		IdempotencyKey: tx.ID,
	}
	if strings.TrimSpace(req.Description) == "" {
		req.Description = "Transaction " + tx.ID
	}
	for k, v := range tx.Metadata {
		req.Metadata[k] = v
	}
	req.Metadata["transaction_id"] = tx.ID

	payment, err := s.Gateway.CreatePayment(ctx, req)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("%w: create payment: %w", ErrGatewayUnavailable, err)
	}

	start := repository.PaymentStart{
		GatewayPaymentID: payment.ID,
		CheckoutURL:      payment.CheckoutURL,
		RedirectURL:      req.RedirectURL,
		WebhookURL:       req.WebhookURL,
	}
	if err := s.Transactions.MarkPaymentInitiated(ctx, tx.ID, start); err != nil {
		if errors.Is(err, repository.ErrAlreadyInitiated) {
			// another process won; the idempotency key made both calls the same remote payment
			return InitiateResult{}, err
		}
		s.logger().Error("remote payment has no local record",
			"alert", "orphaned_remote_payment",
			"transaction_id", tx.ID,
			"gateway_payment_id", payment.ID,
			"err", err)
		return InitiateResult{}, fmt.Errorf("%w: %w", ErrLocalUpdateFailed, err)
	}
	s.logger().Info("payment initiated", "transaction_id", tx.ID, "gateway_payment_id", payment.ID)
	return InitiateResult{
		TransactionID:    tx.ID,
		GatewayPaymentID: payment.ID,
		CheckoutURL:      payment.CheckoutURL,
		Status:           repository.StatusPendingPayment,
	}, nil
}

// GetTransaction returns a transaction with its line items.
func (s *PaymentService) GetTransaction(ctx context.Context, id string) (*repository.Transaction, []repository.LineItem, error) {
	tx, err := s.Transactions.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if tx == nil {
		return nil, nil, fmt.Errorf("transaction %s: %w", id, repository.ErrNotFound)
	}
	items, err := s.LineItems.ListByTransaction(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return tx, items, nil
}

// ListTransactions lists transactions newest first.
func (s *PaymentService) ListTransactions(ctx context.Context, f repository.TransactionFilters) ([]repository.Transaction, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, f.Status)
	}
	return s.Transactions.List(ctx, f)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (s *PaymentService) currency() string {
	if s.Currency == "" {
		return "EUR"
	}
	return s.Currency
}

func (s *PaymentService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
