package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-memory Client for local development and tests. Payments
// start open; SetStatus simulates the provider settling them.
type Sandbox struct {
	mu          sync.Mutex
	payments    map[string]Payment
	idempotency map[string]string
	creates     int
	checkoutURL string

	// FailCreate and FailGet, when set, are returned instead of calling through.
	FailCreate error
	FailGet    error
}

func NewSandbox(checkoutBaseURL string) *Sandbox {
	return &Sandbox{
		payments:    make(map[string]Payment),
		idempotency: make(map[string]string),
		checkoutURL: checkoutBaseURL,
	}
}

func (s *Sandbox) CreatePayment(ctx context.Context, req CreatePaymentRequest) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	if s.FailCreate != nil {
		return Payment{}, s.FailCreate
	}
	if id, ok := s.idempotency[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return s.payments[id], nil
	}
	s.creates++
	id := "tr_" + uuid.NewString()[:10]
	p := Payment{
		ID:          id,
		Status:      StatusOpen,
		CheckoutURL: fmt.Sprintf("%s/checkout/%s", s.checkoutURL, id),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Metadata:    req.Metadata,
		Testmode:    req.Testmode,
	}
	s.payments[id] = p
	if req.IdempotencyKey != "" {
		s.idempotency[req.IdempotencyKey] = id
	}
	return p, nil
}

func (s *Sandbox) GetPayment(ctx context.Context, id string, opts GetOptions) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	if s.FailGet != nil {
		return Payment{}, s.FailGet
	}
	p, ok := s.payments[id]
	if !ok || p.Testmode != opts.Testmode {
		return Payment{}, &Error{StatusCode: 404, Title: "Not Found", Detail: "no payment " + id + " in this mode"}
	}
	return p, nil
}

// SetStatus changes the provider-side status of a payment.
func (s *Sandbox) SetStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return fmt.Errorf("sandbox: no payment %s", id)
	}
	p.Status = status
	s.payments[id] = p
	return nil
}

// Creates counts remote payments actually created.
func (s *Sandbox) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}
