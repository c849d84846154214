package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a Transaction.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusFailed         Status = "failed"
	StatusCanceled       Status = "canceled"
	StatusExpired        Status = "expired"
	StatusAuthorized     Status = "authorized"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingPayment, StatusPaid, StatusFailed,
		StatusCanceled, StatusExpired, StatusAuthorized:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// Transaction represents a transaction row.
type Transaction struct {
	ID                 string
	GatewayPaymentID   *string
	Amount             decimal.Decimal
	Currency           string
	ApplicationFee     *decimal.Decimal
	Status             Status
	Testmode           bool
	Description        string
	RedirectURL        string
	WebhookURL         string
	CheckoutURL        string
	Metadata           map[string]string
	PaymentInitiatedAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PaymentStart is what a successfully created remote payment records on its
// transaction.
type PaymentStart struct {
	GatewayPaymentID string
	CheckoutURL      string
	RedirectURL      string
	WebhookURL       string
}

// LineItem represents one priced component of a transaction.
type LineItem struct {
	ID            string
	TransactionID string
	Name          string
	Description   string
	Quantity      int
	UnitAmount    decimal.Decimal
	TotalAmount   decimal.Decimal
	SortOrder     int
}

// EntryType carries the sign of a financial entry.
type EntryType string

const (
	EntryCost   EntryType = "cost"
	EntryIncome EntryType = "income"
)

// Valid reports whether t is cost or income.
func (t EntryType) Valid() bool {
	return t == EntryCost || t == EntryIncome
}

// FinancialEntry is a manually recorded or imported cost/income row.
// Amount is always positive.
type FinancialEntry struct {
	ID                string
	Amount            decimal.Decimal
	EntryType         EntryType
	EntryDate         time.Time
	Description       string
	BudgetID          *string
	TransactionID     *string
	ExternalReference *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Budget is a named category for financial entries.
type Budget struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// toCents converts an amount to minor units, rounding half away from zero.
func toCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
