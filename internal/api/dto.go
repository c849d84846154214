package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/service"
)

type lineItemJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitAmount  string `json:"unitAmount"`
	TotalAmount string `json:"totalAmount"`
}

type transactionJSON struct {
	ID                 string            `json:"id"`
	GatewayPaymentID   *string           `json:"gatewayPaymentId"`
	Amount             string            `json:"amount"`
	Currency           string            `json:"currency"`
	ApplicationFee     *string           `json:"applicationFee"`
	Status             repository.Status `json:"status"`
	Testmode           bool              `json:"testmode"`
	Description        string            `json:"description"`
	CheckoutURL        string            `json:"checkoutUrl,omitempty"`
	Metadata           map[string]string `json:"metadata"`
	PaymentInitiatedAt *time.Time        `json:"paymentInitiatedAt"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
	LineItems          []lineItemJSON    `json:"lineItems,omitempty"`
}

func toTransactionJSON(t repository.Transaction, items []repository.LineItem) transactionJSON {
	out := transactionJSON{
		ID:                 t.ID,
		GatewayPaymentID:   t.GatewayPaymentID,
		Amount:             money(t.Amount),
		Currency:           t.Currency,
		Status:             t.Status,
		Testmode:           t.Testmode,
		Description:        t.Description,
		CheckoutURL:        t.CheckoutURL,
		Metadata:           t.Metadata,
		PaymentInitiatedAt: t.PaymentInitiatedAt,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
	if t.ApplicationFee != nil {
		fee := money(*t.ApplicationFee)
		out.ApplicationFee = &fee
	}
	for _, li := range items {
		out.LineItems = append(out.LineItems, lineItemJSON{
			ID:          li.ID,
			Name:        li.Name,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitAmount:  money(li.UnitAmount),
			TotalAmount: money(li.TotalAmount),
		})
	}
	return out
}

type entryJSON struct {
	ID                string               `json:"id"`
	Amount            string               `json:"amount"`
	EntryType         repository.EntryType `json:"entryType"`
	EntryDate         string               `json:"entryDate"`
	Description       string               `json:"description"`
	BudgetID          *string              `json:"budgetId"`
	BudgetName        string               `json:"budgetName,omitempty"`
	TransactionID     *string              `json:"transactionId"`
	ExternalReference *string              `json:"externalReference"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
}

func toEntryJSON(e repository.FinancialEntry, budgetNames map[string]string) entryJSON {
	out := entryJSON{
		ID:                e.ID,
		Amount:            money(e.Amount),
		EntryType:         e.EntryType,
		EntryDate:         e.EntryDate.Format(time.DateOnly),
		Description:       e.Description,
		BudgetID:          e.BudgetID,
		TransactionID:     e.TransactionID,
		ExternalReference: e.ExternalReference,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
	if e.BudgetID != nil {
		out.BudgetName = budgetNames[*e.BudgetID]
	}
	return out
}

// entryRequest is the body of entry create and update.
type entryRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	EntryType         string          `json:"entryType"`
	EntryDate         string          `json:"entryDate"`
	Description       string          `json:"description"`
	BudgetID          *string         `json:"budgetId"`
	ExternalReference *string         `json:"externalReference"`
}

type totalsJSON struct {
	TotalCost   string `json:"totalCost"`
	TotalIncome string `json:"totalIncome"`
	Balance     string `json:"balance"`
}

type budgetJSON struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toBudgetJSON(b repository.Budget) budgetJSON {
	return budgetJSON{ID: b.ID, Name: b.Name, Description: b.Description, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt}
}

type suggestionJSON struct {
	Transaction transactionJSON `json:"transaction"`
	DaysApart   int             `json:"daysApart"`
	Similarity  float64         `json:"similarity"`
	Score       float64         `json:"score"`
}

func toSuggestionJSON(m service.MatchSuggestion) suggestionJSON {
	return suggestionJSON{
		Transaction: toTransactionJSON(m.Transaction, nil),
		DaysApart:   m.DaysApart,
		Similarity:  m.Similarity,
		Score:       m.Score,
	}
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }
