// Package lineitems validates and totals a cart of named, priced items before
// a transaction is created from it.
package lineitems

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnits is the precision totals are rounded to.
const MinorUnits = 2

// ErrInvalidLineItems matches every validation failure from this package.
var ErrInvalidLineItems = errors.New("invalid line items")

// ValidationError locates a rejected cart or item. Index is -1 for errors
// about the cart as a whole.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return "line items: " + e.Reason
	}
	return fmt.Sprintf("line item %d: %s %s", e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidLineItems }

// Item is one requested cart line. Quantity zero means 1.
type Item struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Quantity    int             `json:"quantity,omitempty"`
}

// Line is a validated item with its exact, unrounded total.
type Line struct {
	Item
	Total decimal.Decimal
}

// Cart is a validated set of lines and their rounded total.
type Cart struct {
	Lines []Line
	Total decimal.Decimal
}

// Parse decodes raw JSON into items, rejecting anything that is not a
// non-empty array of objects with a name, a positive numeric amount and an
// optional positive integer quantity.
func Parse(raw json.RawMessage) ([]Item, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &ValidationError{Index: -1, Reason: "must be an array"}
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, &ValidationError{Index: -1, Reason: "must be an array"}
	}
	if len(elems) == 0 {
		return nil, &ValidationError{Index: -1, Reason: "must not be empty"}
	}
	out := make([]Item, 0, len(elems))
	for i, el := range elems {
		var fields struct {
			Name        *string         `json:"name"`
			Description string          `json:"description"`
			Amount      json.RawMessage `json:"amount"`
			Quantity    json.RawMessage `json:"quantity"`
		}
		if err := json.Unmarshal(el, &fields); err != nil {
			return nil, &ValidationError{Index: i, Field: "item", Reason: "must be an object"}
		}
		if fields.Name == nil || strings.TrimSpace(*fields.Name) == "" {
			return nil, &ValidationError{Index: i, Field: "name", Reason: "is required"}
		}
		amount, err := parseAmount(fields.Amount)
		if err != nil {
			return nil, &ValidationError{Index: i, Field: "amount", Reason: err.Error()}
		}
		qty, err := parseQuantity(fields.Quantity)
		if err != nil {
			return nil, &ValidationError{Index: i, Field: "quantity", Reason: err.Error()}
		}
		out = append(out, Item{
			Name:        strings.TrimSpace(*fields.Name),
			Description: fields.Description,
			Amount:      amount,
			Quantity:    qty,
		})
	}
	return out, nil
}

// Compose validates items and computes Σ(quantity × amount). Line totals
// stay exact; only the cart total is rounded to MinorUnits.
func Compose(items []Item) (Cart, error) {
	if len(items) == 0 {
		return Cart{}, &ValidationError{Index: -1, Reason: "must not be empty"}
	}
	cart := Cart{Lines: make([]Line, 0, len(items)), Total: decimal.Zero}
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" {
			return Cart{}, &ValidationError{Index: i, Field: "name", Reason: "is required"}
		}
		if !it.Amount.IsPositive() {
			return Cart{}, &ValidationError{Index: i, Field: "amount", Reason: "must be greater than zero"}
		}
		if it.Quantity < 0 {
			return Cart{}, &ValidationError{Index: i, Field: "quantity", Reason: "must be a positive integer"}
		}
		if it.Quantity == 0 {
			it.Quantity = 1
		}
		total := it.Amount.Mul(decimal.NewFromInt(int64(it.Quantity)))
		cart.Lines = append(cart.Lines, Line{Item: it, Total: total})
		cart.Total = cart.Total.Add(total)
	}
	cart.Total = cart.Total.Round(MinorUnits)
	return cart, nil
}

// ApplicationFee returns percent of total rounded to MinorUnits, or nil when
// total is zero.
func ApplicationFee(total, percent decimal.Decimal) *decimal.Decimal {
	if total.IsZero() {
		return nil
	}
	fee := total.Mul(percent).Div(decimal.NewFromInt(100)).Round(MinorUnits)
	return &fee
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, errors.New("is required")
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, errors.New("must be numeric")
		}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, errors.New("must be numeric")
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.New("must be greater than zero")
	}
	return d, nil
}

func parseQuantity(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 1, nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errors.New("must be a positive integer")
		}
	}
	q, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || q <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return q, nil
}
