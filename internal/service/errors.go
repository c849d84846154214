package service

import "errors"

var (
	// ErrInvalidStatus is returned when an operation needs a different transaction status.
	ErrInvalidStatus = errors.New("transaction status does not allow this operation")
	// ErrRedirectURLRequired is returned when payment initiation has no redirect URL.
	ErrRedirectURLRequired = errors.New("redirect url is required")
	// ErrLocalUpdateFailed is returned when the gateway created a payment but the
	// transaction could not be marked as initiated.
	ErrLocalUpdateFailed = errors.New("remote payment created but local update failed")
	// ErrGatewayUnavailable wraps every failed gateway call. No local state
	// was changed.
	ErrGatewayUnavailable = errors.New("payment gateway call failed")
	// ErrInvalidEntry is returned for financial entries that fail validation.
	ErrInvalidEntry = errors.New("invalid financial entry")
	// ErrInvalidBudget is returned for budgets that fail validation.
	ErrInvalidBudget = errors.New("invalid budget")
)
