// Package apperr defines the domain error taxonomy shared by the store,
// service, and HTTP layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrCodeNotFound       = errors.New("code not found")
	ErrTxnNotFound        = errors.New("transaction not found")
	ErrInsufficientFunds  = errors.New("insufficient credits")
	ErrCodeAlreadyClaimed = errors.New("code already claimed")
	// ErrDuplicateRefund never reaches callers: the service resolves it to
	// the original refund's result (idempotent no-op).
	ErrDuplicateRefund = errors.New("refund already issued for transaction")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientFundsError carries the shortfall numbers for the 402 envelope.
// errors.Is(err, ErrInsufficientFunds) matches it.
type InsufficientFundsError struct {
	Operation string
	Required  int64
	Current   int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient credits for %s: have %d, need %d", e.Operation, e.Current, e.Required)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

func (e *InsufficientFundsError) Deficit() int64 { return e.Required - e.Current }

// UpstreamError wraps a generation-provider failure. The provider's status
// and message pass through to the caller; nothing was billed.
type UpstreamError struct {
	Status  int
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream provider failed (%d): %s", e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrCodeNotFound) || errors.Is(err, ErrTxnNotFound)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsInsufficientFunds(err error) bool { return errors.Is(err, ErrInsufficientFunds) }
