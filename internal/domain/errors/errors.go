// Package errors provides standardized error types for the domain layer.
// These errors provide consistent error handling across all services
// and enable proper error categorization for HTTP responses.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates a conflict with existing state, e.g. a duplicate
	// transaction signature or an already-claimed withdrawal request
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates invalid input was provided
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request is not authorized
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotConfigured indicates a feature is disabled because required
	// configuration (seed, signing keys, endpoints) is absent
	ErrNotConfigured = errors.New("feature not configured")

	// ErrInsufficientFunds indicates the ledger balance or custody-side
	// liquidity cannot cover the requested amount
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrChainUnavailable indicates an RPC or confirmation failure. The
	// on-chain outcome is unknown, not necessarily absent.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrPriceUnavailable indicates the oracle has no fresh rate for an asset
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrServiceUnavailable indicates the service is temporarily unavailable
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// IsRetryable reports whether retrying the operation can succeed
func (e *DomainError) IsRetryable() bool {
	return e.Retryable
}

// WithDetails adds details to the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", resource),
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ConflictError creates a conflict error
func ConflictError(resource, reason string) *DomainError {
	return &DomainError{
		Err:     ErrConflict,
		Code:    "CONFLICT",
		Message: fmt.Sprintf("conflict with %s: %s", resource, reason),
	}
}

// ValidationError creates a validation error
func ValidationError(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// NotConfiguredError creates an error for a feature disabled by configuration
func NotConfiguredError(feature string) *DomainError {
	return &DomainError{
		Err:     ErrNotConfigured,
		Code:    "NOT_CONFIGURED",
		Message: fmt.Sprintf("%s is not configured", feature),
	}
}

// InsufficientFundsError creates an insufficient funds error. The message is
// intentionally generic so custody-side balance detail never leaks to callers.
func InsufficientFundsError(message string) *DomainError {
	return &DomainError{
		Err:     ErrInsufficientFunds,
		Code:    "INSUFFICIENT_FUNDS",
		Message: message,
	}
}

// ChainUnavailableError wraps an RPC/confirmation failure. Retryable because
// the underlying transfer may still land.
func ChainUnavailableError(operation string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrChainUnavailable,
		Code:      "CHAIN_UNAVAILABLE",
		Message:   fmt.Sprintf("chain operation %s failed", operation),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

// PriceUnavailableError creates a price unavailable error for one asset
func PriceUnavailableError(asset string) *DomainError {
	return &DomainError{
		Err:       ErrPriceUnavailable,
		Code:      "PRICE_UNAVAILABLE",
		Message:   fmt.Sprintf("no fresh price for %s", asset),
		Retryable: true,
	}
}

// ServiceUnavailableError creates a service unavailable error
func ServiceUnavailableError(service string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrServiceUnavailable,
		Code:      "SERVICE_UNAVAILABLE",
		Message:   fmt.Sprintf("%s is temporarily unavailable", service),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

// InternalError creates an internal error
func InternalError(message string, err error) *DomainError {
	de := &DomainError{
		Err:     ErrInternal,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

// Error helpers for common patterns

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInvalidInput checks if an error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotConfigured checks if an error is a configuration error
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsInsufficientFunds checks if an error is an insufficient funds error
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsChainUnavailable checks if an error is a chain availability error
func IsChainUnavailable(err error) bool {
	return errors.Is(err, ErrChainUnavailable)
}

// IsPriceUnavailable checks if an error is a price availability error
func IsPriceUnavailable(err error) bool {
	return errors.Is(err, ErrPriceUnavailable)
}

// IsServiceUnavailable checks if an error is a temporary availability error
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "UNKNOWN_ERROR"
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
