package errors

import (
	"errors"
	"fmt"
)

var (
	// Order errors
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStatusConflict         = errors.New("order status changed concurrently")
	ErrAlreadyProcessed       = errors.New("order already processed")
	ErrOrderAlreadyPaid       = errors.New("order already paid")
	ErrMissingTransactionRef  = errors.New("order has no transaction reference")

	// Reference errors
	ErrInvalidReference = errors.New("invalid transaction reference")
	ErrForeignReference = errors.New("transaction reference was not generated by this store")

	// Configuration errors
	ErrPaymentMethodUnavailable = errors.New("payment method unavailable")

	// Provider errors
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("payment rejected by provider")
	ErrProviderTimeout     = errors.New("provider request timeout")

	// Authentication errors
	ErrUnauthenticated = errors.New("webhook signature does not match")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNonceInvalid    = errors.New("missing or invalid nonce")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ConfigurationError means the integration is not configured well enough to
// take a payment. It is shown to the merchant and leaves the order untouched.
type ConfigurationError struct {
	Setting string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Setting)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrPaymentMethodUnavailable
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(setting, message string) *ConfigurationError {
	return &ConfigurationError{Setting: setting, Message: message}
}

// TransportError is a network or HTTP level failure talking to the processor.
type TransportError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is, or wraps, a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// VerificationMismatch describes a processor record whose amount or currency
// disagrees with the order. It is a policy outcome rather than a failure.
type VerificationMismatch struct {
	TxRef            string
	ClaimedAmount    string
	ClaimedCurrency  string
	ExpectedAmount   string
	ExpectedCurrency string
}

func (e *VerificationMismatch) Error() string {
	return fmt.Sprintf("payment %s: paid %s %s, expected %s %s",
		e.TxRef, e.ClaimedCurrency, e.ClaimedAmount, e.ExpectedCurrency, e.ExpectedAmount)
}

// IndeterminateState is returned when a re-query produced a response but no
// usable transaction status.
type IndeterminateState struct {
	TxRef  string
	Reason string
}

func (e *IndeterminateState) Error() string {
	return fmt.Sprintf("could not determine status of %s: %s", e.TxRef, e.Reason)
}
