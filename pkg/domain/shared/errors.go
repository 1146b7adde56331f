// Package shared provides shared domain types and utilities.
package shared

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternal      = errors.New("internal error")
	ErrValidation    = errors.New("validation error")

	// ErrLeaseHeld is returned when an ingestion lease could not be
	// acquired within the retry policy.
	ErrLeaseHeld = errors.New("lease held by another process")

	// ErrAlreadyStored is returned when a scan already has findings and
	// re-ingestion is skipped.
	ErrAlreadyStored = errors.New("scan already has stored findings")

	// ErrConfiguration indicates a programming mistake detected at
	// construction time, never a runtime condition.
	ErrConfiguration = errors.New("configuration error")
)

// DomainError represents a domain-specific error.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError.
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyStored checks if the error is an already-stored guard failure.
func IsAlreadyStored(err error) bool {
	return errors.Is(err, ErrAlreadyStored)
}

// IsLeaseHeld checks if the error is a lease contention failure.
func IsLeaseHeld(err error) bool {
	return errors.Is(err, ErrLeaseHeld)
}

// IsConfiguration checks if the error is a construction-time configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
