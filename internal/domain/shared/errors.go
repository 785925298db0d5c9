// Package shared contains common domain types, errors and events that are
// used across all progression domain packages. This package has zero external
// dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Configuration errors
	ErrConfiguration = errors.New("configuration error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "points", "level", "badge"
	Op      string // Operation that failed, e.g., "AddPoints", "Evaluate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progression errors. These are the values callers compare against with
// errors.Is; operations return them wrapped with their own Op.
var (
	ErrInvalidAmount       = NewDomainError("progression", "Validate", ErrInvalidInput, "invalid amount")
	ErrInsufficientBalance = NewDomainError("points", "Debit", ErrInvalidState, "insufficient balance")
	ErrUserNotFound        = NewDomainError("progression", "Find", ErrNotFound, "user not found")
	ErrInvalidUserID       = NewDomainError("progression", "Validate", ErrInvalidID, "user ID cannot be empty")
	ErrReasonTooLong       = NewDomainError("xp", "Validate", ErrValueOutOfRange, "reason exceeds 255 characters")
	ErrEmptyRewardLabel    = NewDomainError("points", "Redeem", ErrEmptyValue, "reward label cannot be empty")
	ErrInvalidRewardType   = NewDomainError("level", "AddReward", ErrInvalidInput, "unknown reward type")
	ErrBadgeNotFound       = NewDomainError("badge", "Find", ErrNotFound, "badge definition not found")
	ErrNonMonotonicTiers   = NewDomainError("badge", "Validate", ErrConfiguration, "tier thresholds must satisfy bronze <= silver <= gold")
	ErrInvalidPage         = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "page must be >= 1 and page size between 1 and 100")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsInsufficientBalance checks if a debit or redemption was refused.
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsConcurrentModification reports a lost compare-and-swap.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsConfiguration checks if the error came from invalid static configuration.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// Wrap attaches the failing operation to one of the progression errors above
// while keeping errors.Is matching against both the sentinel and its kind.
func Wrap(sentinel *DomainError, op string, format string, args ...any) *DomainError {
	return &DomainError{
		Domain:  sentinel.Domain,
		Op:      op,
		Kind:    sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}
