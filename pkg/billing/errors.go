package billing

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the tenant has no subscription record
var ErrNotFound = errors.New("subscription not found")

// NotFoundError reports an unknown tenant
type NotFoundError struct {
	TenantID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("subscription not found for tenant %d", e.TenantID)
}

// Is lets errors.Is(err, ErrNotFound) match
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports bad or missing input on a single field
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError with a formatted message
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// PersistenceError reports a failed read or commit against the store
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence checks if an error is a persistence error
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// classify leaves domain errors untouched and wraps anything else as a
// persistence failure for op.
func classify(op string, err error) error {
	if err == nil || IsNotFound(err) || IsValidation(err) || IsPersistence(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
