package chat

import (
	"errors"
	"fmt"
)

// Error taxonomy for the chat core. Handlers map these onto wire error
// codes; anything unrecognized becomes an internal error to the sender.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrCapacityExceeded     = errors.New("room is full")
)

// ValidationError rejects a request before any persistence or broadcast.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Wire error codes.
const (
	CodeAuthenticationFailed = "authentication_failed"
	CodeNotFound             = "not_found"
	CodeForbidden            = "forbidden"
	CodeCapacityExceeded     = "capacity_exceeded"
	CodeValidation           = "validation_error"
	CodeInternal             = "internal_error"
)

// CodeOf maps an error from any core operation to its wire code.
func CodeOf(err error) string {
	var vErr *ValidationError
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return CodeAuthenticationFailed
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.As(err, &vErr):
		return CodeValidation
	default:
		return CodeInternal
	}
}
