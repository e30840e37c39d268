package types

import (
	"fmt"
	"time"
)

// ErrorCode is a transport-agnostic error kind (spec.md §7).
type ErrorCode string

const (
	// ErrValidation marks bad input: empty content, content over the
	// length cap, unknown role, too many tags. Not retried.
	ErrValidation ErrorCode = "VALIDATION"
	// ErrNotFound marks a reference to a nonexistent id. Deletes
	// tolerate it (no-op); reads surface it.
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrUnavailable marks a storage timeout or connection failure.
	// Retried by the resilient wrapper; surfaced only if retries and
	// fallback both fail.
	ErrUnavailable ErrorCode = "UNAVAILABLE"
	// ErrCapabilityMissing marks an operation a driver cannot perform
	// (e.g. vector search on a driver without a vector index). The
	// orchestrator treats it as a partial read and continues.
	ErrCapabilityMissing ErrorCode = "CAPABILITY_MISSING"
	// ErrConflict marks a rolled-back consolidation cycle.
	ErrConflict ErrorCode = "CONFLICT"
	// ErrInternal marks an unexpected invariant violation.
	ErrInternal ErrorCode = "INTERNAL"
)

// Error is the engine's single structured error type.
type Error struct {
	Code ErrorCode `json:"code"`
	Message string `json:"message"`
	// Retryable hints to the resilient wrapper whether retrying this
	// error is worthwhile.
	Retryable bool `json:"retryable"`
	// RetryAfter is a hint surfaced to Consolidate API callers on
	// ErrConflict (spec.md §7).
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Cause      error         `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause attaches an underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error retryable and returns the receiver.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithRetryAfter sets a retry-after hint and returns the receiver.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the ErrorCode from err, or "" if err is not an
// *Error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
