// Package dErrors defines the typed error vocabulary shared by domain
// services. Services return these instead of raw errors so transport layers
// can map outcomes to status codes without string matching.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code classifies a domain error. Codes are wire-stable snake_case strings
// and double as the "error" field of HTTP error envelopes.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeInvariantViolation Code = "invariant_violation"

	// Account lifecycle codes.
	CodeDuplicateEmail     Code = "duplicate_email"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeNotConfirmed       Code = "not_confirmed"
	CodeLockedOut          Code = "locked_out"
	CodeInvalidToken       Code = "invalid_token"
	CodeSamePassword       Code = "same_password"
	CodeWrongOldPassword   Code = "wrong_old_password"
	CodeNotificationFailed Code = "notification_failed"

	// Geo hierarchy codes.
	CodeHierarchyMismatch Code = "hierarchy_mismatch"
)

// DomainError carries a code, a human-readable message and an optional cause.
type DomainError struct {
	Code    Code
	Message string
	// RetryAfter is set only for time-bounded denials (locked_out). It is
	// recomputed by the service on every call, never cached.
	RetryAfter time.Duration
	cause      error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.cause }

// New creates a DomainError with the given code and message.
func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Newf creates a DomainError with a formatted message.
func Newf(code Code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, cause: err}
}

// NewLockedOut builds a locked_out error carrying the remaining wait time.
func NewLockedOut(remaining time.Duration) *DomainError {
	if remaining < 0 {
		remaining = 0
	}
	return &DomainError{
		Code:       CodeLockedOut,
		Message:    fmt.Sprintf("account is locked, retry in %s", remaining.Round(time.Second)),
		RetryAfter: remaining,
	}
}

// Is reports whether err is (or wraps) a DomainError with the given code.
func Is(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// unclassified errors.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// RetryAfterOf returns the remaining lockout duration carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var de *DomainError
	if errors.As(err, &de) && de.RetryAfter > 0 {
		return de.RetryAfter, true
	}
	return 0, false
}

// ToHTTPStatus maps a code to the HTTP status the transport layer should use.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeSamePassword, CodeHierarchyMismatch:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateEmail:
		return http.StatusConflict
	case CodeInvalidCredentials, CodeInvalidToken, CodeWrongOldPassword:
		return http.StatusUnauthorized
	case CodeNotConfirmed:
		return http.StatusForbidden
	case CodeLockedOut:
		return http.StatusTooManyRequests
	case CodeNotificationFailed:
		return http.StatusBadGateway
	case CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
