// ============================================================================
// FILE: internal/application/common/errors.go
// PURPOSE: Application error taxonomy shared by all core components
// ============================================================================

package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error for retry and HTTP mapping decisions.
type ErrorKind string

const (
	KindBadRequest ErrorKind = "bad_request"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindTransient  ErrorKind = "transient"
	KindPermanent  ErrorKind = "permanent"
)

// AppError carries a machine code, a human-readable message and a retry hint.
type AppError struct {
	Kind      ErrorKind
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// BadRequest builds a validation error. Never retried.
func BadRequest(code, message string) *AppError {
	return &AppError{Kind: KindBadRequest, Code: code, Message: message}
}

// NotFound builds a missing-entity error.
func NotFound(code, message string) *AppError {
	return &AppError{Kind: KindNotFound, Code: code, Message: message}
}

// Conflict builds a disallowed-transition error. Never retried.
func Conflict(code, message string) *AppError {
	return &AppError{Kind: KindConflict, Code: code, Message: message}
}

// Transient builds a retryable infrastructure error.
func Transient(code, message string, err error) *AppError {
	return &AppError{Kind: KindTransient, Code: code, Message: message, Retryable: true, Err: err}
}

// Permanent builds a terminal, non-retryable failure.
func Permanent(code, message string, err error) *AppError {
	return &AppError{Kind: KindPermanent, Code: code, Message: message, Err: err}
}

// AsAppError extracts an *AppError from err's chain, if any.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return false
}

// KindOf returns the error's kind, reporting unclassified errors as
// transient. Retry decisions go through IsRetryable instead, which treats
// unclassified errors as not retryable.
func KindOf(err error) ErrorKind {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Kind
	}
	return KindTransient
}

// CodeOf returns the machine code of a classified error, or "internal".
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return "internal"
}
