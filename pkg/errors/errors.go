// Package errors provides the typed errors shared by every ticketsync
// component. A typed error classifies a failure (configuration, transport,
// data, state) so callers can decide whether to retry, warn or abort a run.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType is the category of a failure.
type ErrorType string

const (
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeConnection     ErrorType = "connection"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypePermission     ErrorType = "permission"
	ErrorTypeConfig         ErrorType = "config"
	// ErrorTypeData covers malformed API payloads and replication values.
	ErrorTypeData ErrorType = "data"
	// ErrorTypeDependency covers invalid stream selections.
	ErrorTypeDependency ErrorType = "dependency"
	// ErrorTypeState covers state load and save failures.
	ErrorTypeState ErrorType = "state"
)

// retryable lists the types a caller may retry without changing anything.
var retryable = map[ErrorType]bool{
	ErrorTypeRateLimit:  true,
	ErrorTypeTimeout:    true,
	ErrorTypeConnection: true,
}

// Error is a typed error.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error.
func New(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(errType ErrorType, format string, args ...any) *Error {
	return New(errType, fmt.Sprintf(format, args...))
}

// Wrap classifies err. Wrapping nil returns nil.
func Wrap(err error, errType ErrorType, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Type: errType, Message: message, Cause: err}
}

// TypeOf returns the type of the outermost typed error in the chain, or
// ErrorTypeInternal for untyped errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// IsRetryable reports whether the outermost typed error is transient.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && retryable[e.Type]
}

// IsType reports whether the outermost typed error in the chain is errType.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errType
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
