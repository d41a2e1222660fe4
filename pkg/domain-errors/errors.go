// Package domainerrors carries the registry's error taxonomy from services to the HTTP boundary.
//
// Services return *Error values (usually by wrapping a store or sentinel error) and handlers
// translate the Code into a status with shared.WriteError. Reason is the numeric code placed in
// the response body; it defaults to ReasonGeneric for client errors and ReasonInternal otherwise.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for the transport boundary.
type Code string

const (
	CodeBadRequest Code = "bad_request"
	CodeValidation Code = "validation_error"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeForbidden  Code = "forbidden"
	CodeTimeout    Code = "timeout"
	CodeTooLarge   Code = "payload_too_large"
	CodeInternal   Code = "internal_error"
)

// Body reason codes.
const (
	ReasonInternal          = 0
	ReasonGeneric           = 1
	ReasonUnknownName       = 2
	ReasonSecondaryUIN      = 3
	ReasonDocumentParameter = 4
	ReasonSchema            = 400
)

// Error is a domain error with a transport-neutral code.
type Error struct {
	Code    Code
	Reason  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error with the default reason for its code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Reason: defaultReason(code), Message: message}
}

// Newf is New with a format string.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code and a caller-facing message to err.
// The wrapped error text is kept for logging but never written to a response.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Reason: defaultReason(code), Message: message, Err: err}
}

// WithReason overrides the body reason code.
func (e *Error) WithReason(reason int) *Error {
	e.Reason = reason
	return e
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is reports whether the outermost *Error in err's chain carries code.
func Is(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

func defaultReason(code Code) int {
	switch code {
	case CodeInternal, CodeTimeout:
		return ReasonInternal
	case CodeValidation:
		return ReasonSchema
	default:
		return ReasonGeneric
	}
}
