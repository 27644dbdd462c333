// Package apierr defines the error taxonomy surfaced to callers.
//
// Validation and not-found errors are produced inside handlers before any
// external call. Upstream errors wrap AWS service failures and map to 5xx so
// synchronous callers can distinguish "fix your request" from "try again".
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a structured action error with an HTTP-equivalent status code.
type Error struct {
	Status  int
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// InvalidArguments reports missing or malformed required input.
func InvalidArguments(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "invalidArguments", Message: msg}
}

// MissingField reports a single absent required field.
func MissingField(field string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "invalidArguments", Message: fmt.Sprintf("missing required field %q", field)}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "notFound", Message: msg}
}

// Conflict reports a state transition or write the current entity state forbids.
func Conflict(msg string) *Error {
	return &Error{Status: http.StatusConflict, Code: "conflict", Message: msg}
}

// Upstream wraps a failed call to an AWS service.
func Upstream(op string, cause error) *Error {
	return &Error{Status: http.StatusBadGateway, Code: "upstreamFailure", Message: op + " failed", cause: cause}
}

// Internal reports an unexpected handler failure. The cause is logged at the
// dispatch boundary, never returned to the caller.
func Internal(cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "serverFail", Message: "internal error", cause: cause}
}

// FromError converts any error into an *Error, passing structured errors
// through and wrapping everything else as internal.
func FromError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
