// Package relayerr defines the error taxonomy reported to connected
// clients. Every per-message failure is mapped to one of these codes at
// the dispatch boundary and returned as an error event to the
// originating connection only.
package relayerr

import (
	"errors"
	"fmt"
)

// Code identifies a failure class on the wire.
type Code string

const (
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeMissingField         Code = "MISSING_REQUIRED_FIELD"
	CodeContentTooLong       Code = "CONTENT_TOO_LONG"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"
	CodeUnknownMessageType   Code = "UNKNOWN_MESSAGE_TYPE"
	CodeInvalidJSON          Code = "INVALID_JSON"
	CodeDependencyFailure    Code = "DEPENDENCY_FAILURE"
)

// Error is a classified relay failure. Retryable is true only for
// transient dependency failures; everything else is a terminal answer
// for the request that caused it.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a client may retry the failed request.
func (e *Error) Retryable() bool { return e.Code == CodeDependencyFailure }

// E builds a classified error.
func E(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap classifies an underlying error.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Dependency wraps a failed store or transport call as a retryable
// dependency failure.
func Dependency(op string, err error) *Error {
	return &Error{Code: CodeDependencyFailure, Message: op + " failed", Err: err}
}

// From maps any error onto the taxonomy. Already-classified errors pass
// through; everything else is treated as a dependency failure.
func From(err error) *Error {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr
	}
	return &Error{Code: CodeDependencyFailure, Message: err.Error(), Err: err}
}
