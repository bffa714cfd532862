package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies the failures that can occur during a run
type ErrorType string

const (
	// ErrorTypeMalformedPayload marks a raw record that could not be
	// normalized. Contained per record, never aborts a run.
	ErrorTypeMalformedPayload ErrorType = "malformed_payload"
	// ErrorTypeBackendUnavailable marks a fetch that failed after all
	// retries. Terminates the run, already-emitted posts stand.
	ErrorTypeBackendUnavailable ErrorType = "backend_unavailable"
	// ErrorTypeStoreFailure marks a persistence error. Terminates the run
	// immediately; committed upserts remain valid.
	ErrorTypeStoreFailure ErrorType = "store_failure"
	// ErrorTypeThreadExpansion marks a failed conversation fetch. Warning
	// only, the run continues.
	ErrorTypeThreadExpansion ErrorType = "thread_expansion"
	// ErrorTypeNotFound marks a view query for a never-scraped target.
	ErrorTypeNotFound ErrorType = "not_found"

	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a classified xdumper error
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Newf creates a classified error with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping an underlying cause
func Wrap(t ErrorType, err error, msg string) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

// Is reports whether err carries the given error type anywhere in its chain
func Is(err error, t ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// TypeOf returns the classified type of an error, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeMalformedPayload, ErrorTypeStoreFailure:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
