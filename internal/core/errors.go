// Package core provides the error taxonomy, engine catalogue and context helpers
// shared by the TextSynth client packages.
package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeConfiguration indicates a missing or invalid builder field.
	// No network call was made.
	ErrorTypeConfiguration ErrorType = "configuration_error"
	// ErrorTypeNetwork indicates a transport-level failure (DNS, TLS, reset, timeout)
	ErrorTypeNetwork ErrorType = "network_error"
	// ErrorTypeHTTPStatus indicates a non-2xx response from the API
	ErrorTypeHTTPStatus ErrorType = "http_status_error"
	// ErrorTypeDecode indicates a response body that does not match the expected schema
	ErrorTypeDecode ErrorType = "decode_error"
)

// Error is the single error type returned by every client operation.
// Callers switch on Type (or use the Is* helpers) to decide remediation.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	// StatusCode is set for ErrorTypeHTTPStatus only
	StatusCode int `json:"status_code,omitempty"`
	// Body holds the raw response body for HTTP status and decode errors
	Body []byte `json:"-"`
	// Timeout is set when a network error was caused by a deadline
	Timeout bool `json:"timeout,omitempty"`
	// Original error for debugging
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Type == ErrorTypeHTTPStatus {
		return fmt.Sprintf("%s: %s (status %d)", e.Type, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the call failed because a deadline was exceeded.
func (e *Error) IsTimeout() bool {
	return e.Type == ErrorTypeNetwork && e.Timeout
}

// IsRateLimited reports whether the API answered 429.
func (e *Error) IsRateLimited() bool {
	return e.Type == ErrorTypeHTTPStatus && e.StatusCode == http.StatusTooManyRequests
}

// IsRetryable reports whether repeating the same call may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork:
		return true
	case ErrorTypeHTTPStatus:
		return IsRetryableStatus(e.StatusCode)
	default:
		return false
	}
}

// IsRetryableStatus returns true for rate limits and transient gateway failures.
func IsRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusGatewayTimeout
}

// NewConfigurationError creates an error for a missing or invalid builder field.
func NewConfigurationError(message string) *Error {
	return &Error{
		Type:    ErrorTypeConfiguration,
		Message: message,
	}
}

// NewConfigurationErrorf is NewConfigurationError with formatting.
func NewConfigurationErrorf(format string, args ...any) *Error {
	return NewConfigurationError(fmt.Sprintf(format, args...))
}

// NewNetworkError creates a transport failure error. Deadline and net timeouts
// are flagged so IsTimeout reports them.
func NewNetworkError(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeNetwork,
		Message: message,
		Timeout: isTimeout(err),
		Err:     err,
	}
}

// NewHTTPStatusError creates an error for a non-2xx response. The body is kept
// verbatim; the message is the API's own error text when it can be found.
func NewHTTPStatusError(statusCode int, body []byte) *Error {
	return &Error{
		Type:       ErrorTypeHTTPStatus,
		Message:    errorMessageFromBody(statusCode, body),
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewDecodeError creates an error for a body that could not be decoded.
func NewDecodeError(message string, body []byte, err error) *Error {
	return &Error{
		Type:    ErrorTypeDecode,
		Message: message,
		Body:    body,
		Err:     err,
	}
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ErrorTypeOf returns the type of err, or "" when err is not a client error.
func ErrorTypeOf(err error) ErrorType {
	if e, ok := AsError(err); ok {
		return e.Type
	}
	return ""
}

// errorMessageFromBody pulls the human readable message out of an error body.
// The API answers {"error": "..."}; OpenAI-style {"error": {"message": "..."}}
// is accepted too.
func errorMessageFromBody(statusCode int, body []byte) string {
	if gjson.ValidBytes(body) {
		result := gjson.ParseBytes(body)
		if msg := result.Get("error.message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
		if msg := result.Get("error"); msg.Type == gjson.String && msg.String() != "" {
			return msg.String()
		}
		if msg := result.Get("message"); msg.Type == gjson.String && msg.String() != "" {
			return msg.String()
		}
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return trimmed
	}
	if text := http.StatusText(statusCode); text != "" {
		return strings.ToLower(text)
	}
	return "unexpected status"
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
