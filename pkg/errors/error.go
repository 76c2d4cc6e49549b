// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Configuration errors (100-199): Missing credentials, bad settings, failed startup fetches
//   - Request errors (200-299): Invalid parameters, unsupported symbols, unknown orders
//   - Upstream errors (300-399): Exchange error codes, transport failures and timeouts
//   - Data shape errors (400-499): Expected fields missing from exchange responses
//   - Market data errors (500-599): Prices that are not known yet
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidParameter, "size must be positive")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeUnsupportedSymbol, "no trading rule for %s", symbol)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeUpstream, "failed to fetch positions", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeUpstreamTimeout) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsConfiguration reports whether err belongs to the configuration category.
// Configuration errors must stop the process before it serves traffic.
func IsConfiguration(err error) bool {
	code := GetCode(err)

	return code >= 100 && code < 200
}

// IsUpstream reports whether err was caused by the exchange or the transport to it.
func IsUpstream(err error) bool {
	code := GetCode(err)

	return code >= 300 && code < 400
}

// Message returns the caller-facing message of err. For coded errors this is the
// message without the numeric prefix, so exchange rejections reach the caller verbatim.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}

	return err.Error()
}
