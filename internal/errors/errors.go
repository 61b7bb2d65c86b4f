// Package errors provides standardized domain errors with codes for the BookForge client.
//
// Usage:
//
//	// In the transport/session layers - return typed errors
//	if resp.StatusCode != http.StatusOK {
//	    return errors.Transportf("stream request failed with status %d", resp.StatusCode)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrInsufficientCredits) {
//	    // offer recharge instead of retry
//	}
//
//	// Or use the Code directly for switch statements
//	var clientErr *errors.Error
//	if errors.As(err, &clientErr) {
//	    switch clientErr.Code {
//	    case errors.CodeInsufficientCredits:
//	        ...
//	    case errors.CodeTransport:
//	        ...
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the client.
const (
	// CodeTransport covers network failures and non-2xx responses from the
	// backend. Terminal for the current stream attempt.
	CodeTransport Code = "TRANSPORT"
	// CodeStreamClosed is returned when the event stream ends before the
	// session reaches a terminal event. The persisted snapshot stays
	// resumable.
	CodeStreamClosed Code = "STREAM_CLOSED"
	// CodeStreamActive is returned when a second stream is requested while
	// one is already running on the same transport.
	CodeStreamActive Code = "STREAM_ACTIVE"
	// CodeSessionNotFound means the backend does not know the session ID.
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	// CodeInsufficientCredits is the structured credit-shortage failure. It
	// carries required/available/needed counts in Details and drives a
	// recharge flow, not a retry flow.
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
	// CodeGenerationFailed is the generic backend-reported generation error.
	CodeGenerationFailed Code = "GENERATION_FAILED"
	// CodeCancelled means the job was cancelled by the caller.
	CodeCancelled Code = "CANCELLED"
	// CodeValidation covers invalid generation parameters.
	CodeValidation Code = "VALIDATION"
	// CodeInternal covers everything that should not happen.
	CodeInternal Code = "INTERNAL"
)

// Error is a client error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrTransport           = &Error{Code: CodeTransport, Message: "transport failure"}
	ErrStreamClosed        = &Error{Code: CodeStreamClosed, Message: "stream closed"}
	ErrStreamActive        = &Error{Code: CodeStreamActive, Message: "stream already active"}
	ErrSessionNotFound     = &Error{Code: CodeSessionNotFound, Message: "session not found"}
	ErrInsufficientCredits = &Error{Code: CodeInsufficientCredits, Message: "insufficient credits"}
	ErrGenerationFailed    = &Error{Code: CodeGenerationFailed, Message: "generation failed"}
	ErrCancelled           = &Error{Code: CodeCancelled, Message: "cancelled"}
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal            = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// Transport creates a transport error.
func Transport(msg string) *Error {
	return &Error{Code: CodeTransport, Message: msg}
}

// Transportf creates a transport error with formatted message.
func Transportf(format string, args ...any) *Error {
	return &Error{Code: CodeTransport, Message: fmt.Sprintf(format, args...)}
}

// StreamClosed creates an error for a stream that ended without reaching a
// terminal event.
func StreamClosed(msg string) *Error {
	return &Error{Code: CodeStreamClosed, Message: msg}
}

// SessionNotFound creates a session not found error.
func SessionNotFound(msg string) *Error {
	return &Error{Code: CodeSessionNotFound, Message: msg}
}

// SessionNotFoundf creates a session not found error with formatted message.
func SessionNotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeSessionNotFound, Message: fmt.Sprintf(format, args...)}
}

// InsufficientCredits creates a credit-shortage error carrying the counts the
// backend reported. Details holds the structured shortage so the caller can
// render a recharge prompt.
func InsufficientCredits(msg string, details any) *Error {
	return &Error{Code: CodeInsufficientCredits, Message: msg, Details: details}
}

// GenerationFailed creates a generic generation failure error.
func GenerationFailed(msg string) *Error {
	return &Error{Code: CodeGenerationFailed, Message: msg}
}

// Cancelled creates a cancellation error.
func Cancelled(msg string) *Error {
	return &Error{Code: CodeCancelled, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
