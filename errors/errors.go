// Package errors provides standardized error handling patterns for the bridge
// protocol core. It includes the protocol error taxonomy (security, validation,
// timeout, transport), standard error variables, and helper functions for
// consistent error wrapping and classification across the system.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a protocol error for handling purposes.
type Kind int

const (
	// KindSecurity covers trust-boundary violations: origin not allow-listed,
	// rate limit exceeded, size ceiling exceeded, declared-origin spoofing.
	KindSecurity Kind = iota
	// KindValidation covers inbound data that fails envelope or response
	// schema validation.
	KindValidation
	// KindTimeout covers a pending request whose timer elapsed before a
	// matching response arrived.
	KindTimeout
	// KindTransport covers send attempts against an unavailable or torn-down
	// peer context.
	KindTransport
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSecurity:
		return "security"
	case KindValidation:
		return "validation"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("bridge already started")
	ErrNotStarted     = errors.New("bridge not started")
	ErrAlreadyStopped = errors.New("bridge already stopped")

	// Security errors
	ErrOriginNotAllowed = errors.New("origin not in allow-list")
	ErrOriginMismatch   = errors.New("declared origin does not match transport origin")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrMessageTooLarge  = errors.New("message exceeds size ceiling")

	// Validation errors
	ErrInvalidEnvelope = errors.New("invalid envelope format")
	ErrInvalidResponse = errors.New("invalid response format")
	ErrInvalidPayload  = errors.New("invalid payload")

	// Transport errors
	ErrNotConnected   = errors.New("peer context not connected")
	ErrListenerClosed = errors.New("transport listener closed")

	// Correlation errors
	ErrRequestTimeout = errors.New("request timeout")
	ErrRequestFailed  = errors.New("request failed")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ProtocolError wraps an error with its protocol classification and the
// component/operation context where it was raised.
type ProtocolError struct {
	Kind      Kind
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (pe *ProtocolError) Error() string {
	if pe.Message != "" {
		return pe.Message
	}
	return pe.Err.Error()
}

// Unwrap returns the underlying error.
func (pe *ProtocolError) Unwrap() error {
	return pe.Err
}

// TimeoutError is raised when a pending request's timer elapses before a
// matching response arrives. It carries the elapsed timeout so callers and
// logs can name the duration that was exceeded.
type TimeoutError struct {
	Timeout time.Duration
}

// Error implements the error interface.
func (te *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", te.Timeout)
}

// Is reports whether target matches the standard request-timeout sentinel,
// so errors.Is(err, ErrRequestTimeout) works on TimeoutError values.
func (te *TimeoutError) Is(target error) bool {
	return target == ErrRequestTimeout
}

// NewTimeout creates a TimeoutError classified as KindTimeout.
func NewTimeout(component, operation string, timeout time.Duration) error {
	te := &TimeoutError{Timeout: timeout}
	return &ProtocolError{
		Kind:      KindTimeout,
		Err:       te,
		Message:   fmt.Sprintf("%s.%s: %s", component, operation, te.Error()),
		Component: component,
		Operation: operation,
	}
}

// IsSecurity checks if an error is a security violation.
func IsSecurity(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind == KindSecurity
	}

	return errors.Is(err, ErrOriginNotAllowed) ||
		errors.Is(err, ErrOriginMismatch) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrMessageTooLarge)
}

// IsValidation checks if an error is a schema or shape validation failure.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind == KindValidation
	}

	return errors.Is(err, ErrInvalidEnvelope) ||
		errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrInvalidPayload)
}

// IsTimeout checks if an error is a request timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind == KindTimeout
	}

	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}

	return errors.Is(err, ErrRequestTimeout)
}

// IsTransport checks if an error is a transport availability failure.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind == KindTransport
	}

	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrListenerClosed)
}

// IsRetryable reports whether a failed request operation is worth retrying.
// Timeouts and transport availability failures are retryable; security and
// validation failures are not.
func IsRetryable(err error) bool {
	return IsTimeout(err) || IsTransport(err)
}

// Classify returns the error kind for an error. Unknown errors default to
// KindTransport, the only class the caller can act on (retry).
func Classify(err error) Kind {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	switch {
	case IsSecurity(err):
		return KindSecurity
	case IsValidation(err):
		return KindValidation
	case IsTimeout(err):
		return KindTimeout
	default:
		return KindTransport
	}
}

// newClassified creates a new classified error.
// Internal helper - use WrapSecurity(), WrapValidation(), or WrapTransport() instead.
func newClassified(kind Kind, err error, component, operation, message string) *ProtocolError {
	return &ProtocolError{
		Kind:      kind,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapSecurity wraps an error as a security violation with context.
func WrapSecurity(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(KindSecurity, wrappedErr, component, method, wrappedErr.Error())
}

// WrapValidation wraps an error as a validation failure with context.
func WrapValidation(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(KindValidation, wrappedErr, component, method, wrappedErr.Error())
}

// WrapTransport wraps an error as a transport failure with context.
func WrapTransport(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(KindTransport, wrappedErr, component, method, wrappedErr.Error())
}
