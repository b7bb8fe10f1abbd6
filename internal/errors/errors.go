package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Send authorization
	ErrCodeNotValidated     ErrorCode = "NOT_VALIDATED"
	ErrCodeNoIdentity       ErrorCode = "NO_IDENTITY"
	ErrCodeIdentityMismatch ErrorCode = "IDENTITY_MISMATCH"
	ErrCodeInvalidRecipient ErrorCode = "INVALID_RECIPIENT"

	// Delivery
	ErrCodeEmptyMessage ErrorCode = "EMPTY_MESSAGE"
	ErrCodeSendFailed   ErrorCode = "SEND_FAILED"
	ErrCodeBufferFull   ErrorCode = "BUFFER_FULL"

	// Broker
	ErrCodeBrokerUnavailable ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeInvalidPayload    ErrorCode = "INVALID_PAYLOAD"

	// Pairing
	ErrCodePairingExpired ErrorCode = "PAIRING_EXPIRED"
	ErrCodePairingFailed  ErrorCode = "PAIRING_FAILED"

	// Callback
	ErrCodeCallbackFailed ErrorCode = "CALLBACK_FAILED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that carries a machine-readable reason code
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func NotValidated() *AppError {
	return New(ErrCodeNotValidated, "Session is not validated")
}

func NoIdentity() *AppError {
	return New(ErrCodeNoIdentity, "No connected identity recorded")
}

func IdentityMismatch(recorded, live string) *AppError {
	return New(ErrCodeIdentityMismatch, "Live identity does not match connected identity").
		WithDetails(map[string]string{"recorded": recorded, "live": live})
}

func InvalidRecipient(raw string) *AppError {
	return New(ErrCodeInvalidRecipient, fmt.Sprintf("Recipient %q does not normalize to a plausible number", raw))
}

func EmptyMessage() *AppError {
	return New(ErrCodeEmptyMessage, "Rendered message is empty")
}

func SendFailed(attempts int, cause error) *AppError {
	return Wrap(ErrCodeSendFailed, fmt.Sprintf("Send failed after %d attempts", attempts), cause)
}

func BufferFull(capacity int) *AppError {
	return New(ErrCodeBufferFull, fmt.Sprintf("Pending buffer is full (capacity %d)", capacity))
}

func BrokerUnavailable(cause error) *AppError {
	return Wrap(ErrCodeBrokerUnavailable, "Broker connection unavailable", cause)
}

func InvalidPayload(cause error) *AppError {
	return Wrap(ErrCodeInvalidPayload, "Queue payload could not be decoded", cause)
}

func PairingExpired() *AppError {
	return New(ErrCodePairingExpired, "Pairing artifact has expired")
}

func PairingFailed(reason string) *AppError {
	return New(ErrCodePairingFailed, fmt.Sprintf("Pairing failed: %s", reason))
}

func CallbackFailed(reason string) *AppError {
	return New(ErrCodeCallbackFailed, fmt.Sprintf("Failed to send callback: %s", reason))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
