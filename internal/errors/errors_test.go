package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("formats code and message", func(t *testing.T) {
		err := New(ErrCodeNotValidated, "Session is not validated")
		assert.Equal(t, "NOT_VALIDATED: Session is not validated", err.Error())
	})

	t.Run("includes the cause when present", func(t *testing.T) {
		cause := errors.New("socket closed")
		err := Wrap(ErrCodeSendFailed, "Send failed", cause)
		assert.Contains(t, err.Error(), "socket closed")
		assert.Equal(t, cause, errors.Unwrap(err))
	})

	t.Run("WithCause chains the underlying error", func(t *testing.T) {
		cause := errors.New("timeout")
		err := PairingFailed("render qr").WithCause(cause)
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("WithDetails attaches structured context", func(t *testing.T) {
		err := IdentityMismatch("5511999990000", "5521888880000")
		details, ok := err.Details.(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "5511999990000", details["recorded"])
		assert.Equal(t, "5521888880000", details["live"])
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
	}{
		{"NotValidated", NotValidated(), ErrCodeNotValidated},
		{"NoIdentity", NoIdentity(), ErrCodeNoIdentity},
		{"InvalidRecipient", InvalidRecipient("abc"), ErrCodeInvalidRecipient},
		{"EmptyMessage", EmptyMessage(), ErrCodeEmptyMessage},
		{"SendFailed", SendFailed(3, errors.New("timeout")), ErrCodeSendFailed},
		{"BufferFull", BufferFull(256), ErrCodeBufferFull},
		{"BrokerUnavailable", BrokerUnavailable(errors.New("refused")), ErrCodeBrokerUnavailable},
		{"InvalidPayload", InvalidPayload(errors.New("bad json")), ErrCodeInvalidPayload},
		{"PairingExpired", PairingExpired(), ErrCodePairingExpired},
		{"CallbackFailed", CallbackFailed("status 500"), ErrCodeCallbackFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Run("AsAppError unwraps through fmt wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("deliver: %w", BufferFull(256))
		appErr, ok := AsAppError(wrapped)
		require.True(t, ok)
		assert.Equal(t, ErrCodeBufferFull, appErr.Code)
	})

	t.Run("IsAppError rejects plain errors", func(t *testing.T) {
		assert.False(t, IsAppError(errors.New("plain")))
		assert.True(t, IsAppError(NotValidated()))
	})

	t.Run("GetCode falls back to internal", func(t *testing.T) {
		assert.Equal(t, ErrCodeNotValidated, GetCode(NotValidated()))
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
	})
}
