package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/chat-gateway-go/internal/errors"
	"github.com/openclaw/chat-gateway-go/internal/model"
)

func TestPendingBuffer(t *testing.T) {
	t.Run("drains in arrival order", func(t *testing.T) {
		buf := NewPendingBuffer(10)
		for i := 0; i < 3; i++ {
			err := buf.Push(model.OutboundRequest{Phone: fmt.Sprintf("551198888777%d", i)})
			require.NoError(t, err)
		}
		assert.Equal(t, 3, buf.Len())

		drained := buf.Drain()
		require.Len(t, drained, 3)
		assert.Equal(t, "5511988887770", drained[0].Phone)
		assert.Equal(t, "5511988887771", drained[1].Phone)
		assert.Equal(t, "5511988887772", drained[2].Phone)
	})

	t.Run("drain clears the buffer", func(t *testing.T) {
		buf := NewPendingBuffer(10)
		require.NoError(t, buf.Push(model.OutboundRequest{Phone: "5511988887777"}))

		assert.Len(t, buf.Drain(), 1)
		assert.Equal(t, 0, buf.Len())
		assert.Empty(t, buf.Drain())
	})

	t.Run("rejects new requests when full", func(t *testing.T) {
		buf := NewPendingBuffer(2)
		require.NoError(t, buf.Push(model.OutboundRequest{Phone: "5511988887770"}))
		require.NoError(t, buf.Push(model.OutboundRequest{Phone: "5511988887771"}))

		err := buf.Push(model.OutboundRequest{Phone: "5511988887772"})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeBufferFull, apperrors.GetCode(err))

		// The rejected request must not displace accepted ones.
		drained := buf.Drain()
		require.Len(t, drained, 2)
		assert.Equal(t, "5511988887770", drained[0].Phone)
		assert.Equal(t, "5511988887771", drained[1].Phone)
	})
}
