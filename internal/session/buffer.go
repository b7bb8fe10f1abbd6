package session

import (
	"sync"

	apperrors "github.com/openclaw/chat-gateway-go/internal/errors"
	"github.com/openclaw/chat-gateway-go/internal/model"
)

// PendingBuffer holds outbound requests that arrived before the session was
// validated, in arrival order. It is bounded; when full, new requests are
// rejected (reject-new keeps the committed FIFO intact, drop-oldest would
// silently lose work already accepted).
type PendingBuffer struct {
	mu       sync.Mutex
	items    []model.OutboundRequest
	capacity int
}

func NewPendingBuffer(capacity int) *PendingBuffer {
	return &PendingBuffer{capacity: capacity}
}

// Push appends a request. Returns a BUFFER_FULL AppError when at capacity.
func (b *PendingBuffer) Push(req model.OutboundRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) >= b.capacity {
		return apperrors.BufferFull(b.capacity)
	}
	b.items = append(b.items, req)
	return nil
}

// Drain returns every buffered request in arrival order and clears the
// buffer. Each request is handed out exactly once.
func (b *PendingBuffer) Drain() []model.OutboundRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.items
	b.items = nil
	return drained
}

// Len returns the number of buffered requests.
func (b *PendingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
