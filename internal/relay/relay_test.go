package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/chat-gateway-go/internal/chat"
	"github.com/openclaw/chat-gateway-go/internal/model"
)

type fakePublisher struct {
	messages []model.InboundMessage
	err      error
}

func (f *fakePublisher) PublishInbound(ctx context.Context, msg model.InboundMessage) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

type fakeArchiver struct {
	records []model.CreateInboundRecordParams
}

func (f *fakeArchiver) ArchiveInbound(ctx context.Context, params model.CreateInboundRecordParams) error {
	f.records = append(f.records, params)
	return nil
}

func selfIdentity() string { return "5511999990000" }

func textEvent() chat.MessageEvent {
	return chat.MessageEvent{
		ID:        "ext-1",
		Sender:    "11 98888-7777",
		Body:      "hello",
		Kind:      chat.KindText,
		Timestamp: time.UnixMilli(1700000000000),
	}
}

func TestRelayHandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes observed text messages with normalized sender", func(t *testing.T) {
		publisher := &fakePublisher{}
		r := New(publisher, selfIdentity, "55", nil)

		r.HandleMessage(ctx, textEvent())

		require.Len(t, publisher.messages, 1)
		msg := publisher.messages[0]
		assert.Equal(t, "ext-1", msg.ExternalMessageID)
		assert.Equal(t, "11 98888-7777", msg.From)
		assert.Equal(t, "5511988887777", msg.FromNormalized)
		assert.Equal(t, "5511999990000", msg.To)
		assert.Equal(t, "hello", msg.Body)
		assert.Equal(t, chat.KindText, msg.Type)
		assert.Equal(t, int64(1700000000000), msg.Timestamp)
		assert.False(t, msg.FromMe)
	})

	t.Run("drops self-authored messages", func(t *testing.T) {
		publisher := &fakePublisher{}
		r := New(publisher, selfIdentity, "55", nil)

		ev := textEvent()
		ev.FromMe = true
		r.HandleMessage(ctx, ev)

		assert.Empty(t, publisher.messages)
	})

	t.Run("drops non-text messages", func(t *testing.T) {
		publisher := &fakePublisher{}
		r := New(publisher, selfIdentity, "55", nil)

		ev := textEvent()
		ev.Kind = chat.KindMedia
		r.HandleMessage(ctx, ev)

		assert.Empty(t, publisher.messages)
	})

	t.Run("archives published messages when the archive is enabled", func(t *testing.T) {
		publisher := &fakePublisher{}
		archive := &fakeArchiver{}
		r := New(publisher, selfIdentity, "55", archive)

		r.HandleMessage(ctx, textEvent())

		require.Len(t, archive.records, 1)
		record := archive.records[0]
		assert.Equal(t, "ext-1", record.ExternalMessageID)
		assert.Equal(t, "5511988887777", record.SenderNormalized)
		assert.Equal(t, "hello", record.Body)
		assert.NotEmpty(t, record.ID)
	})

	t.Run("skips the archive when publishing fails", func(t *testing.T) {
		publisher := &fakePublisher{err: errors.New("broker down")}
		archive := &fakeArchiver{}
		r := New(publisher, selfIdentity, "55", archive)

		r.HandleMessage(ctx, textEvent())

		assert.Empty(t, archive.records)
	})
}
