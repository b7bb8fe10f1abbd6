// Package relay pushes messages observed on the chat session out to the
// broker's inbound queue.
package relay

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-gateway-go/internal/chat"
	"github.com/openclaw/chat-gateway-go/internal/model"
	"github.com/openclaw/chat-gateway-go/internal/phone"
)

// InboundPublisher publishes relayed messages to the inbound queue.
type InboundPublisher interface {
	PublishInbound(ctx context.Context, msg model.InboundMessage) error
}

// Archiver records relayed messages best-effort.
type Archiver interface {
	ArchiveInbound(ctx context.Context, params model.CreateInboundRecordParams) error
}

// SelfIdentity returns the session's current connected identity, or empty.
type SelfIdentity func() string

// Relay filters, normalizes and publishes inbound messages. It is
// push-driven by the chat client and independent of the outbound path.
type Relay struct {
	publisher   InboundPublisher
	self        SelfIdentity
	archive     Archiver // nil when the archive is disabled
	countryCode string
}

func New(publisher InboundPublisher, self SelfIdentity, countryCode string, archive Archiver) *Relay {
	return &Relay{
		publisher:   publisher,
		self:        self,
		archive:     archive,
		countryCode: countryCode,
	}
}

// HandleMessage relays one observed message. Self-authored messages and
// non-text content are dropped without a status event; downstream consumers
// deduplicate by externalMessageId.
func (r *Relay) HandleMessage(ctx context.Context, ev chat.MessageEvent) {
	if ev.FromMe {
		return
	}
	if ev.Kind != chat.KindText {
		// Known limitation: media and other non-text kinds are not bridged.
		log.Debug().Str("kind", ev.Kind).Str("externalId", ev.ID).Msg("ignoring non-text message")
		return
	}

	msg := model.InboundMessage{
		ExternalMessageID: ev.ID,
		From:              ev.Sender,
		FromNormalized:    phone.Normalize(ev.Sender, r.countryCode),
		To:                r.self(),
		Body:              ev.Body,
		Type:              ev.Kind,
		Timestamp:         ev.Timestamp.UnixMilli(),
		FromMe:            false,
	}

	if err := r.publisher.PublishInbound(ctx, msg); err != nil {
		log.Error().Err(err).Str("externalId", ev.ID).Msg("failed to publish inbound message")
		return
	}

	log.Info().
		Str("externalId", ev.ID).
		Str("from", msg.FromNormalized).
		Msg("inbound message relayed")

	if r.archive != nil {
		params := model.CreateInboundRecordParams{
			ID:                uuid.NewString(),
			ExternalMessageID: ev.ID,
			Sender:            ev.Sender,
			SenderNormalized:  msg.FromNormalized,
			Body:              ev.Body,
		}
		if err := r.archive.ArchiveInbound(ctx, params); err != nil {
			log.Error().Err(err).Str("externalId", ev.ID).Msg("failed to archive inbound message")
		}
	}
}
