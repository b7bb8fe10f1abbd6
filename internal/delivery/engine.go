// Package delivery turns outbound queue requests into network sends with
// bounded retries and a terminal delivery-status event for every request.
package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/chat-gateway-go/internal/errors"
	"github.com/openclaw/chat-gateway-go/internal/model"
	"github.com/openclaw/chat-gateway-go/internal/phone"
	"github.com/openclaw/chat-gateway-go/internal/session"
)

// Sender performs the actual network send.
type Sender interface {
	SendText(ctx context.Context, recipient, body string) (string, error)
}

// StatusPublisher reports terminal delivery outcomes outward.
type StatusPublisher interface {
	PublishDeliveryStatus(ctx context.Context, ev model.DeliveryStatusEvent) error
}

// Archiver records terminal outcomes for the operational paper trail.
// Archive failures never affect delivery.
type Archiver interface {
	ArchiveDelivery(ctx context.Context, params model.CreateDeliveryRecordParams) error
}

// Engine owns the outbound path: normalize, authorize, render, send with
// bounded retries, report.
type Engine struct {
	guard       *session.Guard
	buffer      *session.PendingBuffer
	sender      Sender
	status      StatusPublisher
	archive     Archiver // nil when the archive is disabled
	templates   Templates
	countryCode string

	attempts   int
	retryDelay time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetry overrides the attempt count and the fixed delay between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(e *Engine) {
		e.attempts = attempts
		e.retryDelay = delay
	}
}

// WithArchiver attaches a best-effort delivery archive.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) {
		e.archive = a
	}
}

func NewEngine(
	guard *session.Guard,
	buffer *session.PendingBuffer,
	sender Sender,
	status StatusPublisher,
	templates Templates,
	countryCode string,
	opts ...Option,
) *Engine {
	e := &Engine{
		guard:       guard,
		buffer:      buffer,
		sender:      sender,
		status:      status,
		templates:   templates,
		countryCode: countryCode,
		attempts:    3,
		retryDelay:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deliver processes one outbound request to a terminal outcome: sent, failed,
// or buffered awaiting validation. Buffered requests produce no status event
// yet; they are replayed through Deliver once validation succeeds.
func (e *Engine) Deliver(ctx context.Context, req model.OutboundRequest) {
	recipient := phone.Normalize(req.Phone, e.countryCode)

	decision := e.guard.AuthorizeSend(ctx, req.Phone)
	if decision.Reason == apperrors.ErrCodeNotValidated {
		if err := e.buffer.Push(req); err != nil {
			// Reject-new overflow: the request is terminally failed and
			// reported, never silently dropped.
			log.Warn().Str("phone", recipient).Msg("pending buffer full, rejecting request")
			e.reportFailed(ctx, recipient, string(apperrors.GetCode(err)))
			return
		}
		log.Info().
			Str("phone", recipient).
			Int("buffered", e.buffer.Len()).
			Msg("session not validated, request buffered")
		return
	}
	if !decision.Allow {
		// Enforcement failures are configuration problems, not transients;
		// retrying would send the same refusal into a loop.
		log.Warn().
			Str("phone", recipient).
			Str("reason", string(decision.Reason)).
			Msg("send refused by security guard")
		e.reportFailed(ctx, recipient, string(decision.Reason))
		return
	}

	// Anything buffered ahead of this request goes out first. Replay and
	// direct sends run on the broker consumer goroutine, so this preserves
	// arrival order even when the request was popped right after the
	// validated transition.
	e.Flush(ctx)

	body := e.templates.Render(req.Message, req.Template, req.Data)
	if body == "" {
		e.reportFailed(ctx, recipient, string(apperrors.ErrCodeEmptyMessage))
		return
	}

	messageID, err := e.sendWithRetry(ctx, recipient, body)
	if err != nil {
		log.Error().Err(err).Str("phone", recipient).Msg("delivery failed terminally")
		e.reportFailed(ctx, recipient, err.Error())
		return
	}

	e.reportSent(ctx, recipient, messageID)
}

// Flush replays every buffered request exactly once, in arrival order.
// Runs on the broker consumer goroutine: the validated transition leaves a
// flush signal behind and the consumer serves it before its next pop, so a
// request whose authorization read raced the transition is replayed on the
// next pass instead of sitting in the buffer.
func (e *Engine) Flush(ctx context.Context) {
	pending := e.buffer.Drain()
	if len(pending) == 0 {
		return
	}

	log.Info().Int("count", len(pending)).Msg("replaying buffered outbound requests")
	for _, req := range pending {
		e.Deliver(ctx, req)
	}
}

func (e *Engine) sendWithRetry(ctx context.Context, recipient, body string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= e.attempts; attempt++ {
		messageID, err := e.sender.SendText(ctx, recipient, body)
		if err == nil {
			return messageID, nil
		}
		lastErr = err

		log.Warn().
			Err(err).
			Str("phone", recipient).
			Int("attempt", attempt).
			Int("maxAttempts", e.attempts).
			Msg("send attempt failed")

		if attempt < e.attempts {
			select {
			case <-time.After(e.retryDelay):
			case <-ctx.Done():
				return "", apperrors.SendFailed(attempt, ctx.Err())
			}
		}
	}

	return "", apperrors.SendFailed(e.attempts, lastErr)
}

func (e *Engine) reportSent(ctx context.Context, recipient, messageID string) {
	ev := model.DeliveryStatusEvent{
		Phone:     recipient,
		MessageID: messageID,
		Status:    model.DeliveryStatusSent,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := e.status.PublishDeliveryStatus(ctx, ev); err != nil {
		log.Error().Err(err).Str("phone", recipient).Msg("failed to publish sent status")
	}

	log.Info().Str("phone", recipient).Str("messageId", messageID).Msg("message delivered")
	e.archiveOutcome(ctx, recipient, &messageID, string(model.DeliveryStatusSent), nil)
}

func (e *Engine) reportFailed(ctx context.Context, recipient, reason string) {
	ev := model.DeliveryStatusEvent{
		Phone:     recipient,
		Status:    model.DeliveryStatusFailed,
		Error:     reason,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := e.status.PublishDeliveryStatus(ctx, ev); err != nil {
		log.Error().Err(err).Str("phone", recipient).Msg("failed to publish failed status")
	}

	e.archiveOutcome(ctx, recipient, nil, string(model.DeliveryStatusFailed), &reason)
}

func (e *Engine) archiveOutcome(ctx context.Context, recipient string, messageID *string, status string, errorMessage *string) {
	if e.archive == nil {
		return
	}

	var sentAt *time.Time
	if status == string(model.DeliveryStatusSent) {
		now := time.Now()
		sentAt = &now
	}

	params := model.CreateDeliveryRecordParams{
		ID:           uuid.NewString(),
		Recipient:    recipient,
		MessageID:    messageID,
		Status:       status,
		ErrorMessage: errorMessage,
		SentAt:       sentAt,
	}
	if err := e.archive.ArchiveDelivery(ctx, params); err != nil {
		log.Error().Err(err).Str("phone", recipient).Msg("failed to archive delivery outcome")
	}
}
