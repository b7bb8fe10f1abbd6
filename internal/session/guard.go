package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-gateway-go/internal/audit"
	apperrors "github.com/openclaw/chat-gateway-go/internal/errors"
	"github.com/openclaw/chat-gateway-go/internal/model"
	"github.com/openclaw/chat-gateway-go/internal/phone"
)

// IdentitySource exposes the live authenticated identity of the session.
type IdentitySource interface {
	AuthenticatedIdentity(ctx context.Context) (string, error)
}

// StateReader reads the current session state.
type StateReader interface {
	Snapshot() model.SessionState
}

// Decision is the outcome of a send authorization check.
type Decision struct {
	Allow  bool
	Reason apperrors.ErrorCode
}

// Guard re-derives the locally authenticated identity before any outbound
// send and refuses to send through the wrong one. It performs no I/O beyond
// reading session state and the identity source.
type Guard struct {
	state       StateReader
	identity    IdentitySource
	countryCode string
}

func NewGuard(state StateReader, identity IdentitySource, countryCode string) *Guard {
	return &Guard{
		state:       state,
		identity:    identity,
		countryCode: countryCode,
	}
}

// AuthorizeSend checks, in order: the session is validated; the recorded
// connected identity is present and plausible; the live identity still
// matches the recorded one; the candidate recipient normalizes to a
// plausible number. The not-validated reason tells the caller to buffer,
// every other refusal is terminal.
func (g *Guard) AuthorizeSend(ctx context.Context, candidateRecipient string) Decision {
	state := g.state.Snapshot()

	if !state.Validated() {
		return Decision{Reason: apperrors.ErrCodeNotValidated}
	}

	recorded := phone.Normalize(state.ConnectedIdentity, g.countryCode)
	if !phone.Plausible(recorded) {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventSendRefused,
			Details: map[string]any{"reason": string(apperrors.ErrCodeNoIdentity)},
		})
		return Decision{Reason: apperrors.ErrCodeNoIdentity}
	}

	live, err := g.identity.AuthenticatedIdentity(ctx)
	if err != nil {
		log.Error().Err(err).Msg("guard could not read live identity")
		return Decision{Reason: apperrors.ErrCodeNoIdentity}
	}
	if phone.Normalize(live, g.countryCode) != recorded {
		audit.Log(ctx, audit.Event{
			Type:     audit.EventIdentityMismatch,
			Identity: recorded,
			Details:  map[string]any{"live": live},
		})
		return Decision{Reason: apperrors.ErrCodeIdentityMismatch}
	}

	if !phone.Plausible(phone.Normalize(candidateRecipient, g.countryCode)) {
		return Decision{Reason: apperrors.ErrCodeInvalidRecipient}
	}

	return Decision{Allow: true}
}
