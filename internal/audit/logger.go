// Package audit emits structured security events for the session lifecycle.
// These are log-only facts; the broker status queues carry the operational
// view, audit carries the security view.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventSessionConnected   EventType = "session_connected"
	EventSessionValidated   EventType = "session_validated"
	EventSessionDropped     EventType = "session_dropped"
	EventPairingIssued      EventType = "pairing_issued"
	EventPairingExpired     EventType = "pairing_expired"
	EventSendRefused        EventType = "send_refused"
	EventIdentityMismatch   EventType = "identity_mismatch"
	EventFatalShutdown      EventType = "fatal_shutdown"
	EventCommandDisconnect  EventType = "command_disconnect"
	EventCommandRegenerate  EventType = "command_regenerate_pairing"
)

type Event struct {
	Type     EventType
	Identity string
	Details  map[string]any
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Identity != "" {
		logger = logger.With().Str("identity", event.Identity).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
