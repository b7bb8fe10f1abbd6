package model

import "time"

// Phase is the connection lifecycle phase of the single chat session.
type Phase string

const (
	PhaseDisconnected   Phase = "disconnected"
	PhasePairingPending Phase = "pairing_pending"
	PhaseConnected      Phase = "connected"
	PhaseValidating     Phase = "validating"
	PhaseValidated      Phase = "validated"
)

// SessionState is the process-wide connection lifecycle record. It is owned
// by the state machine; everyone else only ever sees copies.
// ConnectedIdentity is non-empty exactly when Phase is Connected, Validating
// or Validated.
type SessionState struct {
	Phase             Phase
	ConnectedIdentity string
	ValidatedAt       *time.Time
	PairingStartedAt  *time.Time
	LastActivity      time.Time
}

// Connected reports whether the session has a live network connection.
func (s SessionState) Connected() bool {
	switch s.Phase {
	case PhaseConnected, PhaseValidating, PhaseValidated:
		return true
	default:
		return false
	}
}

// Validated reports whether the session accepts outbound traffic.
func (s SessionState) Validated() bool {
	return s.Phase == PhaseValidated
}

// StatusEvent builds the session-status snapshot published outward.
func (s SessionState) StatusEvent() SessionStatusEvent {
	return SessionStatusEvent{
		SessionConnected: s.Connected(),
		ConnectedNumber:  s.ConnectedIdentity,
		IsFullyValidated: s.Validated(),
		LastActivity:     s.LastActivity.UnixMilli(),
		Timestamp:        time.Now().UnixMilli(),
	}
}
