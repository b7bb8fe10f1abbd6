package model

import "time"

type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// DeliveryStatusEvent is the terminal outcome of one outbound request.
// Append-only fact; no identity beyond its content and timestamp.
type DeliveryStatusEvent struct {
	Phone     string         `json:"phone"`
	MessageID string         `json:"messageId"`
	Status    DeliveryStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// SessionStatusEvent is the session lifecycle snapshot published on every
// transition and on the heartbeat interval.
type SessionStatusEvent struct {
	SessionConnected bool   `json:"sessionConnected"`
	ConnectedNumber  string `json:"connectedNumber"`
	IsFullyValidated bool   `json:"isFullyValidated"`
	LastActivity     int64  `json:"lastActivity"`
	Timestamp        int64  `json:"timestamp"`
}

// PairingEvent carries a rendered pairing artifact to the broadcast queue.
type PairingEvent struct {
	QRCode     string `json:"qrCode"`
	InstanceID string `json:"instanceId"`
	Type       string `json:"type"`
}

// PairingArtifact is a rendered pairing code image. Exactly one may be live
// at a time; regeneration supersedes, expiry invalidates.
type PairingArtifact struct {
	DataURL  string
	IssuedAt time.Time
}
