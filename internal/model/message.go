package model

import "time"

// Administrative commands carried over the outbound queue.
const (
	CommandDisconnect        = "disconnect"
	CommandRegeneratePairing = "regenerate-pairing"
)

// OutboundRequest is a unit of work consumed from the outbound queue. Either
// Message is set (literal payload) or Template plus Data. A non-empty Command
// marks an administrative payload instead of a message.
type OutboundRequest struct {
	Phone    string            `json:"phone"`
	Message  string            `json:"message,omitempty"`
	Template string            `json:"template,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Command  string            `json:"command,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// IsCommand reports whether the payload is an administrative command.
func (r OutboundRequest) IsCommand() bool {
	return r.Command != ""
}

// InboundMessage is a message observed on the chat session, not authored by
// this identity. Published once to the inbound queue, never mutated.
type InboundMessage struct {
	ExternalMessageID string `json:"externalMessageId"`
	From              string `json:"from"`
	FromNormalized    string `json:"fromNormalized"`
	To                string `json:"to"`
	Body              string `json:"body"`
	Type              string `json:"type"`
	Timestamp         int64  `json:"timestamp"`
	FromMe            bool   `json:"fromMe"`
}
