// Package chat abstracts the single authenticated chat-network session this
// process owns. The rest of the gateway only sees this interface; the
// network client's internals stay behind the adapter.
package chat

import (
	"context"
	"time"
)

// Message content kinds as seen by the relay.
const (
	KindText  = "text"
	KindMedia = "media"
)

// MessageEvent is a message observed on the session.
type MessageEvent struct {
	ID        string
	Sender    string
	Body      string
	Kind      string
	FromMe    bool
	Timestamp time.Time
}

// Handlers receive session lifecycle callbacks. All fields are optional;
// nil handlers are skipped.
type Handlers struct {
	// OnPairingCode fires with the raw pairing payload whenever the network
	// asks for a (re)scan.
	OnPairingCode func(payload string)
	// OnConnected fires when the handshake completes. identity is the
	// authenticated number as reported by the network; it may be empty when
	// the network failed to expose it.
	OnConnected func(identity string)
	// OnDisconnected fires on any connection loss, with a human reason.
	OnDisconnected func(reason string)
	// OnMessage fires for every message observed on the session, including
	// self-authored ones.
	OnMessage func(ev MessageEvent)
}

// Chat is a conversation known to the session, used for the benign
// read-only self-check.
type Chat struct {
	ID   string
	Name string
}

// Client is the session facade. Implementations must be safe for use from
// multiple goroutines.
type Client interface {
	// SetHandlers registers lifecycle callbacks. Must be called before Connect.
	SetHandlers(h Handlers)
	// Connect starts the network session, driving pairing when no stored
	// credentials exist.
	Connect(ctx context.Context) error
	// Disconnect tears the connection down without logging out.
	Disconnect()
	// Logout invalidates the stored credentials and disconnects.
	Logout(ctx context.Context) error
	// AuthenticatedIdentity returns the canonical number the network
	// currently reports for this session, or empty when unauthenticated.
	AuthenticatedIdentity(ctx context.Context) (string, error)
	// ListChats performs a read-only listing proving the transport works.
	ListChats(ctx context.Context) ([]Chat, error)
	// SendText delivers body to the canonical recipient number and returns
	// the network-assigned message id.
	SendText(ctx context.Context, recipient, body string) (string, error)
}
