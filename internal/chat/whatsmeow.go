package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// WhatsmeowClient adapts a whatsmeow session to the Client interface.
type WhatsmeowClient struct {
	client *whatsmeow.Client

	mu       sync.RWMutex
	handlers Handlers
}

// NewWhatsmeowClient opens the session credential store at storeURL
// (Postgres DSN) and builds the network client around the first stored
// device, creating a fresh one when none exists yet.
func NewWhatsmeowClient(storeURL string) (*WhatsmeowClient, error) {
	container, err := sqlstore.New("postgres", storeURL, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice()
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	c := &WhatsmeowClient{
		client: whatsmeow.NewClient(device, waLog.Noop),
	}
	c.client.AddEventHandler(c.dispatch)
	return c, nil
}

func (c *WhatsmeowClient) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

func (c *WhatsmeowClient) currentHandlers() Handlers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers
}

func (c *WhatsmeowClient) Connect(ctx context.Context) error {
	if c.client.Store.ID == nil {
		// No stored credentials: the connect must go through pairing.
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("open pairing channel: %w", err)
		}
		go c.relayPairingCodes(qrChan)
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect session: %w", err)
	}
	return nil
}

func (c *WhatsmeowClient) relayPairingCodes(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			if h := c.currentHandlers().OnPairingCode; h != nil {
				h(item.Code)
			}
		case "timeout":
			if h := c.currentHandlers().OnDisconnected; h != nil {
				h("pairing timed out")
			}
		}
	}
}

func (c *WhatsmeowClient) Disconnect() {
	c.client.Disconnect()
}

// Logout invalidates the stored credentials. The server-side logout needs a
// live connection; when it fails the local device store is deleted anyway so
// the next Connect goes through pairing instead of resuming the old identity.
func (c *WhatsmeowClient) Logout(ctx context.Context) error {
	err := c.client.Logout()
	if err == nil {
		return nil
	}

	c.client.Disconnect()
	if c.client.Store.ID != nil {
		if derr := c.client.Store.Delete(); derr != nil {
			return fmt.Errorf("logout session: %w", err)
		}
		log.Warn().Err(err).Msg("server logout failed, local credentials deleted")
		return nil
	}
	return fmt.Errorf("logout session: %w", err)
}

func (c *WhatsmeowClient) AuthenticatedIdentity(ctx context.Context) (string, error) {
	id := c.client.Store.ID
	if id == nil {
		return "", nil
	}
	return id.User, nil
}

func (c *WhatsmeowClient) ListChats(ctx context.Context) ([]Chat, error) {
	contacts, err := c.client.Store.Contacts.GetAllContacts()
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	chats := make([]Chat, 0, len(contacts))
	for jid, info := range contacts {
		chats = append(chats, Chat{ID: jid.User, Name: info.FullName})
	}
	return chats, nil
}

func (c *WhatsmeowClient) SendText(ctx context.Context, recipient, body string) (string, error) {
	jid := types.NewJID(recipient, types.DefaultUserServer)
	resp, err := c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return string(resp.ID), nil
}

func (c *WhatsmeowClient) dispatch(raw any) {
	h := c.currentHandlers()

	switch evt := raw.(type) {
	case *events.Connected:
		identity := ""
		if c.client.Store.ID != nil {
			identity = c.client.Store.ID.User
		}
		if h.OnConnected != nil {
			h.OnConnected(identity)
		}

	case *events.Disconnected:
		if h.OnDisconnected != nil {
			h.OnDisconnected("network disconnected")
		}

	case *events.LoggedOut:
		if h.OnDisconnected != nil {
			h.OnDisconnected("logged out by network")
		}

	case *events.StreamError:
		log.Warn().Str("code", evt.Code).Msg("session stream error")
		if h.OnDisconnected != nil {
			h.OnDisconnected("stream error")
		}

	case *events.Message:
		if h.OnMessage != nil {
			h.OnMessage(toMessageEvent(evt))
		}
	}
}

func toMessageEvent(evt *events.Message) MessageEvent {
	body := evt.Message.GetConversation()
	if body == "" {
		if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
			body = ext.GetText()
		}
	}

	kind := KindText
	if body == "" {
		kind = KindMedia
	}

	return MessageEvent{
		ID:        string(evt.Info.ID),
		Sender:    evt.Info.Sender.User,
		Body:      body,
		Kind:      kind,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
	}
}
