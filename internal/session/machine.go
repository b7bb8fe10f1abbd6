// Package session owns the lifecycle of the single chat-session connection:
// the connection state machine, the pre-send security guard, and the buffer
// for requests that arrive before the session is validated.
package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-gateway-go/internal/audit"
	"github.com/openclaw/chat-gateway-go/internal/chat"
	"github.com/openclaw/chat-gateway-go/internal/model"
)

type eventKind int

const (
	evInitialize eventKind = iota
	evPairingCode
	evHandshake
	evHandshakeFailed
	evStartValidation
	evSelfCheck
	evConnectionLost
	evPairingExpired
	evCmdDisconnect
	evCmdRegenerate
)

type event struct {
	kind     eventKind
	identity string
	payload  string
	reason   string
	err      error
}

// Hooks are invoked from the machine's consumer goroutine on lifecycle
// milestones. They must not call back into the machine synchronously.
type Hooks struct {
	// OnTransition fires with a state snapshot after every phase change.
	OnTransition func(model.SessionState)
	// OnValidated fires once per Validating -> Validated transition.
	OnValidated func()
	// OnPairingCode fires with the raw pairing payload on entering
	// PairingPending with a code in hand.
	OnPairingCode func(payload string)
}

// Machine serializes every SessionState mutation through a single consumer
// loop fed by a message-passing inbox. Other components read state only via
// Snapshot.
type Machine struct {
	client chat.Client
	hooks  Hooks

	graceDelay      time.Duration
	validationDelay time.Duration

	inbox chan event
	done  chan struct{}

	mu    sync.RWMutex
	state model.SessionState

	// exit is the fatal shutdown path; tests inject a recorder.
	exit func(code int)
}

// Option configures a Machine.
type Option func(*Machine)

// WithDelays overrides the handshake grace and validation delays.
func WithDelays(grace, validation time.Duration) Option {
	return func(m *Machine) {
		m.graceDelay = grace
		m.validationDelay = validation
	}
}

// WithExit overrides the process-termination function.
func WithExit(exit func(int)) Option {
	return func(m *Machine) {
		m.exit = exit
	}
}

func NewMachine(client chat.Client, hooks Hooks, opts ...Option) *Machine {
	m := &Machine{
		client:          client,
		hooks:           hooks,
		graceDelay:      3 * time.Second,
		validationDelay: 5 * time.Second,
		inbox:           make(chan event, 32),
		done:            make(chan struct{}),
		state:           model.SessionState{Phase: model.PhaseDisconnected, LastActivity: time.Now()},
		exit:            defaultExit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the consumer loop. Callers wire the chat client callbacks
// (PairingCode, HandshakeComplete, ConnectionLost) themselves.
func (m *Machine) Start() {
	go m.run()
	log.Info().Msg("session state machine started")
}

// Stop shuts the consumer loop down.
func (m *Machine) Stop() {
	close(m.done)
}

// Snapshot returns a copy of the current session state.
func (m *Machine) Snapshot() model.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Initialize drives Disconnected -> PairingPending and opens the network
// connection, which in turn produces pairing codes or a handshake.
func (m *Machine) Initialize() { m.post(event{kind: evInitialize}) }

// PairingCode reports a raw pairing payload from the network.
func (m *Machine) PairingCode(payload string) {
	m.post(event{kind: evPairingCode, payload: payload})
}

// HandshakeComplete reports a finished network handshake with the
// authenticated identity the network exposed (possibly empty).
func (m *Machine) HandshakeComplete(identity string) {
	m.post(event{kind: evHandshake, identity: identity})
}

// HandshakeFailed reports a handshake that did not complete.
func (m *Machine) HandshakeFailed(reason string) {
	m.post(event{kind: evHandshakeFailed, reason: reason})
}

// ConnectionLost reports a dropped network connection.
func (m *Machine) ConnectionLost(reason string) {
	m.post(event{kind: evConnectionLost, reason: reason})
}

// PairingExpired reports that the live pairing artifact lapsed unscanned.
func (m *Machine) PairingExpired() { m.post(event{kind: evPairingExpired}) }

// Disconnect handles the administrative disconnect command: logout and
// intentional process termination.
func (m *Machine) Disconnect() { m.post(event{kind: evCmdDisconnect}) }

// RegeneratePairing handles the administrative regenerate-pairing command:
// force-drop the session and restart pairing.
func (m *Machine) RegeneratePairing() { m.post(event{kind: evCmdRegenerate}) }

func (m *Machine) post(ev event) {
	select {
	case m.inbox <- ev:
	case <-m.done:
	}
}

func (m *Machine) run() {
	for {
		select {
		case <-m.done:
			return
		case ev := <-m.inbox:
			m.handle(ev)
		}
	}
}

func (m *Machine) handle(ev event) {
	phase := m.Snapshot().Phase

	switch ev.kind {
	case evInitialize:
		if phase != model.PhaseDisconnected {
			return
		}
		m.setState(func(s *model.SessionState) {
			now := time.Now()
			s.Phase = model.PhasePairingPending
			s.PairingStartedAt = &now
		})
		go func() {
			if err := m.client.Connect(context.Background()); err != nil {
				log.Error().Err(err).Msg("session connect failed")
				m.ConnectionLost("connect failed")
			}
		}()

	case evPairingCode:
		if phase != model.PhasePairingPending {
			return
		}
		if m.hooks.OnPairingCode != nil {
			m.hooks.OnPairingCode(ev.payload)
		}

	case evHandshake:
		if phase != model.PhasePairingPending && phase != model.PhaseDisconnected {
			return
		}
		if ev.identity == "" {
			// The handshake produced no readable identity; a session we
			// cannot attribute must not be trusted.
			log.Error().Msg("handshake exposed no identity, aborting connection")
			m.dropConnection("no identity on handshake")
			return
		}
		m.setState(func(s *model.SessionState) {
			s.Phase = model.PhaseConnected
			s.ConnectedIdentity = ev.identity
			s.PairingStartedAt = nil
			s.LastActivity = time.Now()
		})
		log.Info().Str("identity", ev.identity).Msg("session connected")
		audit.Log(context.Background(), audit.Event{
			Type:     audit.EventSessionConnected,
			Identity: ev.identity,
		})
		// Grace first, so the network sees a freshly paired client sit
		// idle, then the stabilization window before the self-check.
		delay := m.graceDelay + m.validationDelay
		time.AfterFunc(delay, func() { m.post(event{kind: evStartValidation}) })

	case evStartValidation:
		if phase != model.PhaseConnected {
			return
		}
		m.setState(func(s *model.SessionState) {
			s.Phase = model.PhaseValidating
		})
		go func() { m.post(event{kind: evSelfCheck, err: m.selfCheck()}) }()

	case evSelfCheck:
		if phase != model.PhaseValidating {
			return
		}
		if ev.err != nil {
			log.Error().Err(ev.err).Msg("session validation failed")
			m.dropConnection("validation failed")
			return
		}
		m.setState(func(s *model.SessionState) {
			now := time.Now()
			s.Phase = model.PhaseValidated
			s.ValidatedAt = &now
			s.LastActivity = now
		})
		log.Info().Str("identity", m.Snapshot().ConnectedIdentity).Msg("session validated")
		audit.Log(context.Background(), audit.Event{
			Type:     audit.EventSessionValidated,
			Identity: m.Snapshot().ConnectedIdentity,
		})
		if m.hooks.OnValidated != nil {
			m.hooks.OnValidated()
		}

	case evConnectionLost, evHandshakeFailed:
		if phase == model.PhaseDisconnected {
			return
		}
		log.Warn().Str("reason", ev.reason).Msg("session connection lost")
		m.dropConnection(ev.reason)

	case evPairingExpired:
		if phase != model.PhasePairingPending {
			return
		}
		// No automatic retry: the operator must request regeneration.
		log.Warn().Msg("pairing artifact expired before a scan")
		m.dropConnection("pairing expired")

	case evCmdDisconnect:
		log.Info().Msg("disconnect command received, logging out and shutting down")
		audit.Log(context.Background(), audit.Event{Type: audit.EventCommandDisconnect})
		if err := m.client.Logout(context.Background()); err != nil {
			log.Error().Err(err).Msg("logout failed during commanded disconnect")
		}
		m.dropConnection("disconnect command")
		m.exit(0)

	case evCmdRegenerate:
		log.Info().Msg("regenerate-pairing command received")
		audit.Log(context.Background(), audit.Event{Type: audit.EventCommandRegenerate})
		// The stored credentials must be discarded, or the reconnect would
		// silently resume the old identity instead of requesting a fresh
		// pairing scan.
		if err := m.client.Logout(context.Background()); err != nil {
			log.Error().Err(err).Msg("credential discard failed during pairing regeneration")
		}
		m.dropConnection("regenerate-pairing command")
		m.handle(event{kind: evInitialize})
	}
}

// selfCheck confirms the session exposes a non-empty authenticated identity
// and that the transport answers a benign read, not merely cached state.
// Failure is a signal, never a panic.
func (m *Machine) selfCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	identity, err := m.client.AuthenticatedIdentity(ctx)
	if err != nil {
		return fmt.Errorf("read identity: %w", err)
	}
	if identity == "" {
		return fmt.Errorf("session reports empty identity")
	}

	if _, err := m.client.ListChats(ctx); err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	return nil
}

func (m *Machine) dropConnection(reason string) {
	identity := m.Snapshot().ConnectedIdentity
	m.setState(func(s *model.SessionState) {
		s.Phase = model.PhaseDisconnected
		s.ConnectedIdentity = ""
		s.ValidatedAt = nil
		s.PairingStartedAt = nil
	})
	audit.Log(context.Background(), audit.Event{
		Type:     audit.EventSessionDropped,
		Identity: identity,
		Details:  map[string]any{"reason": reason},
	})
}

func (m *Machine) setState(mutate func(*model.SessionState)) {
	m.mu.Lock()
	mutate(&m.state)
	snapshot := m.state
	m.mu.Unlock()

	if m.hooks.OnTransition != nil {
		m.hooks.OnTransition(snapshot)
	}
}

func defaultExit(code int) {
	os.Exit(code)
}
