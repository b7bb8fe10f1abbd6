package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/chat-gateway-go/internal/chat"
	"github.com/openclaw/chat-gateway-go/internal/model"
)

type fakeChatClient struct {
	mu sync.Mutex

	identity    string
	identityErr error
	listErr     error

	connectCalls    int
	disconnectCalls int
	logoutCalls     int
	seq             []string
}

func (f *fakeChatClient) SetHandlers(h chat.Handlers) {}

func (f *fakeChatClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	f.seq = append(f.seq, "connect")
	return nil
}

func (f *fakeChatClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
	f.seq = append(f.seq, "disconnect")
}

func (f *fakeChatClient) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	f.seq = append(f.seq, "logout")
	// Credential discard: the next connect would go through pairing.
	f.identity = ""
	return nil
}

func (f *fakeChatClient) AuthenticatedIdentity(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity, f.identityErr
}

func (f *fakeChatClient) ListChats(ctx context.Context) ([]chat.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []chat.Chat{{ID: "1", Name: "self"}}, nil
}

func (f *fakeChatClient) SendText(ctx context.Context, recipient, body string) (string, error) {
	return "msg-1", nil
}

func (f *fakeChatClient) calls() (connect, disconnect, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls, f.disconnectCalls, f.logoutCalls
}

func (f *fakeChatClient) sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seq...)
}

// phaseRecorder collects every phase the machine passes through.
type phaseRecorder struct {
	mu     sync.Mutex
	phases []model.Phase
}

func (r *phaseRecorder) record(s model.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, s.Phase)
}

func (r *phaseRecorder) saw(phase model.Phase) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.phases {
		if p == phase {
			return true
		}
	}
	return false
}

func newTestMachine(client *fakeChatClient, hooks Hooks, opts ...Option) *Machine {
	opts = append([]Option{WithDelays(time.Millisecond, time.Millisecond)}, opts...)
	m := NewMachine(client, hooks, opts...)
	m.Start()
	return m
}

func TestMachineInitialize(t *testing.T) {
	client := &fakeChatClient{identity: "5511999990000"}
	m := newTestMachine(client, Hooks{})
	defer m.Stop()

	m.Initialize()

	require.Eventually(t, func() bool {
		return m.Snapshot().Phase == model.PhasePairingPending
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		connect, _, _ := client.calls()
		return connect == 1
	}, time.Second, time.Millisecond)

	state := m.Snapshot()
	assert.NotNil(t, state.PairingStartedAt)
	assert.False(t, state.Connected())
}

func TestMachinePairingCode(t *testing.T) {
	t.Run("forwards payloads while pairing is pending", func(t *testing.T) {
		var mu sync.Mutex
		var payloads []string

		client := &fakeChatClient{}
		m := newTestMachine(client, Hooks{
			OnPairingCode: func(payload string) {
				mu.Lock()
				defer mu.Unlock()
				payloads = append(payloads, payload)
			},
		})
		defer m.Stop()

		m.Initialize()
		m.PairingCode("pairing-payload-1")

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(payloads) == 1 && payloads[0] == "pairing-payload-1"
		}, time.Second, time.Millisecond)
	})

	t.Run("ignores payloads outside the pairing phase", func(t *testing.T) {
		var mu sync.Mutex
		fired := false

		client := &fakeChatClient{}
		m := newTestMachine(client, Hooks{
			OnPairingCode: func(string) {
				mu.Lock()
				defer mu.Unlock()
				fired = true
			},
		})
		defer m.Stop()

		m.PairingCode("stale-payload")
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		assert.False(t, fired)
	})
}

func TestMachineHandshakeToValidated(t *testing.T) {
	var mu sync.Mutex
	validated := 0

	client := &fakeChatClient{identity: "5511999990000"}
	recorder := &phaseRecorder{}
	m := newTestMachine(client, Hooks{
		OnTransition: recorder.record,
		OnValidated: func() {
			mu.Lock()
			defer mu.Unlock()
			validated++
		},
	})
	defer m.Stop()

	m.HandshakeComplete("5511999990000")

	require.Eventually(t, func() bool {
		return m.Snapshot().Validated()
	}, time.Second, time.Millisecond)

	state := m.Snapshot()
	assert.Equal(t, "5511999990000", state.ConnectedIdentity)
	assert.NotNil(t, state.ValidatedAt)
	assert.Nil(t, state.PairingStartedAt)
	assert.True(t, recorder.saw(model.PhaseConnected))
	assert.True(t, recorder.saw(model.PhaseValidating))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, validated)
}

func TestMachineHandshakeWithoutIdentity(t *testing.T) {
	client := &fakeChatClient{}
	recorder := &phaseRecorder{}
	m := newTestMachine(client, Hooks{OnTransition: recorder.record})
	defer m.Stop()

	m.HandshakeComplete("")
	time.Sleep(50 * time.Millisecond)

	state := m.Snapshot()
	assert.Equal(t, model.PhaseDisconnected, state.Phase)
	assert.Empty(t, state.ConnectedIdentity)
	assert.False(t, recorder.saw(model.PhaseConnected))
}

func TestMachineSelfCheckFailure(t *testing.T) {
	client := &fakeChatClient{identity: "5511999990000", listErr: errors.New("stream closed")}
	recorder := &phaseRecorder{}
	m := newTestMachine(client, Hooks{OnTransition: recorder.record})
	defer m.Stop()

	m.HandshakeComplete("5511999990000")

	require.Eventually(t, func() bool {
		return recorder.saw(model.PhaseValidating) && m.Snapshot().Phase == model.PhaseDisconnected
	}, time.Second, time.Millisecond)

	state := m.Snapshot()
	assert.Nil(t, state.ValidatedAt)
	assert.Empty(t, state.ConnectedIdentity)
	assert.False(t, recorder.saw(model.PhaseValidated))
}

func TestMachineConnectionLost(t *testing.T) {
	client := &fakeChatClient{identity: "5511999990000"}
	m := newTestMachine(client, Hooks{})
	defer m.Stop()

	m.HandshakeComplete("5511999990000")
	require.Eventually(t, func() bool {
		return m.Snapshot().Validated()
	}, time.Second, time.Millisecond)

	m.ConnectionLost("stream error")

	require.Eventually(t, func() bool {
		return m.Snapshot().Phase == model.PhaseDisconnected
	}, time.Second, time.Millisecond)

	state := m.Snapshot()
	assert.Empty(t, state.ConnectedIdentity)
	assert.Nil(t, state.ValidatedAt)
}

func TestMachinePairingExpired(t *testing.T) {
	client := &fakeChatClient{}
	m := newTestMachine(client, Hooks{})
	defer m.Stop()

	m.Initialize()
	require.Eventually(t, func() bool {
		return m.Snapshot().Phase == model.PhasePairingPending
	}, time.Second, time.Millisecond)

	m.PairingExpired()

	// No automatic retry after expiry.
	require.Eventually(t, func() bool {
		return m.Snapshot().Phase == model.PhaseDisconnected
	}, time.Second, time.Millisecond)
	connect, _, _ := client.calls()
	assert.Equal(t, 1, connect)
}

func TestMachineDisconnectCommand(t *testing.T) {
	var mu sync.Mutex
	exitCodes := []int{}

	client := &fakeChatClient{identity: "5511999990000"}
	m := newTestMachine(client, Hooks{}, WithExit(func(code int) {
		mu.Lock()
		defer mu.Unlock()
		exitCodes = append(exitCodes, code)
	}))
	defer m.Stop()

	m.HandshakeComplete("5511999990000")
	require.Eventually(t, func() bool {
		return m.Snapshot().Validated()
	}, time.Second, time.Millisecond)

	m.Disconnect()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(exitCodes) == 1 && exitCodes[0] == 0
	}, time.Second, time.Millisecond)

	_, _, logout := client.calls()
	assert.Equal(t, 1, logout)
}

func TestMachineRegeneratePairingCommand(t *testing.T) {
	client := &fakeChatClient{identity: "5511999990000"}
	m := newTestMachine(client, Hooks{})
	defer m.Stop()

	m.HandshakeComplete("5511999990000")
	require.Eventually(t, func() bool {
		return m.Snapshot().Validated()
	}, time.Second, time.Millisecond)

	m.RegeneratePairing()

	require.Eventually(t, func() bool {
		return m.Snapshot().Phase == model.PhasePairingPending
	}, time.Second, time.Millisecond)

	// Credentials are discarded before reconnecting; a bare disconnect would
	// silently resume the old identity instead of re-pairing.
	require.Eventually(t, func() bool {
		connect, _, logout := client.calls()
		return logout == 1 && connect == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"logout", "connect"}, client.sequence())
	assert.Empty(t, m.Snapshot().ConnectedIdentity)
}

func TestMachineDropReasonAudited(t *testing.T) {
	buf := &syncBuffer{}
	original := log.Logger
	log.Logger = zerolog.New(buf)
	t.Cleanup(func() { log.Logger = original })

	client := &fakeChatClient{identity: "5511999990000"}
	m := newTestMachine(client, Hooks{})
	defer m.Stop()

	m.HandshakeComplete("5511999990000")
	require.Eventually(t, func() bool {
		return m.Snapshot().Validated()
	}, time.Second, time.Millisecond)

	m.ConnectionLost("stream reset by peer")

	require.Eventually(t, func() bool {
		out := buf.String()
		return strings.Contains(out, "session_dropped") && strings.Contains(out, "stream reset by peer")
	}, time.Second, time.Millisecond)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
