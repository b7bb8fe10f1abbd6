// Package jobs holds the gateway's periodic background work: the security
// integrity re-check and the status heartbeat.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-gateway-go/internal/audit"
	"github.com/openclaw/chat-gateway-go/internal/model"
	"github.com/openclaw/chat-gateway-go/internal/phone"
	"github.com/openclaw/chat-gateway-go/internal/session"
)

// StateReader reads the current session state.
type StateReader interface {
	Snapshot() model.SessionState
}

// IntegrityJob re-compares the live authenticated identity against the
// recorded connected identity while the session is validated. A mismatch is
// a fatal security violation: silent identity drift would mean sending
// through the wrong number, which is categorically worse than downtime.
type IntegrityJob struct {
	state       StateReader
	identity    session.IdentitySource
	countryCode string
	interval    time.Duration
	exit        func(code int)
	done        chan struct{}
}

func NewIntegrityJob(
	state StateReader,
	identity session.IdentitySource,
	countryCode string,
	interval time.Duration,
	exit func(int),
) *IntegrityJob {
	return &IntegrityJob{
		state:       state,
		identity:    identity,
		countryCode: countryCode,
		interval:    interval,
		exit:        exit,
		done:        make(chan struct{}),
	}
}

func (j *IntegrityJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("integrity check job started")
}

func (j *IntegrityJob) Stop() {
	close(j.done)
	log.Info().Msg("integrity check job stopped")
}

func (j *IntegrityJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.Check()
		}
	}
}

// Check runs one integrity comparison. Exported so tests can drive it
// without waiting on the ticker.
func (j *IntegrityJob) Check() {
	state := j.state.Snapshot()
	if !state.Validated() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	live, err := j.identity.AuthenticatedIdentity(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("integrity check could not read live identity")
		return
	}

	recorded := phone.Normalize(state.ConnectedIdentity, j.countryCode)
	if phone.Normalize(live, j.countryCode) == recorded {
		return
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventFatalShutdown,
		Identity: recorded,
		Details:  map[string]any{"live": live},
	})
	log.Error().
		Str("recorded", recorded).
		Str("live", live).
		Msg("live identity diverged from connected identity, terminating")
	j.exit(1)
}
