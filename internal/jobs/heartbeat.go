package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-gateway-go/internal/model"
)

// SessionStatusPublisher pushes session-status events outward.
type SessionStatusPublisher interface {
	PublishSessionStatus(ctx context.Context, ev model.SessionStatusEvent) error
}

// HeartbeatJob publishes the current session status on a fixed interval, in
// addition to the on-change publishes from the state machine.
type HeartbeatJob struct {
	state     StateReader
	publisher SessionStatusPublisher
	interval  time.Duration
	done      chan struct{}
}

func NewHeartbeatJob(state StateReader, publisher SessionStatusPublisher, interval time.Duration) *HeartbeatJob {
	return &HeartbeatJob{
		state:     state,
		publisher: publisher,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *HeartbeatJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("status heartbeat job started")
}

func (j *HeartbeatJob) Stop() {
	close(j.done)
	log.Info().Msg("status heartbeat job stopped")
}

func (j *HeartbeatJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.publish()
		}
	}
}

func (j *HeartbeatJob) publish() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ev := j.state.Snapshot().StatusEvent()
	if err := j.publisher.PublishSessionStatus(ctx, ev); err != nil {
		log.Error().Err(err).Msg("failed to publish status heartbeat")
	}
}
