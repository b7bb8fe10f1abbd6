// Package pairing renders and distributes the scannable artifact used to
// authenticate a new session.
package pairing

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/openclaw/chat-gateway-go/internal/audit"
	apperrors "github.com/openclaw/chat-gateway-go/internal/errors"
	"github.com/openclaw/chat-gateway-go/internal/httputil"
	"github.com/openclaw/chat-gateway-go/internal/model"
)

const qrImageSize = 256

// Publisher pushes pairing events to the broadcast queue.
type Publisher interface {
	PublishPairing(ctx context.Context, ev model.PairingEvent) error
}

// Distributor renders pairing payloads into QR artifacts, publishes them to
// the broadcast queue and the operator callback, and expires them. Exactly
// one artifact is live at a time; regeneration supersedes.
type Distributor struct {
	publisher   Publisher
	callback    *httputil.CallbackClient // nil when no callback is configured
	instanceID  string
	expiry      time.Duration
	onExpired   func()

	mu    sync.Mutex
	live  *model.PairingArtifact
	timer *time.Timer
}

func NewDistributor(
	publisher Publisher,
	callback *httputil.CallbackClient,
	instanceID string,
	expiry time.Duration,
	onExpired func(),
) *Distributor {
	return &Distributor{
		publisher:  publisher,
		callback:   callback,
		instanceID: instanceID,
		expiry:     expiry,
		onExpired:  onExpired,
	}
}

// Distribute renders payload into the live pairing artifact, superseding any
// previous one, publishes it, and arms the expiry timer. The callback POST
// is best-effort; its failure is logged, never fatal.
func (d *Distributor) Distribute(ctx context.Context, payload string) (*model.PairingArtifact, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, apperrors.PairingFailed("render qr").WithCause(err)
	}

	artifact := &model.PairingArtifact{
		DataURL:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		IssuedAt: time.Now(),
	}

	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.live = artifact
	d.timer = time.AfterFunc(d.expiry, d.expire)
	d.mu.Unlock()

	ev := model.PairingEvent{
		QRCode:     artifact.DataURL,
		InstanceID: d.instanceID,
		Type:       "qr_code",
	}
	if err := d.publisher.PublishPairing(ctx, ev); err != nil {
		log.Error().Err(err).Msg("failed to publish pairing artifact")
	}

	if d.callback != nil {
		if err := d.callback.PostPairing(ctx, ev); err != nil {
			log.Warn().Err(err).Msg("pairing callback failed")
		}
	}

	audit.Log(ctx, audit.Event{Type: audit.EventPairingIssued})
	log.Info().Time("issuedAt", artifact.IssuedAt).Msg("pairing artifact distributed")

	return artifact, nil
}

// Invalidate drops the live artifact without issuing a new one, e.g. when
// the session connected and the code is spent.
func (d *Distributor) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.live = nil
}

// Live returns the current artifact, or nil when none is live.
func (d *Distributor) Live() *model.PairingArtifact {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

func (d *Distributor) expire() {
	d.mu.Lock()
	expired := d.live != nil
	d.live = nil
	d.timer = nil
	d.mu.Unlock()

	if !expired {
		return
	}

	audit.Log(context.Background(), audit.Event{Type: audit.EventPairingExpired})
	log.Warn().Msg("pairing artifact expired; operator must request regeneration")

	if d.onExpired != nil {
		d.onExpired()
	}
}
