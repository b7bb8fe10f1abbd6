// Package broker manages the single logical connection to the message
// broker: queue declaration, the outbound consumer, publishing, and
// reconnection. Queues are redis lists; publishing is LPUSH, consuming is
// BRPOP, so a message is acknowledged by being popped.
package broker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-gateway-go/internal/model"
)

// Queues names the fixed queue set. The names are contract with existing
// consumers and must match their configuration exactly.
type Queues struct {
	Outbound       string
	Inbound        string
	DeliveryStatus string
	SessionStatus  string
	Pairing        string
}

func (q Queues) all() []string {
	return []string{q.Outbound, q.Inbound, q.DeliveryStatus, q.SessionStatus, q.Pairing}
}

// Commands is the subset of redis operations the gateway needs. *redis.Client
// satisfies it; tests supply a fake.
type Commands interface {
	Ping(ctx context.Context) *redis.StatusCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// OutboundHandler processes a consumed outbound request to a terminal state.
// Flush replays requests buffered before validation; the consumer loop calls
// both, so replay and fresh pops are serialized on one goroutine.
type OutboundHandler interface {
	Deliver(ctx context.Context, req model.OutboundRequest)
	Flush(ctx context.Context)
}

// CommandHandler dispatches administrative commands from the outbound queue.
type CommandHandler interface {
	Disconnect()
	RegeneratePairing()
}

// Gateway owns the broker handle. No other component holds a second one;
// everything publishes through it.
type Gateway struct {
	rdb      Commands
	queues   Queues
	handler  OutboundHandler
	commands CommandHandler

	reconnectDelay time.Duration
	consumeTimeout time.Duration

	consuming atomic.Bool
	flush     chan struct{}
	done      chan struct{}
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithReconnectDelay overrides the fixed delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(g *Gateway) {
		g.reconnectDelay = d
	}
}

// WithConsumeTimeout overrides the blocking-pop timeout.
func WithConsumeTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.consumeTimeout = d
	}
}

func NewGateway(rdb Commands, queues Queues, handler OutboundHandler, commands CommandHandler, opts ...Option) *Gateway {
	g := &Gateway{
		rdb:            rdb,
		queues:         queues,
		handler:        handler,
		commands:       commands,
		reconnectDelay: 5 * time.Second,
		consumeTimeout: 5 * time.Second,
		flush:          make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DeclareQueues verifies broker connectivity and logs the queue contract.
// Redis lists come into existence on first push, so declaration is a
// connectivity check plus an explicit record of the names in use.
func (g *Gateway) DeclareQueues(ctx context.Context) error {
	if err := g.rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	for _, name := range g.queues.all() {
		log.Info().Str("queue", name).Msg("queue declared")
	}
	return nil
}

// StartConsumer launches the outbound consumer loop. Safe to call more than
// once; only the first call starts the loop.
func (g *Gateway) StartConsumer(ctx context.Context) {
	if !g.consuming.CompareAndSwap(false, true) {
		return
	}
	go g.consume(ctx)
	log.Info().Str("queue", g.queues.Outbound).Msg("outbound consumer started")
}

// SignalFlush asks the consumer loop to replay buffered requests before its
// next pop. Signals coalesce; one pending signal is enough.
func (g *Gateway) SignalFlush() {
	select {
	case g.flush <- struct{}{}:
	default:
	}
}

// Stop terminates the consumer loop.
func (g *Gateway) Stop() {
	close(g.done)
}

func (g *Gateway) consume(ctx context.Context) {
	for {
		select {
		case <-g.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-g.flush:
			// Buffered requests predate anything still on the queue, so
			// they go out before the next pop.
			g.handler.Flush(ctx)
			continue
		default:
		}

		result, err := g.rdb.BRPop(ctx, g.consumeTimeout, g.queues.Outbound).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Broker connectivity is retried forever at a fixed delay; the
			// process stays alive.
			log.Error().Err(err).Msg("broker consume failed, reconnecting")
			g.awaitReconnect(ctx)
			continue
		}
		if len(result) != 2 {
			continue
		}

		g.dispatch(ctx, []byte(result[1]))
	}
}

func (g *Gateway) awaitReconnect(ctx context.Context) {
	for {
		select {
		case <-g.done:
			return
		case <-ctx.Done():
			return
		case <-time.After(g.reconnectDelay):
		}

		if err := g.rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("broker still unreachable")
			continue
		}
		log.Info().Msg("broker connection restored")
		return
	}
}

// dispatch routes one consumed payload: administrative commands go to the
// command handler, everything else is an outbound message request. Requests
// are processed in delivery order, one at a time.
func (g *Gateway) dispatch(ctx context.Context, payload []byte) {
	var req model.OutboundRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Error().Err(err).Msg("dropping undecodable outbound payload")
		return
	}
	req.ReceivedAt = time.Now()

	if req.IsCommand() {
		switch req.Command {
		case model.CommandDisconnect:
			log.Info().Msg("disconnect command consumed")
			g.commands.Disconnect()
		case model.CommandRegeneratePairing:
			log.Info().Msg("regenerate-pairing command consumed")
			g.commands.RegeneratePairing()
		default:
			log.Warn().Str("command", req.Command).Msg("unknown command ignored")
		}
		return
	}

	g.handler.Deliver(ctx, req)
}

// Publishing is fire-and-forget: a single LPUSH with no read-back
// confirmation, preserving the source's best-effort semantics.

func (g *Gateway) PublishInbound(ctx context.Context, msg model.InboundMessage) error {
	return g.publish(ctx, g.queues.Inbound, msg)
}

func (g *Gateway) PublishDeliveryStatus(ctx context.Context, ev model.DeliveryStatusEvent) error {
	return g.publish(ctx, g.queues.DeliveryStatus, ev)
}

func (g *Gateway) PublishSessionStatus(ctx context.Context, ev model.SessionStatusEvent) error {
	return g.publish(ctx, g.queues.SessionStatus, ev)
}

func (g *Gateway) PublishPairing(ctx context.Context, ev model.PairingEvent) error {
	return g.publish(ctx, g.queues.Pairing, ev)
}

func (g *Gateway) publish(ctx context.Context, queue string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := g.rdb.LPush(ctx, queue, data).Err(); err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("publish failed")
		return err
	}
	return nil
}
