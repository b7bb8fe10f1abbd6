package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-gateway-go/internal/broker"
	"github.com/openclaw/chat-gateway-go/internal/chat"
	"github.com/openclaw/chat-gateway-go/internal/config"
	"github.com/openclaw/chat-gateway-go/internal/database"
	"github.com/openclaw/chat-gateway-go/internal/delivery"
	"github.com/openclaw/chat-gateway-go/internal/handler"
	"github.com/openclaw/chat-gateway-go/internal/httputil"
	"github.com/openclaw/chat-gateway-go/internal/jobs"
	"github.com/openclaw/chat-gateway-go/internal/model"
	"github.com/openclaw/chat-gateway-go/internal/pairing"
	redisclient "github.com/openclaw/chat-gateway-go/internal/redis"
	"github.com/openclaw/chat-gateway-go/internal/relay"
	"github.com/openclaw/chat-gateway-go/internal/repository"
	"github.com/openclaw/chat-gateway-go/internal/session"
	"github.com/openclaw/chat-gateway-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	redisClient, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	var (
		archive        *repository.Archive
		archiveHandler *handler.ArchiveHandler
	)
	if cfg.ArchiveEnabled() {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(rootCtx, config.DBPingTimeout)
		if err := db.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		cancel()
		log.Info().Msg("message archive connected")

		deliveryLog := repository.NewDeliveryLogRepository(db.DB)
		inboundLog := repository.NewInboundLogRepository(db.DB)
		archive = repository.NewArchive(deliveryLog, inboundLog)
		archiveHandler = handler.NewArchiveHandler(deliveryLog, inboundLog)
	} else {
		log.Warn().Msg("message archive disabled")
	}

	sessionStoreURL := cfg.SessionStoreURL
	if sessionStoreURL == "" {
		sessionStoreURL = cfg.DatabaseURL
	}
	chatClient, err := chat.NewWhatsmeowClient(sessionStoreURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build chat client")
	}

	statusBroker := sse.NewBroker(redisClient, redisclient.StatusChannel(cfg.InstanceID))
	defer statusBroker.Close()

	// The wiring below is circular on purpose: the machine's hooks reach the
	// gateway and distributor, which exist only after the machine. Hooks fire
	// only once Start has run, so late binding is safe. Neither hook does
	// network work on the machine goroutine: status publishes go through the
	// fanout worker and the buffered-request replay runs on the broker
	// consumer via the flush signal.
	var (
		gateway     *broker.Gateway
		distributor *pairing.Distributor
		status      *statusFanout
	)

	machine := session.NewMachine(chatClient, session.Hooks{
		OnTransition: func(state model.SessionState) {
			status.PublishState(state)
		},
		OnValidated: func() {
			distributor.Invalidate()
			gateway.StartConsumer(rootCtx)
			gateway.SignalFlush()
		},
		OnPairingCode: func(payload string) {
			if _, err := distributor.Distribute(rootCtx, payload); err != nil {
				log.Error().Err(err).Msg("failed to distribute pairing artifact")
			}
		},
	}, session.WithDelays(config.HandshakeGraceDelay, config.ValidationDelay))

	guard := session.NewGuard(machine, chatClient, cfg.DefaultCountryCode)
	buffer := session.NewPendingBuffer(config.PendingBufferCap)

	queues := broker.Queues{
		Outbound:       cfg.OutboundQueue,
		Inbound:        cfg.InboundQueue,
		DeliveryStatus: cfg.DeliveryStatusQueue,
		SessionStatus:  cfg.SessionStatusQueue,
		Pairing:        cfg.PairingQueue,
	}

	engineOpts := []delivery.Option{
		delivery.WithRetry(config.SendAttempts, config.SendRetryDelay),
	}
	if archive != nil {
		engineOpts = append(engineOpts, delivery.WithArchiver(archive))
	}

	// Templates are opaque operator content; load failures leave literal
	// messages working.
	templates := loadTemplates(cfg.TemplatesFile)

	// Deliver is invoked by the gateway's consumer loop; the gateway is
	// assigned before DeclareQueues runs, so the loop never sees nil.
	engine := delivery.NewEngine(guard, buffer, chatClient, deferredStatus{&gateway}, templates, cfg.DefaultCountryCode, engineOpts...)
	gateway = broker.NewGateway(redisClient, queues, engine, machine,
		broker.WithReconnectDelay(config.BrokerReconnectDelay),
		broker.WithConsumeTimeout(config.BrokerConsumeTimeout),
	)
	status = newStatusFanout(rootCtx, gateway, statusBroker)

	var callback *httputil.CallbackClient
	if cfg.PairingCallbackURL != "" {
		callback = httputil.NewCallbackClient(cfg.PairingCallbackURL)
	}
	distributor = pairing.NewDistributor(gateway, callback, cfg.InstanceID, cfg.PairingExpiry(), machine.PairingExpired)

	var inboundArchive relay.Archiver
	if archive != nil {
		inboundArchive = archive
	}
	messageRelay := relay.New(gateway, func() string {
		return machine.Snapshot().ConnectedIdentity
	}, cfg.DefaultCountryCode, inboundArchive)

	chatClient.SetHandlers(chat.Handlers{
		OnPairingCode:  machine.PairingCode,
		OnConnected:    machine.HandshakeComplete,
		OnDisconnected: machine.ConnectionLost,
		OnMessage: func(ev chat.MessageEvent) {
			messageRelay.HandleMessage(rootCtx, ev)
		},
	})

	if err := gateway.DeclareQueues(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to declare queues")
	}
	defer gateway.Stop()

	machine.Start()
	defer machine.Stop()
	machine.Initialize()

	gateway.StartConsumer(rootCtx)

	integrityJob := jobs.NewIntegrityJob(machine, chatClient, cfg.DefaultCountryCode, config.IntegrityCheckInterval, os.Exit)
	integrityJob.Start()
	defer integrityJob.Stop()

	heartbeatJob := jobs.NewHeartbeatJob(machine, status, config.StatusHeartbeatInterval)
	heartbeatJob.Start()
	defer heartbeatJob.Stop()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})
	r.Get("/status", handler.NewStatusHandler(machine).ServeHTTP)
	r.Get("/events", handler.NewEventsHandler(statusBroker, machine).ServeHTTP)
	if archiveHandler != nil {
		r.Get("/logs/deliveries", archiveHandler.ListDeliveries)
		r.Get("/logs/inbound", archiveHandler.ListInbound)
	}

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting status server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down gateway")

	rootCancel()
	chatClient.Disconnect()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("gateway stopped")
}

// statusFanout sends session-status both to the broker queue and to the
// local SSE push channel. Transition snapshots from the state machine go
// through a worker goroutine so the machine never waits on the network.
type statusFanout struct {
	gateway *broker.Gateway
	sse     *sse.Broker
	queue   chan model.SessionState
}

func newStatusFanout(ctx context.Context, gateway *broker.Gateway, sseBroker *sse.Broker) *statusFanout {
	f := &statusFanout{
		gateway: gateway,
		sse:     sseBroker,
		queue:   make(chan model.SessionState, 16),
	}
	go f.run(ctx)
	return f
}

func (f *statusFanout) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-f.queue:
			if err := f.PublishSessionStatus(ctx, state.StatusEvent()); err != nil {
				log.Error().Err(err).Msg("failed to publish session status")
			}
		}
	}
}

// PublishState hands a transition snapshot to the fanout worker.
func (f *statusFanout) PublishState(state model.SessionState) {
	select {
	case f.queue <- state:
	default:
		log.Warn().Msg("status fanout queue full, dropping snapshot")
	}
}

func (f *statusFanout) PublishSessionStatus(ctx context.Context, ev model.SessionStatusEvent) error {
	err := f.gateway.PublishSessionStatus(ctx, ev)

	data, mErr := json.Marshal(ev)
	if mErr == nil {
		if pErr := f.sse.Publish(ctx, sse.Event{Type: "status", Data: data}); pErr != nil {
			log.Error().Err(pErr).Msg("failed to push status to sse channel")
		}
	}
	return err
}

// deferredStatus lets the engine publish through the gateway even though the
// gateway is constructed after the engine.
type deferredStatus struct {
	gateway **broker.Gateway
}

func (d deferredStatus) PublishDeliveryStatus(ctx context.Context, ev model.DeliveryStatusEvent) error {
	return (*d.gateway).PublishDeliveryStatus(ctx, ev)
}

func loadTemplates(path string) delivery.Templates {
	if path == "" {
		return delivery.Templates{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not read templates file")
		return delivery.Templates{}
	}

	var templates delivery.Templates
	if err := json.Unmarshal(data, &templates); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not parse templates file")
		return delivery.Templates{}
	}

	log.Info().Int("count", len(templates)).Msg("message templates loaded")
	return templates
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
