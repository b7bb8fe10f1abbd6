package config

import "time"

// Session lifecycle timing
const (
	// HandshakeGraceDelay is imposed between handshake completion and any
	// further session activity so the network's anti-automation heuristics
	// see a freshly paired client idle for a moment.
	HandshakeGraceDelay = 3 * time.Second

	// ValidationDelay separates the Connected transition from the self-check.
	ValidationDelay = 5 * time.Second

	// IntegrityCheckInterval is how often the live identity is re-compared
	// against the recorded connected identity while validated.
	IntegrityCheckInterval = 30 * time.Second
)

// Outbound delivery
const (
	SendAttempts     = 3
	SendRetryDelay   = 2 * time.Second
	PendingBufferCap = 256
)

// Broker
const (
	BrokerReconnectDelay = 5 * time.Second
	BrokerConsumeTimeout = 5 * time.Second
)

// Status surface
const (
	StatusHeartbeatInterval = 30 * time.Second
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
	DBPingTimeout     = 5 * time.Second
)
