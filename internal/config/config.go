package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port               int    `env:"PORT" envDefault:"8080"`
	RedisURL           string `env:"REDIS_URL,required"`
	DatabaseURL        string `env:"DATABASE_URL"`
	SessionStoreURL    string `env:"SESSION_STORE_URL"`
	InstanceID         string `env:"INSTANCE_ID"`
	DefaultCountryCode string `env:"DEFAULT_COUNTRY_CODE" envDefault:"55"`
	PairingCallbackURL string `env:"PAIRING_CALLBACK_URL"`
	TemplatesFile      string `env:"TEMPLATES_FILE"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`

	OutboundQueue       string `env:"OUTBOUND_QUEUE" envDefault:"queue:outbound"`
	InboundQueue        string `env:"INBOUND_QUEUE" envDefault:"queue:inbound"`
	DeliveryStatusQueue string `env:"DELIVERY_STATUS_QUEUE" envDefault:"queue:delivery-status"`
	SessionStatusQueue  string `env:"SESSION_STATUS_QUEUE" envDefault:"queue:session-status"`
	PairingQueue        string `env:"PAIRING_QUEUE" envDefault:"queue:pairing"`

	PairingExpirySeconds int `env:"PAIRING_EXPIRY_SECONDS" envDefault:"120"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) PairingExpiry() time.Duration {
	return time.Duration(c.PairingExpirySeconds) * time.Second
}

// ArchiveEnabled reports whether the Postgres message archive is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.DatabaseURL != ""
}

func (c *Config) Validate(isProduction bool) error {
	if c.SessionStoreURL == "" && c.DatabaseURL == "" {
		return fmt.Errorf("SESSION_STORE_URL or DATABASE_URL must be set to hold session credentials")
	}

	if isProduction {
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.DatabaseURL == "" {
			log.Warn().Msg("DATABASE_URL is empty: message archive disabled, no delivery paper trail")
		}
		if c.PairingCallbackURL == "" {
			log.Warn().Msg("PAIRING_CALLBACK_URL is empty: pairing artifacts only reach the broadcast queue")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
