// Package config loads runtime configuration from the environment so main
// stays lean. Defaults are development-friendly; production overrides
// everything via env vars.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures all tunables for the shopcore server.
type Config struct {
	Addr          string `env:"SHOPCORE_ADDR" envDefault:":8080"`
	PublicBaseURL string `env:"SHOPCORE_PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// DatabaseURL enables the Postgres-backed stores when set. Empty means
	// in-memory stores (development mode).
	DatabaseURL string `env:"SHOPCORE_DATABASE_URL"`

	// RedisURL enables the Redis-backed token store when set.
	RedisURL string `env:"SHOPCORE_REDIS_URL"`

	// SeedGeo loads the development reference hierarchy into the geo store.
	SeedGeo bool `env:"SHOPCORE_SEED_GEO" envDefault:"true"`

	JWTSigningKey string        `env:"SHOPCORE_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	SessionTTL    time.Duration `env:"SHOPCORE_SESSION_TTL" envDefault:"24h"`

	// AdminEmail and AdminPassword bootstrap an operator account at startup
	// when both are set. Already-existing accounts are left alone.
	AdminEmail    string `env:"SHOPCORE_ADMIN_EMAIL"`
	AdminPassword string `env:"SHOPCORE_ADMIN_PASSWORD"`

	Lockout  LockoutConfig
	Tokens   TokenConfig
	Mailgun  MailgunConfig
	Shutdown time.Duration `env:"SHOPCORE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LockoutConfig governs the failed-login state machine.
type LockoutConfig struct {
	// MaxFailedAttempts is the consecutive-failure threshold that trips a
	// lockout.
	MaxFailedAttempts int `env:"SHOPCORE_LOCKOUT_MAX_ATTEMPTS" envDefault:"3"`
	// Duration is how long a tripped lockout rejects logins.
	Duration time.Duration `env:"SHOPCORE_LOCKOUT_DURATION" envDefault:"5m"`
}

// TokenConfig governs confirmation and reset token lifetimes.
type TokenConfig struct {
	ConfirmationTTL time.Duration `env:"SHOPCORE_CONFIRMATION_TOKEN_TTL" envDefault:"72h"`
	ResetTTL        time.Duration `env:"SHOPCORE_RESET_TOKEN_TTL" envDefault:"1h"`
}

// MailgunConfig enables the Mailgun notifier when APIKey is set; otherwise
// notifications are logged only.
type MailgunConfig struct {
	APIKey string `env:"SHOPCORE_MAILGUN_API_KEY"`
	Domain string `env:"SHOPCORE_MAILGUN_DOMAIN"`
	Sender string `env:"SHOPCORE_MAIL_SENDER" envDefault:"Shopping <no-reply@shopcore.dev>"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
