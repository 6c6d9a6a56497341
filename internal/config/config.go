package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the vault service.
// Environment variables are automatically parsed from the VAULT_BACKEND_ prefix.
type Config struct {
	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Database driver: sqlite or postgres
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`

	// Postgres Configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// SQLite Configuration
	SQLitePath string `envconfig:"SQLITE_PATH" default:"vault.db"`

	// Session Configuration
	SessionTTLHours int `envconfig:"SESSION_TTL_HOURS" default:"336"`

	// Signup throttle: accounts allowed per origin per day
	SignupPerDay int `envconfig:"SIGNUP_PER_DAY" default:"5"`

	// SecureCookies marks session cookies Secure; enable behind TLS.
	SecureCookies bool `envconfig:"SECURE_COOKIES" default:"false"`
}

// ResolveDefaults validates the driver selection and its required settings.
func (c *Config) ResolveDefaults() error {
	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("VAULT_BACKEND_SQLITE_PATH required for sqlite driver")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("VAULT_BACKEND_POSTGRES_DSN required for postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	if c.SignupPerDay <= 0 {
		return fmt.Errorf("SIGNUP_PER_DAY must be positive")
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Environment variables should be prefixed with VAULT_BACKEND_
// Example: VAULT_BACKEND_HTTP_PORT, VAULT_BACKEND_POSTGRES_DSN
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("VAULT_BACKEND", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Int("port", cfg.HTTPPort).
		Int("session_ttl_hours", cfg.SessionTTLHours).
		Int("signup_per_day", cfg.SignupPerDay).
		Bool("secure_cookies", cfg.SecureCookies).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
