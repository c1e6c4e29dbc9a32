// Package config loads runtime configuration from environment
// variables.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/example/babylog-bot/internal/pool"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL"` // Postgres; empty means embedded SQLite
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"babylog.db"`
	DefaultTZ   string `envconfig:"DEFAULT_TZ" default:"Asia/Jakarta"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	TwilioAccountSID     string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken      string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsAppNumber string `envconfig:"TWILIO_WHATSAPP_NUMBER"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`

	ReminderCheckInterval time.Duration `envconfig:"REMINDER_CHECK_INTERVAL" default:"30m"`
	CleanupCheckInterval  time.Duration `envconfig:"CLEANUP_CHECK_INTERVAL" default:"60m"`
	HealthCheckInterval   time.Duration `envconfig:"HEALTH_CHECK_INTERVAL" default:"15m"`

	DBMinConns            int           `envconfig:"DB_MIN_CONNS" default:"2"`
	DBMaxConns            int           `envconfig:"DB_MAX_CONNS" default:"10"`
	DBAcquireTimeout      time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"30s"`
	DBHealthCheckInterval time.Duration `envconfig:"DB_HEALTH_CHECK_INTERVAL" default:"60s"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// PoolConfig collects the connection pool knobs.
func (c Config) PoolConfig() pool.Config {
	return pool.Config{
		MinConns:            c.DBMinConns,
		MaxConns:            c.DBMaxConns,
		AcquireTimeout:      c.DBAcquireTimeout,
		HealthCheckInterval: c.DBHealthCheckInterval,
	}
}

// Location resolves the configured timezone, falling back to UTC when
// the name is unknown.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
