// Package config decodes process configuration from the environment. A .env
// file, when present, seeds the environment before decoding.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Scheduler SchedulerConfig
	Payments  PaymentsConfig
	Gamify    GamifyConfig
}

type ServerConfig struct {
	Host         string        `env:"SERVER_HOST,default=0.0.0.0"`
	Port         int           `env:"SERVER_PORT,default=8080"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT,default=15s"`
	APIToken     string        `env:"API_TOKEN"`
	CORSOrigin   string        `env:"CORS_ORIGIN,default=*"`
	// Webhook deliveries per second before 429s.
	WebhookRate  float64 `env:"WEBHOOK_RATE_LIMIT,default=10"`
	WebhookBurst int     `env:"WEBHOOK_RATE_BURST,default=20"`
	// AuditLogPath enables JSONL persistence of the request audit trail.
	AuditLogPath string `env:"AUDIT_LOG_PATH"`
}

type DatabaseConfig struct {
	// Empty URL selects the in-memory store.
	URL          string        `env:"DATABASE_URL"`
	MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns int           `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnLifetime time.Duration `env:"DATABASE_CONN_LIFETIME,default=30m"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
	Output string `env:"LOG_OUTPUT,default=stdout"`
}

type SchedulerConfig struct {
	Interval time.Duration `env:"SETTLEMENT_INTERVAL,default=30s"`
}

type PaymentsConfig struct {
	// Mode selects the gateway once at startup: "simulated" or "real".
	Mode          string `env:"PAYMENT_GATEWAY_MODE,default=simulated"`
	Endpoint      string `env:"PAYMENT_GATEWAY_URL"`
	APIKey        string `env:"PAYMENT_GATEWAY_KEY"`
	WebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET"`
}

type GamifyConfig struct {
	CatalogPath string `env:"GAMIFY_CATALOG,default=config/gamify.yaml"`
}

// Load reads .env (ignored when absent) and decodes the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Payments.Mode {
	case "simulated", "real":
	default:
		return fmt.Errorf("invalid payment gateway mode %q", c.Payments.Mode)
	}
	if c.Payments.Mode == "real" && c.Payments.Endpoint == "" {
		return fmt.Errorf("PAYMENT_GATEWAY_URL required in real mode")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("settlement interval must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
