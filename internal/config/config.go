package config

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"github.com/partner-gateway-service/internal/credential"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	minJWTSecretLen = 32
)

type Config struct {
	Port           int    `env:"PORT,default=8080"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	StoreDriver    string `env:"STORE_DRIVER,default=postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrationsPath string `env:"MIGRATIONS_PATH,default=file://migrations"`

	RedisURL         string        `env:"REDIS_URL,required"`
	RateLimitTimeout time.Duration `env:"RATE_LIMIT_TIMEOUT,default=250ms"`

	CredentialEnv string        `env:"CREDENTIAL_ENV,default=live"`
	JWTSecret     string        `env:"JWT_SECRET,required"`
	JWTAccessTTL  time.Duration `env:"JWT_ACCESS_TTL,default=1h"`
	JWTRefreshTTL time.Duration `env:"JWT_REFRESH_TTL,default=168h"`

	GoogleClientID      string   `env:"GOOGLE_CLIENT_ID,required"`
	GoogleAllowedDomain string   `env:"GOOGLE_ALLOWED_DOMAIN"`
	GoogleAllowedEmails []string `env:"GOOGLE_ALLOWED_EMAILS,required"`
	CORSOrigins         []string `env:"CORS_ORIGINS"`
	TrustProxy          bool     `env:"TRUST_PROXY,default=false"`

	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT,default=10s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES,default=3"`
	WebhookBackoff    time.Duration `env:"WEBHOOK_BACKOFF_BASE,default=1s"`

	WorkerCount     int `env:"WORKER_COUNT,default=4"`
	WorkerQueueSize int `env:"WORKER_QUEUE_SIZE,default=256"`

	KeyExpirySchedule string `env:"KEY_EXPIRY_SCHEDULE,default=@every 5m"`

	// HTTP server timeouts
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT,default=60s"`
}

func Load() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL is not a valid level: %w", err)
	}

	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreDriver)
	}

	if c.CredentialEnv != credential.EnvLive && c.CredentialEnv != credential.EnvTest {
		return fmt.Errorf("CREDENTIAL_ENV must be %q or %q, got %q", credential.EnvLive, credential.EnvTest, c.CredentialEnv)
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= c.JWTAccessTTL {
		return fmt.Errorf("JWT_REFRESH_TTL (%s) must be longer than JWT_ACCESS_TTL (%s)", c.JWTRefreshTTL, c.JWTAccessTTL)
	}

	if c.RateLimitTimeout <= 0 {
		return fmt.Errorf("RATE_LIMIT_TIMEOUT must be positive, got %s", c.RateLimitTimeout)
	}
	if c.WebhookTimeout <= 0 || c.WebhookBackoff <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT and WEBHOOK_BACKOFF_BASE must be positive")
	}
	if c.WebhookMaxRetries < 1 || c.WebhookMaxRetries > 10 {
		return fmt.Errorf("WEBHOOK_MAX_RETRIES must be between 1 and 10, got %d", c.WebhookMaxRetries)
	}
	if c.WorkerCount < 1 || c.WorkerQueueSize < 1 {
		return fmt.Errorf("WORKER_COUNT and WORKER_QUEUE_SIZE must be positive")
	}

	if _, err := cron.ParseStandard(c.KeyExpirySchedule); err != nil {
		return fmt.Errorf("KEY_EXPIRY_SCHEDULE is not a valid cron schedule: %w", err)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
