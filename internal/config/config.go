package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// Store
	Store StoreConfig

	// Payment collaborator
	Payment PaymentConfig

	// HTTP client
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT,default=10s"`

	// Resilience
	MaxRetries     int           `env:"MAX_RETRIES,default=3"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF,default=100ms"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY,default=50"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// JWT / Auth
	JWTSecret    string        `env:"JWT_SECRET,default=influmatch-default-dev-secret-change-me"`
	JWTAccessTTL time.Duration `env:"JWT_ACCESS_TTL,default=24h"`

	// Bootstrap admin, created on serve when both are set
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	Backend        string `env:"STORE_BACKEND,default=file"`
	FilePath       string `env:"STORE_FILE_PATH,default=influmatch-store.json"`
	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB,default=0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=influmatch:"`
	PostgresDSN    string `env:"POSTGRES_DSN"`
}

// PaymentConfig locates the payment collaborator.
type PaymentConfig struct {
	APIURL     string        `env:"PAYMENT_API_URL,default=http://localhost:3000"`
	Timeout    time.Duration `env:"PAYMENT_TIMEOUT,default=15s"`
	SuccessURL string        `env:"PAYMENT_SUCCESS_URL,default=influmatch://payment/success"`
	CancelURL  string        `env:"PAYMENT_CANCEL_URL,default=influmatch://payment/cancel"`
}

// LoadDotEnv loads .env files into the environment. Variables that are
// already set keep their value. Missing files are not an error.
func LoadDotEnv(paths ...string) {
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration from l.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.FilePath == "" {
			return errors.New("STORE_FILE_PATH is required for the file backend")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis backend")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.JWTAccessTTL <= 0 {
		return errors.New("JWT_ACCESS_TTL must be positive")
	}
	return nil
}
