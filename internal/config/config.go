// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Remote modes.
const (
	RemoteModeREST = "rest"
	RemoteModeSQL  = "sql"
)

// Local slot backends.
const (
	SlotBackendSQL    = "sql"
	SlotBackendRedis  = "redis"
	SlotBackendMemory = "memory"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	AdminUserIDs   string `mapstructure:"ADMIN_USER_IDS"`

	// Local store (persistence shim + outbox).
	LocalDBDriver    string `mapstructure:"LOCAL_DB_DRIVER"`
	LocalDBDSN       string `mapstructure:"LOCAL_DB_DSN"`
	LocalSlotBackend string `mapstructure:"LOCAL_SLOT_BACKEND"`

	// Remote store.
	RemoteMode         string        `mapstructure:"REMOTE_MODE"`
	RemoteDBDSN        string        `mapstructure:"REMOTE_DB_DSN"`
	SupabaseURL        string        `mapstructure:"SUPABASE_URL"`
	SupabaseAnonKey    string        `mapstructure:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string        `mapstructure:"SUPABASE_SERVICE_KEY"`
	RemoteTimeout      time.Duration `mapstructure:"REMOTE_TIMEOUT"`

	// Identity provider token verification.
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`

	RedisURL   string `mapstructure:"REDIS_URL"`
	ElasticURL string `mapstructure:"ELASTIC_URL"`

	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `mapstructure:"OUTBOX_MAX_ATTEMPTS"`
	OutboxBaseBackoff  time.Duration `mapstructure:"OUTBOX_BASE_BACKOFF"`
	OutboxMaxBackoff   time.Duration `mapstructure:"OUTBOX_MAX_BACKOFF"`
	OutboxDLQInterval  time.Duration `mapstructure:"OUTBOX_DLQ_INTERVAL"`
	UserSyncAttempts   int           `mapstructure:"USER_SYNC_ATTEMPTS"`
	UserSyncDelay      time.Duration `mapstructure:"USER_SYNC_DELAY"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

var defaults = map[string]any{
	"PORT":                  "8375",
	"APP_ENV":               "development",
	"ALLOWED_ORIGINS":       "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173",
	"FEATURE_FLAGS":         "offline_fallback=on,live_notifications=on,auto_badges=off",
	"ADMIN_USER_IDS":        "",
	"LOCAL_DB_DRIVER":       "sqlite",
	"LOCAL_DB_DSN":          "softspot-local.db",
	"LOCAL_SLOT_BACKEND":    SlotBackendSQL,
	"REMOTE_MODE":           RemoteModeSQL,
	"REMOTE_DB_DSN":         "host=localhost port=5432 user=softspot password=password dbname=softspot sslmode=disable",
	"SUPABASE_URL":          "",
	"SUPABASE_ANON_KEY":     "",
	"SUPABASE_SERVICE_KEY":  "",
	"REMOTE_TIMEOUT":        "10s",
	"JWT_SECRET":            "your-secret-key-change-in-production",
	"JWT_PUBLIC_KEY":        "",
	"JWT_ISSUER":            "",
	"REDIS_URL":             "localhost:6379",
	"ELASTIC_URL":           "",
	"OUTBOX_POLL_INTERVAL":  "1s",
	"OUTBOX_BATCH_SIZE":     100,
	"OUTBOX_MAX_ATTEMPTS":   8,
	"OUTBOX_BASE_BACKOFF":   "2s",
	"OUTBOX_MAX_BACKOFF":    "5m",
	"OUTBOX_DLQ_INTERVAL":   "30s",
	"USER_SYNC_ATTEMPTS":    3,
	"USER_SYNC_DELAY":       "1s",
	"TRACING_ENABLED":       false,
	"TRACING_EXPORTER":      "stdout",
	"OTLP_ENDPOINT":         "localhost:4318",
	"TRACING_SAMPLER_RATIO": 1.0,
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	// The base config file is optional.
	_ = v.ReadInConfig()

	env := v.GetString("APP_ENV")
	if env != "" && env != "development" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Admins returns the configured admin identity ids.
func (c *Config) Admins() map[string]bool {
	out := make(map[string]bool)
	for _, id := range strings.Split(c.AdminUserIDs, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			out[id] = true
		}
	}
	return out
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" && c.JWTPublicKey == "" {
		return errors.New("JWT_SECRET or JWT_PUBLIC_KEY is required")
	}

	switch c.LocalDBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("LOCAL_DB_DRIVER must be sqlite or postgres, got %q", c.LocalDBDriver)
	}

	switch c.LocalSlotBackend {
	case "", SlotBackendSQL, SlotBackendRedis, SlotBackendMemory:
	default:
		return fmt.Errorf("LOCAL_SLOT_BACKEND must be sql, redis or memory, got %q", c.LocalSlotBackend)
	}

	switch c.RemoteMode {
	case RemoteModeREST:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_ANON_KEY are required when REMOTE_MODE=rest")
		}
	case RemoteModeSQL:
		if c.RemoteDBDSN == "" {
			return errors.New("REMOTE_DB_DSN is required when REMOTE_MODE=sql")
		}
	default:
		return fmt.Errorf("REMOTE_MODE must be rest or sql, got %q", c.RemoteMode)
	}

	if c.OutboxBatchSize <= 0 {
		return errors.New("OUTBOX_BATCH_SIZE must be positive")
	}
	if c.OutboxMaxAttempts <= 0 {
		return errors.New("OUTBOX_MAX_ATTEMPTS must be positive")
	}
	if c.UserSyncAttempts <= 0 {
		return errors.New("USER_SYNC_ATTEMPTS must be positive")
	}

	if c.IsProduction() {
		if c.JWTPublicKey == "" && c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if c.JWTPublicKey == "" && len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.RemoteMode == RemoteModeREST && c.SupabaseServiceKey == "" {
			return errors.New("SUPABASE_SERVICE_KEY is required in production for background sync")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if c.JWTPublicKey == "" && len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
