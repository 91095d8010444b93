package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultJWTSecret  = "change-me-jwt-secret"
	defaultCronSecret = "change-me-cron-secret"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:"file:roombooking.db?_pragma=busy_timeout(5000)"`
	TenantsFile string `envconfig:"TENANTS_FILE" default:"tenants.yaml"`

	JWTSecret string        `envconfig:"JWT_SECRET" default:"change-me-jwt-secret"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"12h"`
	// CronSecret is the scheduler's bearer token, plain or as a bcrypt hash.
	CronSecret string `envconfig:"CRON_SECRET"`

	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	DeclineGrace  time.Duration `envconfig:"DECLINE_GRACE" default:"24h"`
	CheckoutGrace time.Duration `envconfig:"CHECKOUT_GRACE" default:"15m"`

	SideEffectWorkers     int `envconfig:"SIDE_EFFECT_WORKERS" default:"4"`
	SideEffectQueue       int `envconfig:"SIDE_EFFECT_QUEUE" default:"256"`
	SideEffectMaxAttempts int `envconfig:"SIDE_EFFECT_MAX_ATTEMPTS" default:"5"`

	RabbitURL      string `envconfig:"RABBIT_URL"`
	NotifyExchange string `envconfig:"NOTIFY_EXCHANGE" default:"booking.notifications"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.CronSecret = strings.TrimSpace(cfg.CronSecret)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if cfg.CronSecret == "" {
		slog.Warn("CRON_SECRET is not set; reconciliation endpoints will refuse every call")
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be > 0")
	}
	if cfg.DeclineGrace <= 0 {
		return fmt.Errorf("DECLINE_GRACE must be > 0")
	}
	if cfg.CheckoutGrace < 0 {
		return fmt.Errorf("CHECKOUT_GRACE must be >= 0")
	}
	if cfg.SideEffectWorkers <= 0 || cfg.SideEffectQueue <= 0 || cfg.SideEffectMaxAttempts <= 0 {
		return fmt.Errorf("SIDE_EFFECT_WORKERS, SIDE_EFFECT_QUEUE and SIDE_EFFECT_MAX_ATTEMPTS must be > 0")
	}
	if strings.TrimSpace(cfg.TenantsFile) == "" {
		return fmt.Errorf("TENANTS_FILE must not be empty")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if cfg.CronSecret == defaultCronSecret {
			return fmt.Errorf("in prod/release CRON_SECRET must not be default")
		}
		if !strings.HasPrefix(cfg.DatabaseURL, "postgres") {
			return fmt.Errorf("in prod/release DATABASE_URL must point at PostgreSQL")
		}
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto slog; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (c *Config) IsProdLike() bool { return isProdLike(c.AppEnv) }

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}
