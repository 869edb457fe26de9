package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	Currency      string
	TierGapPolicy string
	QuoteCacheTTL time.Duration
	IdemTTL       time.Duration
	CartTTL       time.Duration

	MpesaBaseURL        string
	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaShortcode      string
	MpesaPasskey        string
	MpesaCallbackURL    string
	MpesaTimeout        time.Duration
	PaymentPendingTTL   time.Duration
	CallbackReplayTTL   time.Duration
	ReconcileInterval   time.Duration

	RateLimitRPS int
	OTLPEndpoint string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		Currency:      valueOrDefault(k.String("CURRENCY"), "KES"),
		TierGapPolicy: valueOrDefault(strings.ToLower(k.String("TIER_GAP_POLICY")), "fail"),
		QuoteCacheTTL: parseDuration(k.String("QUOTE_CACHE_TTL"), "2m"),
		IdemTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CartTTL:       parseDuration(k.String("CART_TTL"), "168h"),

		MpesaBaseURL:        valueOrDefault(k.String("MPESA_BASE_URL"), "https://sandbox.safaricom.co.ke"),
		MpesaConsumerKey:    k.String("MPESA_CONSUMER_KEY"),
		MpesaConsumerSecret: k.String("MPESA_CONSUMER_SECRET"),
		MpesaShortcode:      k.String("MPESA_SHORTCODE"),
		MpesaPasskey:        k.String("MPESA_PASSKEY"),
		MpesaCallbackURL:    k.String("MPESA_CALLBACK_URL"),
		MpesaTimeout:        parseDuration(k.String("MPESA_TIMEOUT"), "30s"),
		PaymentPendingTTL:   parseDuration(k.String("PAYMENT_PENDING_TTL"), "15m"),
		CallbackReplayTTL:   parseDuration(k.String("CALLBACK_REPLAY_TTL"), "24h"),
		ReconcileInterval:   parseDuration(k.String("RECONCILE_INTERVAL"), "1m"),

		RateLimitRPS: parseInt(k.String("RATE_LIMIT_RPS"), 20),
		OTLPEndpoint: k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.TierGapPolicy != "fail" && cfg.TierGapPolicy != "base_price" {
		return nil, fmt.Errorf("TIER_GAP_POLICY must be fail or base_price, got %q", cfg.TierGapPolicy)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	base := strings.TrimSpace(value)
	if base == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(base, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
