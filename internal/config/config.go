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
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	// FreedomPay merchant integration.
	MerchantID     string
	GatewaySecret  string
	GatewayBaseURL string
	PublicBaseURL  string
	Currency       string
	Language       string
	PaymentOrigin  string

	// Realtime store mirror (Firebase RTDB REST).
	RealtimeDatabaseURL  string
	RealtimeAuthToken    string
	StorageBucket        string
	RealtimeTimeout      time.Duration
	RealtimeMaxAttempts  int
	RealtimeBreakerMin   int
	RealtimeBreakerRatio float64
	RealtimeBreakerOpen  time.Duration

	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string

	SessionTTL     time.Duration
	OTPTTL         time.Duration
	IdempotencyTTL time.Duration

	UnityAPIRateLimit  int64
	UnityAPIRateWindow time.Duration

	MigrationsPath string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		MerchantID:     k.String("FREEDOMPAY_MERCHANT_ID"),
		GatewaySecret:  k.String("FREEDOMPAY_SECRET_KEY"),
		GatewayBaseURL: valueOrDefault(k.String("FREEDOMPAY_BASE_URL"), "https://api.freedompay.uz"),
		PublicBaseURL:  k.String("PUBLIC_BASE_URL"),
		Currency:       valueOrDefault(k.String("PAYMENT_CURRENCY"), "UZS"),
		Language:       valueOrDefault(k.String("PAYMENT_LANGUAGE"), "ru"),
		PaymentOrigin:  valueOrDefault(k.String("PAYMENT_ORIGIN"), "unity_app"),

		RealtimeDatabaseURL:  k.String("FIREBASE_DATABASE_URL"),
		RealtimeAuthToken:    k.String("FIREBASE_DATABASE_SECRET"),
		StorageBucket:        k.String("FIREBASE_STORAGE_BUCKET"),
		RealtimeTimeout:      parseDuration(k.String("REALTIME_TIMEOUT"), "5s"),
		RealtimeMaxAttempts:  intOrDefault(k.Int("REALTIME_MAX_ATTEMPTS"), 3),
		RealtimeBreakerMin:   intOrDefault(k.Int("REALTIME_BREAKER_MIN_REQUESTS"), 5),
		RealtimeBreakerRatio: floatOrDefault(k.Float64("REALTIME_BREAKER_FAILURE_RATIO"), 0.5),
		RealtimeBreakerOpen:  parseDuration(k.String("REALTIME_BREAKER_OPEN_FOR"), "30s"),

		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "comeback-admin"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		SessionTTL:     parseDuration(k.String("PAYMENT_SESSION_TTL"), "1h"),
		OTPTTL:         parseDuration(k.String("OTP_TTL"), "24h"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),

		UnityAPIRateLimit:  int64(intOrDefault(k.Int("UNITY_API_RATE_LIMIT"), 60)),
		UnityAPIRateWindow: parseDuration(k.String("UNITY_API_RATE_WINDOW"), "1m"),

		MigrationsPath: valueOrDefault(k.String("MIGRATIONS_PATH"), "migrations"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.MerchantID == "" {
		return nil, errors.New("FREEDOMPAY_MERCHANT_ID is required")
	}
	if cfg.GatewaySecret == "" {
		return nil, errors.New("FREEDOMPAY_SECRET_KEY is required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("PUBLIC_BASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
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

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func floatOrDefault(value, fallback float64) float64 {
	if value > 0 {
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
