package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":           "postgres://localhost:5432/comeback?sslmode=disable",
		"REDIS_URL":              "redis://localhost:6379/0",
		"FREEDOMPAY_MERCHANT_ID": "500001",
		"FREEDOMPAY_SECRET_KEY":  "s3cr3t",
		"PUBLIC_BASE_URL":        "https://backend.example.com",
		"JWT_SECRET":             "jwt-secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "UZS", cfg.Currency)
	require.Equal(t, "ru", cfg.Language)
	require.Equal(t, "unity_app", cfg.PaymentOrigin)
	require.Equal(t, time.Hour, cfg.SessionTTL)
	require.Equal(t, 24*time.Hour, cfg.OTPTTL)
	require.Equal(t, int64(60), cfg.UnityAPIRateLimit)
	require.Equal(t, "migrations", cfg.MigrationsPath)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "9090"
	env["PAYMENT_SESSION_TTL"] = "30m"
	env["CORS_ALLOWED_ORIGINS"] = "https://admin.example.com, https://app.example.com"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 30*time.Minute, cfg.SessionTTL)
	require.Equal(t, []string{"https://admin.example.com", "https://app.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadMissingRequired(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL",
		"REDIS_URL",
		"FREEDOMPAY_MERCHANT_ID",
		"FREEDOMPAY_SECRET_KEY",
		"PUBLIC_BASE_URL",
		"JWT_SECRET",
	} {
		env := baseEnv()
		env[key] = ""
		_, err := LoadForTests(env)
		require.Error(t, err, key)
		require.Contains(t, err.Error(), key)
	}
}

func TestParseDurationFallback(t *testing.T) {
	env := baseEnv()
	env["PAYMENT_SESSION_TTL"] = "not-a-duration"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.SessionTTL)
}
