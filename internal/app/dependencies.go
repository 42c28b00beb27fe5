// Package app collects cross-module wiring helpers used by the binaries.
package app

import (
	"fmt"
	"net/http"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RunMigrations applies pending database migrations from sourceURL against
// databaseURL. ErrNoChange is not an error.
func RunMigrations(sourceURL, databaseURL string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// NewAPILimiter builds a Redis-backed per-IP rate limit middleware for the
// public Unity endpoints.
func NewAPILimiter(rdb *redis.Client, max int64, window time.Duration) (func(http.Handler) http.Handler, error) {
	if max <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix: "api_rate",
	})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	instance := limiter.New(store, limiter.Rate{Period: window, Limit: max})
	return limiterstdlib.NewMiddleware(instance).Handler, nil
}
