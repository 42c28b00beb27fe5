// Package subscription manages the single-row pricing configuration the AR
// client reads to gate paid content.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/comeback-ar/backend/internal/common"
	"github.com/comeback-ar/backend/internal/obs"
	"github.com/comeback-ar/backend/internal/realtime"
)

const settingsPath = "subscription_settings"

// ErrStoreUnavailable is returned when the store has no usable pool.
var ErrStoreUnavailable = errors.New("subscription: store unavailable")

var validate = validator.New()

// Settings is the singleton pricing configuration. Price is in minor units.
type Settings struct {
	Price           int64     `json:"price"`
	DurationMinutes int       `json:"duration_minutes"`
	Currency        string    `json:"currency"`
	IsActive        bool      `json:"is_active"`
	UpdatedAt       time.Time `json:"updated_at"`
	UpdatedBy       string    `json:"updated_by"`
}

// UpdateInput is the admin payload for changing the settings.
type UpdateInput struct {
	Price           int64  `json:"price" validate:"required,gt=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gte=1,lte=1440"`
	Currency        string `json:"currency" validate:"required,len=3"`
	IsActive        bool   `json:"is_active"`
}

// Store persists the settings row.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Upsert(ctx context.Context, s Settings) (Settings, error)
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore returns a PostgreSQL-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// Get returns the current settings, falling back to defaults when the row
// does not exist yet.
func (s *pgStore) Get(ctx context.Context) (Settings, error) {
	if s == nil || s.pool == nil {
		return Settings{}, ErrStoreUnavailable
	}
	var out Settings
	err := s.pool.QueryRow(ctx, `SELECT price, duration_minutes, currency, is_active, updated_at, COALESCE(updated_by, '')
FROM subscription_settings WHERE id = 1`).
		Scan(&out.Price, &out.DurationMinutes, &out.Currency, &out.IsActive, &out.UpdatedAt, &out.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return defaultSettings(), nil
		}
		return Settings{}, err
	}
	return out, nil
}

// Upsert writes the settings into the single row, creating it on first use.
func (s *pgStore) Upsert(ctx context.Context, in Settings) (Settings, error) {
	if s == nil || s.pool == nil {
		return Settings{}, ErrStoreUnavailable
	}
	var out Settings
	err := s.pool.QueryRow(ctx, `INSERT INTO subscription_settings (id, price, duration_minutes, currency, is_active, updated_by)
VALUES (1, $1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
price = EXCLUDED.price, duration_minutes = EXCLUDED.duration_minutes,
currency = EXCLUDED.currency, is_active = EXCLUDED.is_active,
updated_by = EXCLUDED.updated_by, updated_at = now()
RETURNING price, duration_minutes, currency, is_active, updated_at, COALESCE(updated_by, '')`,
		in.Price, in.DurationMinutes, in.Currency, in.IsActive, in.UpdatedBy).
		Scan(&out.Price, &out.DurationMinutes, &out.Currency, &out.IsActive, &out.UpdatedAt, &out.UpdatedBy)
	if err != nil {
		return Settings{}, fmt.Errorf("upsert subscription settings: %w", err)
	}
	return out, nil
}

func defaultSettings() Settings {
	return Settings{
		Price:           5000,
		DurationMinutes: 30,
		Currency:        "UZS",
		IsActive:        true,
	}
}

// Service wraps the store with validation and realtime mirroring.
type Service struct {
	Store    Store
	Realtime realtime.Store
	Log      zerolog.Logger
}

// Get returns the current settings.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	return s.Store.Get(ctx)
}

// Update validates and persists new settings, then mirrors them so the AR
// client picks up the change without a backend round trip.
func (s *Service) Update(ctx context.Context, in UpdateInput, updatedBy string) (Settings, error) {
	if err := validate.Struct(in); err != nil {
		return Settings{}, common.ValidationError("invalid subscription settings")
	}
	settings, err := s.Store.Upsert(ctx, Settings{
		Price:           in.Price,
		DurationMinutes: in.DurationMinutes,
		Currency:        in.Currency,
		IsActive:        in.IsActive,
		UpdatedBy:       updatedBy,
	})
	if err != nil {
		return Settings{}, err
	}
	s.mirror(ctx, settings)
	return settings, nil
}

func (s *Service) mirror(ctx context.Context, settings Settings) {
	if s.Realtime == nil {
		return
	}
	payload := map[string]any{
		"price":            settings.Price,
		"duration_minutes": settings.DurationMinutes,
		"currency":         settings.Currency,
		"is_active":        settings.IsActive,
		"updated_at":       settings.UpdatedAt.UTC().Format(time.RFC3339),
	}
	result := "ok"
	if err := s.Realtime.Set(ctx, settingsPath, payload); err != nil {
		result = "error"
		s.Log.Error().Err(err).Msg("subscription settings mirror failed")
	}
	if obs.RealtimeSyncTotal != nil {
		obs.RealtimeSyncTotal.WithLabelValues("subscription", result).Inc()
	}
}
