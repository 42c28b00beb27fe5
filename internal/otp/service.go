package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/comeback-ar/backend/internal/common"
	"github.com/comeback-ar/backend/internal/lock"
	"github.com/comeback-ar/backend/internal/obs"
	"github.com/comeback-ar/backend/internal/realtime"
)

const (
	codesPath = "activation_codes"

	// generateAttempts bounds retries when a random 6-digit code collides
	// with an existing one.
	generateAttempts = 10
)

var validate = validator.New()

// ErrCodeUnavailable is returned when a code cannot be redeemed: unknown,
// already used or expired. The caller gets one message for all three so codes
// cannot be probed.
var ErrCodeUnavailable = errors.New("otp: code not available")

// Service owns the OTP lifecycle. Redemption runs under a per-code redis lock
// so two devices submitting simultaneously cannot both win.
type Service struct {
	Store    Store
	Realtime realtime.Store
	Locker   lock.Locker
	Log      zerolog.Logger

	Currency string
	TTL      time.Duration
}

// CreateInput is the cashier payload for selling a code.
type CreateInput struct {
	Amount   int64 `json:"amount" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"gte=1,lte=100"`
}

// RedeemResult tells the AR client what it unlocked.
type RedeemResult struct {
	Code     string `json:"code"`
	Amount   int64  `json:"amount"`
	Quantity int    `json:"quantity"`
	Currency string `json:"currency"`
}

func redeemMetric(result string) {
	if obs.OTPRedeemTotal != nil {
		obs.OTPRedeemTotal.WithLabelValues(result).Inc()
	}
}

// Create generates a unique 6-digit code and mirrors it for the AR client.
func (s *Service) Create(ctx context.Context, in CreateInput, createdBy string) (Code, error) {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if err := validate.Struct(in); err != nil {
		return Code{}, common.ValidationError("invalid amount or quantity")
	}

	var created Code
	var err error
	for attempt := 0; attempt < generateAttempts; attempt++ {
		created, err = s.Store.Create(ctx, Code{
			Code:      randomCode(),
			Amount:    in.Amount,
			Quantity:  in.Quantity,
			Currency:  s.Currency,
			CreatedBy: createdBy,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateCode) {
			return Code{}, fmt.Errorf("create otp code: %w", err)
		}
	}
	if err != nil {
		return Code{}, fmt.Errorf("create otp code: %w", err)
	}

	s.mirrorCreate(ctx, &created)
	s.Log.Info().Str("code_id", created.ID.String()).Str("created_by", createdBy).Msg("otp code created")
	return created, nil
}

// Redeem binds a code to a device and marks it used. Single use is enforced
// twice: the redis lock serialises concurrent redemptions of one code, and
// the store only flips codes that are still active.
func (s *Service) Redeem(ctx context.Context, code, deviceID string) (RedeemResult, error) {
	if code == "" || deviceID == "" {
		redeemMetric("invalid")
		return RedeemResult{}, common.ValidationError("missing otp_code or device_id")
	}

	var result RedeemResult
	err := s.Locker.WithLock(ctx, "otp:redeem:"+code, 10*time.Second, func(ctx context.Context) error {
		current, err := s.Store.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrCodeUnavailable
			}
			return err
		}
		if current.Status != StatusActive || s.expired(current) {
			return ErrCodeUnavailable
		}

		used, err := s.Store.MarkUsed(ctx, code, deviceID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Lost a race outside the lock scope (e.g. expiry sweep).
				return ErrCodeUnavailable
			}
			return err
		}

		s.mirrorUpdate(ctx, used)
		result = RedeemResult{
			Code:     used.Code,
			Amount:   used.Amount,
			Quantity: used.Quantity,
			Currency: used.Currency,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCodeUnavailable) {
			redeemMetric("rejected")
			return RedeemResult{}, common.NewAppError(common.CodeNotFound, "OTP code not found or already used", http.StatusNotFound, err)
		}
		redeemMetric("error")
		return RedeemResult{}, err
	}
	redeemMetric("ok")
	s.Log.Info().Str("code", code).Str("device_id", deviceID).Msg("otp code redeemed")
	return result, nil
}

// List returns codes, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]Code, error) {
	return s.Store.List(ctx, status)
}

// ExpireSweep flips stale active codes to expired and updates their mirrors.
// Returns the number of codes expired.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.Store.ExpireStale(ctx, now.Add(-s.ttl()))
	if err != nil {
		return 0, err
	}
	for _, c := range expired {
		s.mirrorUpdate(ctx, c)
	}
	if len(expired) > 0 {
		s.Log.Info().Int("count", len(expired)).Msg("expired stale otp codes")
	}
	return len(expired), nil
}

func (s *Service) expired(c Code) bool {
	return time.Since(c.CreatedAt) > s.ttl()
}

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) mirrorCreate(ctx context.Context, c *Code) {
	if s.Realtime == nil {
		return
	}
	key, err := s.Realtime.Push(ctx, codesPath, mirrorShape(*c))
	result := "ok"
	if err != nil {
		result = "error"
		s.Log.Error().Err(err).Str("code_id", c.ID.String()).Msg("otp mirror push failed")
	} else {
		c.FirebaseKey = key
		if err := s.Store.SetFirebaseKey(ctx, c.ID, key); err != nil {
			s.Log.Error().Err(err).Str("code_id", c.ID.String()).Msg("record otp firebase key failed")
		}
	}
	if obs.RealtimeSyncTotal != nil {
		obs.RealtimeSyncTotal.WithLabelValues("otp", result).Inc()
	}
}

func (s *Service) mirrorUpdate(ctx context.Context, c Code) {
	if s.Realtime == nil || c.FirebaseKey == "" {
		return
	}
	result := "ok"
	if err := s.Realtime.Set(ctx, codesPath+"/"+c.FirebaseKey, mirrorShape(c)); err != nil {
		result = "error"
		s.Log.Error().Err(err).Str("code_id", c.ID.String()).Msg("otp mirror update failed")
	}
	if obs.RealtimeSyncTotal != nil {
		obs.RealtimeSyncTotal.WithLabelValues("otp", result).Inc()
	}
}

// randomCode returns a uniformly random 6-digit code with leading zeros kept.
func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		// rand.Reader failing means the process is in serious trouble.
		panic(fmt.Sprintf("otp: read random: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64())
}
