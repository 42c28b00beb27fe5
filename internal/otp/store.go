package otp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no code matches.
	ErrNotFound = errors.New("otp: code not found")
	// ErrDuplicateCode is returned when a generated code collides.
	ErrDuplicateCode = errors.New("otp: duplicate code")
	// ErrStoreUnavailable is returned when the store has no usable pool.
	ErrStoreUnavailable = errors.New("otp: store unavailable")
)

// Store persists OTP codes.
type Store interface {
	Create(ctx context.Context, c Code) (Code, error)
	GetByCode(ctx context.Context, code string) (Code, error)
	List(ctx context.Context, status Status) ([]Code, error)
	// MarkUsed flips an active code to used and binds the device. Returns
	// ErrNotFound when the code does not exist or is no longer active.
	MarkUsed(ctx context.Context, code, deviceID string) (Code, error)
	// ExpireStale flips active codes created before cutoff to expired and
	// returns them so the mirror can be updated.
	ExpireStale(ctx context.Context, cutoff time.Time) ([]Code, error)
	SetFirebaseKey(ctx context.Context, id uuid.UUID, key string) error
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore returns a PostgreSQL-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const codeColumns = `id, code, amount, quantity, currency, status, created_by,
created_at, used_at, COALESCE(device_id, ''), COALESCE(firebase_key, '')`

func scanCode(row pgx.Row) (Code, error) {
	var c Code
	err := row.Scan(&c.ID, &c.Code, &c.Amount, &c.Quantity, &c.Currency, &c.Status,
		&c.CreatedBy, &c.CreatedAt, &c.UsedAt, &c.DeviceID, &c.FirebaseKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return Code{}, ErrNotFound
	}
	return c, err
}

func (s *pgStore) Create(ctx context.Context, c Code) (Code, error) {
	if s == nil || s.pool == nil {
		return Code{}, ErrStoreUnavailable
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO otp_codes
(id, code, amount, quantity, currency, status, created_by)
VALUES ($1, $2, $3, $4, $5, 'active', $6)
RETURNING `+codeColumns,
		c.ID, c.Code, c.Amount, c.Quantity, c.Currency, c.CreatedBy)
	created, err := scanCode(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Code{}, ErrDuplicateCode
		}
		return Code{}, err
	}
	return created, nil
}

func (s *pgStore) GetByCode(ctx context.Context, code string) (Code, error) {
	if s == nil || s.pool == nil {
		return Code{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+codeColumns+` FROM otp_codes WHERE code = $1`, code)
	return scanCode(row)
}

func (s *pgStore) List(ctx context.Context, status Status) ([]Code, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	query := `SELECT ` + codeColumns + ` FROM otp_codes`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *pgStore) MarkUsed(ctx context.Context, code, deviceID string) (Code, error) {
	if s == nil || s.pool == nil {
		return Code{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE otp_codes
SET status = 'used', used_at = now(), device_id = NULLIF($2, '')
WHERE code = $1 AND status = 'active'
RETURNING `+codeColumns, code, deviceID)
	return scanCode(row)
}

func (s *pgStore) ExpireStale(ctx context.Context, cutoff time.Time) ([]Code, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `UPDATE otp_codes
SET status = 'expired'
WHERE status = 'active' AND created_at < $1
RETURNING `+codeColumns, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *pgStore) SetFirebaseKey(ctx context.Context, id uuid.UUID, key string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE otp_codes SET firebase_key = NULLIF($2, '') WHERE id = $1`, id, key)
	return err
}
