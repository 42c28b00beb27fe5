package video

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no video object matches the identifier.
var ErrNotFound = errors.New("video: object not found")

// ErrStoreUnavailable is returned when the store has no usable pool.
var ErrStoreUnavailable = errors.New("video: store unavailable")

// Store persists video placements.
type Store interface {
	Create(ctx context.Context, o Object) (Object, error)
	Get(ctx context.Context, id uuid.UUID) (Object, error)
	List(ctx context.Context, activeOnly bool) ([]Object, error)
	Update(ctx context.Context, o Object) (Object, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// SetSyncState records the realtime mirror outcome for an object.
	SetSyncState(ctx context.Context, id uuid.UUID, firebaseKey string, synced bool) error
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore returns a PostgreSQL-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const objColumns = `id, title, description, latitude, longitude, video_url, is_active,
created_by, COALESCE(firebase_key, ''), synced, created_at, updated_at`

func scanObject(row pgx.Row) (Object, error) {
	var o Object
	err := row.Scan(&o.ID, &o.Title, &o.Description, &o.Latitude, &o.Longitude,
		&o.VideoURL, &o.IsActive, &o.CreatedBy, &o.FirebaseKey, &o.Synced,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Object{}, ErrNotFound
	}
	return o, err
}

func (s *pgStore) Create(ctx context.Context, o Object) (Object, error) {
	if s == nil || s.pool == nil {
		return Object{}, ErrStoreUnavailable
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO video_objects
(id, title, description, latitude, longitude, video_url, is_active, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+objColumns,
		o.ID, o.Title, o.Description, o.Latitude, o.Longitude, o.VideoURL, o.IsActive, o.CreatedBy)
	return scanObject(row)
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Object, error) {
	if s == nil || s.pool == nil {
		return Object{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+objColumns+` FROM video_objects WHERE id = $1`, id)
	return scanObject(row)
}

func (s *pgStore) List(ctx context.Context, activeOnly bool) ([]Object, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	query := `SELECT ` + objColumns + ` FROM video_objects`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *pgStore) Update(ctx context.Context, o Object) (Object, error) {
	if s == nil || s.pool == nil {
		return Object{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE video_objects SET
title = $2, description = $3, latitude = $4, longitude = $5, video_url = $6,
is_active = $7, updated_at = now()
WHERE id = $1
RETURNING `+objColumns,
		o.ID, o.Title, o.Description, o.Latitude, o.Longitude, o.VideoURL, o.IsActive)
	return scanObject(row)
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM video_objects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) SetSyncState(ctx context.Context, id uuid.UUID, firebaseKey string, synced bool) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE video_objects SET firebase_key = NULLIF($2, ''), synced = $3, updated_at = now() WHERE id = $1`,
		id, firebaseKey, synced)
	if err != nil {
		return fmt.Errorf("set sync state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
