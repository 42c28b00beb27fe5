package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the store dependency is not configured.
var ErrStoreUnavailable = errors.New("payment: store unavailable")

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const txColumns = `id, order_id, amount, currency, status, COALESCE(payment_id, ''), description,
unity_user_id, unity_session_id, merchant_id, salt, signature, created_at, updated_at, paid_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.OrderID, &t.Amount, &t.Currency, &t.Status, &t.PaymentID, &t.Description,
		&t.UnityUserID, &t.UnitySessionID, &t.MerchantID, &t.Salt, &t.Signature, &t.CreatedAt, &t.UpdatedAt, &t.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	return t, err
}

// CreateTransaction inserts a new pending transaction. A unique violation on
// order_id maps to ErrDuplicateOrder so the caller can retry with a fresh id.
func (s *pgStore) CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	if s == nil || s.pool == nil {
		return Transaction{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO payment_transactions
(order_id, amount, currency, status, description, unity_user_id, unity_session_id, merchant_id, salt, signature)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+txColumns,
		tx.OrderID, tx.Amount, tx.Currency, StatusPending, tx.Description,
		tx.UnityUserID, tx.UnitySessionID, tx.MerchantID, tx.Salt, tx.Signature)
	created, err := scanTransaction(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Transaction{}, ErrDuplicateOrder
		}
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return created, nil
}

func (s *pgStore) GetByOrderID(ctx context.Context, orderID string) (Transaction, error) {
	if s == nil || s.pool == nil {
		return Transaction{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM payment_transactions WHERE order_id = $1`, orderID)
	return scanTransaction(row)
}

func (s *pgStore) GetBySessionID(ctx context.Context, sessionID string) (Transaction, error) {
	if s == nil || s.pool == nil {
		return Transaction{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM payment_transactions
WHERE unity_session_id = $1 ORDER BY created_at DESC LIMIT 1`, sessionID)
	return scanTransaction(row)
}

// MarkPaid is a single atomic update: paid_at and payment_id are preserved on
// repeat deliveries via COALESCE, so the first success wins and later calls
// are no-ops.
func (s *pgStore) MarkPaid(ctx context.Context, orderID, paymentID string) (Transaction, error) {
	if s == nil || s.pool == nil {
		return Transaction{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE payment_transactions
SET status = $2,
    paid_at = COALESCE(paid_at, now()),
    payment_id = COALESCE(payment_id, NULLIF($3, '')),
    updated_at = now()
WHERE order_id = $1
RETURNING `+txColumns, orderID, StatusSuccess, paymentID)
	return scanTransaction(row)
}

// MarkFailed refuses to touch a transaction that already reached success. The
// guard lives in the WHERE clause so concurrent result/fail callbacks resolve
// on the database row without explicit locking.
func (s *pgStore) MarkFailed(ctx context.Context, orderID string) (Transaction, error) {
	if s == nil || s.pool == nil {
		return Transaction{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE payment_transactions
SET status = $2, updated_at = now()
WHERE order_id = $1 AND status <> $3
RETURNING `+txColumns, orderID, StatusFailed, StatusSuccess)
	tx, err := scanTransaction(row)
	if errors.Is(err, ErrNotFound) {
		// Either unknown order or sticky success; disambiguate with a read.
		return s.GetByOrderID(ctx, orderID)
	}
	return tx, err
}

func (s *pgStore) AppendCallback(ctx context.Context, orderID string, cbType CallbackType, raw map[string]string) (Callback, error) {
	if s == nil || s.pool == nil {
		return Callback{}, ErrStoreUnavailable
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return Callback{}, fmt.Errorf("encode raw data: %w", err)
	}
	cb := Callback{OrderID: orderID, Type: cbType, RawData: raw, Processed: true}
	err = s.pool.QueryRow(ctx, `INSERT INTO payment_callbacks (order_id, callback_type, raw_data, processed)
VALUES ($1, $2, $3, TRUE) RETURNING id, created_at`, orderID, cbType, payload).Scan(&cb.ID, &cb.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Callback{}, ErrNotFound
		}
		return Callback{}, fmt.Errorf("insert callback: %w", err)
	}
	return cb, nil
}

func (s *pgStore) ListCallbacks(ctx context.Context, orderID string) ([]Callback, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT id, order_id, callback_type, raw_data, processed, created_at
FROM payment_callbacks WHERE order_id = $1 ORDER BY created_at DESC, id DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Callback
	for rows.Next() {
		var cb Callback
		var payload []byte
		if err := rows.Scan(&cb.ID, &cb.OrderID, &cb.Type, &payload, &cb.Processed, &cb.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &cb.RawData); err != nil {
				return nil, fmt.Errorf("decode raw data: %w", err)
			}
		}
		out = append(out, cb)
	}
	return out, rows.Err()
}

func (s *pgStore) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, ErrStoreUnavailable
	}
	err := s.pool.QueryRow(ctx, `INSERT INTO payment_sessions
(session_id, unity_user_id, amount, description, expires_at, is_active)
VALUES ($1, $2, $3, $4, $5, TRUE)
RETURNING created_at`, sess.SessionID, sess.UnityUserID, sess.Amount, sess.Description, sess.ExpiresAt).Scan(&sess.CreatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	sess.IsActive = true
	return sess, nil
}

func (s *pgStore) ExpireStaleSessions(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE payment_sessions SET is_active = FALSE
WHERE is_active AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
