package payment

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested transaction or session does not exist.
var ErrNotFound = errors.New("payment: not found")

// ErrDuplicateOrder indicates an order id collision on insert. Creation
// retries with a fresh id internally; the error surfaces only when retries
// are exhausted.
var ErrDuplicateOrder = errors.New("payment: duplicate order id")

// Store provides durable persistence for transactions, sessions and the
// callback audit trail.
//
// Status transitions are commutative and idempotent rather than locked:
// MarkPaid and MarkFailed are safe to call repeatedly and concurrently, and a
// transaction that reached success can never be regressed to failed.
type Store interface {
	CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	GetByOrderID(ctx context.Context, orderID string) (Transaction, error)
	GetBySessionID(ctx context.Context, sessionID string) (Transaction, error)

	// MarkPaid sets status=success and paid_at (once). paymentID is recorded
	// when non-empty and not already set. Calling it on an already-success
	// transaction is a no-op that does not advance paid_at.
	MarkPaid(ctx context.Context, orderID, paymentID string) (Transaction, error)

	// MarkFailed sets status=failed unless the transaction already succeeded;
	// success is sticky and wins races against late fail callbacks.
	MarkFailed(ctx context.Context, orderID string) (Transaction, error)

	// AppendCallback always inserts a new audit row, never deduplicates.
	AppendCallback(ctx context.Context, orderID string, cbType CallbackType, raw map[string]string) (Callback, error)
	ListCallbacks(ctx context.Context, orderID string) ([]Callback, error)

	CreateSession(ctx context.Context, s Session) (Session, error)
	// ExpireStaleSessions deactivates sessions whose expires_at has passed
	// and returns the number of rows affected.
	ExpireStaleSessions(ctx context.Context, now time.Time) (int64, error)
}
