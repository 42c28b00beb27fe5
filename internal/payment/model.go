package payment

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates the lifecycle states of a payment transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// CallbackType identifies which gateway endpoint produced an audit record.
type CallbackType string

const (
	CallbackCheck   CallbackType = "check"
	CallbackResult  CallbackType = "result"
	CallbackSuccess CallbackType = "success"
	CallbackFail    CallbackType = "fail"
)

// Transaction is a single payment attempt tracked end-to-end.
type Transaction struct {
	ID             uuid.UUID  `json:"-"`
	OrderID        string     `json:"order_id"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Status         Status     `json:"status"`
	PaymentID      string     `json:"payment_id,omitempty"`
	Description    string     `json:"description,omitempty"`
	UnityUserID    string     `json:"unity_user_id,omitempty"`
	UnitySessionID string     `json:"unity_session_id,omitempty"`
	MerchantID     string     `json:"-"`
	Salt           string     `json:"-"`
	Signature      string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

// Callback is an append-only audit record of one inbound processor call.
type Callback struct {
	ID        int64             `json:"id"`
	OrderID   string            `json:"order_id"`
	Type      CallbackType      `json:"callback_type"`
	RawData   map[string]string `json:"raw_data"`
	Processed bool              `json:"processed"`
	CreatedAt time.Time         `json:"created_at"`
}

// Session is a short-lived correlation handle created alongside a Transaction
// for the calling application's bookkeeping. Expiry is enforced by the worker
// sweep and checked lazily on reads.
type Session struct {
	SessionID   string    `json:"session_id"`
	UnityUserID string    `json:"unity_user_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsActive    bool      `json:"is_active"`
}
