// Package otp implements cash payments: a cashier sells access in person and
// hands the customer a short numeric code the AR client redeems once.
package otp

import (
	"time"

	"github.com/google/uuid"
)

// Status of an OTP code.
type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
)

// Code is a single-use activation code sold at the register.
type Code struct {
	ID          uuid.UUID  `json:"id"`
	Code        string     `json:"code"`
	Amount      int64      `json:"amount"`
	Quantity    int        `json:"quantity"`
	Currency    string     `json:"currency"`
	Status      Status     `json:"status"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	DeviceID    string     `json:"device_id,omitempty"`
	FirebaseKey string     `json:"firebase_key,omitempty"`
}

// mirrorShape is what the AR client reads under activation_codes/<key>.
func mirrorShape(c Code) map[string]any {
	m := map[string]any{
		"code":       c.Code,
		"amount":     c.Amount,
		"quantity":   c.Quantity,
		"currency":   c.Currency,
		"status":     string(c.Status),
		"created_at": c.CreatedAt.UTC().Format(time.RFC3339),
		"created_by": c.CreatedBy,
		"backend_id": c.ID.String(),
	}
	if c.UsedAt != nil {
		m["used_at"] = c.UsedAt.UTC().Format(time.RFC3339)
	}
	if c.DeviceID != "" {
		m["device_id"] = c.DeviceID
	}
	return m
}
