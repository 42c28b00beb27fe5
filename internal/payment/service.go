package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/comeback-ar/backend/internal/common"
	"github.com/comeback-ar/backend/internal/freedompay"
	"github.com/comeback-ar/backend/internal/obs"
)

// createOrderAttempts bounds retries when a generated order id collides.
const createOrderAttempts = 3

var validate = validator.New()

// Service coordinates payment creation and status polling for the calling
// application.
type Service struct {
	Store  Store
	Signer freedompay.Signer

	MerchantID     string
	GatewayBaseURL string
	PublicBaseURL  string
	Currency       string
	Language       string
	PaymentOrigin  string
	SessionTTL     time.Duration
}

// CreateRequest is the payload for initiating a payment.
type CreateRequest struct {
	UnityUserID string `json:"unity_user_id" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description"`
}

// CreateResult is returned to the caller after a payment was initiated.
type CreateResult struct {
	OrderID    string `json:"order_id"`
	SessionID  string `json:"session_id"`
	PaymentURL string `json:"payment_url"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// StatusResult reports the current state of a transaction.
type StatusResult struct {
	OrderID   string     `json:"order_id"`
	Status    Status     `json:"status"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at"`
}

// CreatePayment creates a Session and a pending Transaction, signs the
// outbound parameter set and returns the gateway redirect URL.
func (s *Service) CreatePayment(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if s == nil || s.Store == nil {
		return CreateResult{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreatePayment")
	defer span.End()

	result := "error"
	defer func() {
		if obs.PaymentCreatedTotal != nil {
			obs.PaymentCreatedTotal.WithLabelValues(s.PaymentOrigin, result).Inc()
		}
	}()

	if err := validate.Struct(req); err != nil {
		return CreateResult{}, common.ValidationError("missing unity_user_id or amount")
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Unity Payment"
	}

	session := Session{
		SessionID:   "unity_" + shortHex(),
		UnityUserID: req.UnityUserID,
		Amount:      req.Amount,
		Description: description,
		ExpiresAt:   time.Now().Add(s.sessionTTL()),
	}
	session, err := s.Store.CreateSession(ctx, session)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create session: %w", err)
	}

	tx := Transaction{
		Amount:         req.Amount,
		Currency:       s.Currency,
		Description:    description,
		UnityUserID:    req.UnityUserID,
		UnitySessionID: session.SessionID,
		MerchantID:     s.MerchantID,
		Salt:           shortHex(),
	}
	created, err := s.createWithRetry(ctx, tx)
	if err != nil {
		return CreateResult{}, err
	}
	span.SetAttributes(attribute.String("payment.order_id", created.OrderID))

	paymentURL := s.buildPaymentURL(created)
	result = "success"
	return CreateResult{
		OrderID:    created.OrderID,
		SessionID:  session.SessionID,
		PaymentURL: paymentURL,
		Amount:     created.Amount,
		Currency:   created.Currency,
	}, nil
}

// createWithRetry regenerates the order id on collision; collisions are
// astronomically rare but must never silently overwrite an existing row.
func (s *Service) createWithRetry(ctx context.Context, tx Transaction) (Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < createOrderAttempts; attempt++ {
		tx.OrderID = "unity_" + shortHex()
		tx.Signature, _ = s.Signer.Sign(s.gatewayParams(tx), freedompay.ScriptPayment)
		created, err := s.Store.CreateTransaction(ctx, tx)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, ErrDuplicateOrder) {
			return Transaction{}, err
		}
		lastErr = err
	}
	return Transaction{}, lastErr
}

// CheckStatus resolves a transaction by order id or, failing that, by session
// id. At least one identifier is required.
func (s *Service) CheckStatus(ctx context.Context, orderID, sessionID string) (StatusResult, error) {
	if s == nil || s.Store == nil {
		return StatusResult{}, errors.New("payment service not configured")
	}
	orderID = strings.TrimSpace(orderID)
	sessionID = strings.TrimSpace(sessionID)
	if orderID == "" && sessionID == "" {
		return StatusResult{}, common.ValidationError("missing order_id or session_id")
	}

	var (
		tx  Transaction
		err error
	)
	if orderID != "" {
		tx, err = s.Store.GetByOrderID(ctx, orderID)
	} else {
		tx, err = s.Store.GetBySessionID(ctx, sessionID)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return StatusResult{}, common.NewAppError(common.CodeNotFound, "Transaction not found", http.StatusNotFound, err)
		}
		return StatusResult{}, err
	}
	return StatusResult{
		OrderID:   tx.OrderID,
		Status:    tx.Status,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		CreatedAt: tx.CreatedAt,
		PaidAt:    tx.PaidAt,
	}, nil
}

// gatewayParams assembles the outbound pg_* parameter set for a transaction.
func (s *Service) gatewayParams(tx Transaction) map[string]string {
	base := strings.TrimRight(s.PublicBaseURL, "/")
	return map[string]string{
		"pg_merchant_id": s.MerchantID,
		"pg_amount":      strconv.FormatInt(tx.Amount, 10),
		"pg_currency":    s.Currency,
		"pg_description": tx.Description,
		"pg_salt":        tx.Salt,
		"pg_language":    s.Language,
		"pg_order_id":    tx.OrderID,
		"payment_origin": s.PaymentOrigin,
		"pg_success_url": base + "/payment-gateway/freedompay/success/",
		"pg_fail_url":    base + "/payment-gateway/freedompay/fail/",
	}
}

// buildPaymentURL serialises parameters sorted by key with the signature
// appended last. Values are joined verbatim; the gateway signs over raw
// values, so URL escaping here would break signature agreement.
func (s *Service) buildPaymentURL(tx Transaction) string {
	params := s.gatewayParams(tx)
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		parts = append(parts, key+"="+params[key])
	}
	parts = append(parts, freedompay.FieldSignature+"="+tx.Signature)

	return strings.TrimRight(s.GatewayBaseURL, "/") + "/payment.php?" + strings.Join(parts, "&")
}

func (s *Service) sessionTTL() time.Duration {
	if s.SessionTTL <= 0 {
		return time.Hour
	}
	return s.SessionTTL
}

// shortHex returns the 16-hex-character identifier fragment used for order,
// session and salt values.
func shortHex() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is unrecoverable; fall back to uuid entropy.
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	return hex.EncodeToString(buf[:])
}
