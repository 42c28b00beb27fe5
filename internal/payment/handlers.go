package payment

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/comeback-ar/backend/internal/common"
)

// Handler serves the client-facing payment API consumed by the Unity app.
type Handler struct {
	Service *Service
	Log     zerolog.Logger
}

type createResponse struct {
	Success bool `json:"success"`
	CreateResult
}

type statusResponse struct {
	Success bool `json:"success"`
	StatusResult
}

// CreatePayment handles POST /payment-gateway/freedompay/create-payment/.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid JSON body", nil)
		return
	}

	result, err := h.Service.CreatePayment(r.Context(), req)
	if err != nil {
		if !common.IsAppError(err) {
			h.Log.Error().Err(err).Str("unity_user_id", req.UnityUserID).Msg("create payment failed")
		}
		common.JSONAppError(w, err)
		return
	}

	h.Log.Info().
		Str("order_id", result.OrderID).
		Str("unity_user_id", req.UnityUserID).
		Int64("amount", result.Amount).
		Msg("payment created")
	common.JSON(w, http.StatusOK, createResponse{Success: true, CreateResult: result})
}

// CheckStatus handles GET /payment-gateway/freedompay/check-status/ with
// order_id or session_id as query parameters.
func (h *Handler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.Service.CheckStatus(r.Context(), q.Get("order_id"), q.Get("session_id"))
	if err != nil {
		if !common.IsAppError(err) {
			h.Log.Error().Err(err).Msg("check status failed")
		}
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, statusResponse{Success: true, StatusResult: result})
}

// ListOrderCallbacks handles the admin view of the audit trail for one order.
func (h *Handler) ListOrderCallbacks(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing order_id", nil)
		return
	}
	callbacks, err := h.Service.Store.ListCallbacks(r.Context(), orderID)
	if err != nil {
		h.Log.Error().Err(err).Str("order_id", orderID).Msg("list callbacks failed")
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"order_id":  orderID,
		"callbacks": callbacks,
	})
}
