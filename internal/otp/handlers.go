package otp

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/comeback-ar/backend/internal/common"
)

// Handler exposes the cashier endpoints and the public redemption API.
type Handler struct {
	Service *Service
	Log     zerolog.Logger
}

// Create handles POST /admin/otp/ (cashier or admin).
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid JSON body", nil)
		return
	}
	createdBy, _ := common.UserID(r.Context())
	code, err := h.Service.Create(r.Context(), in, createdBy)
	if err != nil {
		if !common.IsAppError(err) {
			h.Log.Error().Err(err).Msg("create otp failed")
		}
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"success": true, "otp": code})
}

// List handles GET /admin/otp/ with an optional status filter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	codes, err := h.Service.List(r.Context(), status)
	if err != nil {
		h.Log.Error().Err(err).Msg("list otp codes failed")
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "codes": codes, "count": len(codes)})
}

type redeemRequest struct {
	OTPCode  string `json:"otp_code"`
	DeviceID string `json:"device_id"`
}

// Redeem handles POST /api/otp/verify/ from the AR client.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid JSON body", nil)
		return
	}
	result, err := h.Service.Redeem(r.Context(), req.OTPCode, req.DeviceID)
	if err != nil {
		if !common.IsAppError(err) {
			h.Log.Error().Err(err).Msg("redeem otp failed")
		}
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "activation": result})
}
