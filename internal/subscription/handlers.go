package subscription

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/comeback-ar/backend/internal/common"
)

// Handler exposes the admin settings endpoints.
type Handler struct {
	Service *Service
	Log     zerolog.Logger
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Service.Get(r.Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("get subscription settings failed")
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "settings": settings})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid JSON body", nil)
		return
	}
	updatedBy, _ := common.UserID(r.Context())
	settings, err := h.Service.Update(r.Context(), in, updatedBy)
	if err != nil {
		if !common.IsAppError(err) {
			h.Log.Error().Err(err).Msg("update subscription settings failed")
		}
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "settings": settings})
}
