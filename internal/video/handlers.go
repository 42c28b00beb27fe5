package video

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/comeback-ar/backend/internal/common"
	"github.com/comeback-ar/backend/internal/realtime"
)

// maxUploadBytes bounds video uploads at 200 MiB.
const maxUploadBytes = 200 << 20

// Handler exposes the admin CRUD surface for video placements.
type Handler struct {
	Service  *Service
	Uploader realtime.Uploader
	Log      zerolog.Logger
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid JSON body", nil)
		return
	}
	createdBy, _ := common.UserID(r.Context())
	o, err := h.Service.Create(r.Context(), in, createdBy)
	if err != nil {
		h.logInternal(err, "create video failed")
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"success": true, "video": o})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	o, err := h.Service.Get(r.Context(), id)
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "video": o})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	objects, err := h.Service.List(r.Context(), activeOnly)
	if err != nil {
		h.logInternal(err, "list videos failed")
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "videos": objects, "count": len(objects)})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid JSON body", nil)
		return
	}
	o, err := h.Service.Update(r.Context(), id, in)
	if err != nil {
		h.logInternal(err, "update video failed")
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "video": o})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.logInternal(err, "delete video failed")
		common.JSONAppError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// Upload accepts a multipart video file and returns its public URL. The
// returned URL is what admins then put in a placement's video_url.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.Uploader == nil {
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeUpstreamUnavailable, "upload storage not configured", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "missing file field", nil)
		return
	}
	defer func() { _ = file.Close() }()

	url, err := h.Uploader.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.Log.Error().Err(err).Str("filename", header.Filename).Msg("video upload failed")
		common.JSONError(w, http.StatusBadGateway, common.CodeUpstreamUnavailable, "upload failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "url": url})
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid video id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) logInternal(err error, msg string) {
	if err != nil && !common.IsAppError(err) {
		h.Log.Error().Err(err).Msg(msg)
	}
}
