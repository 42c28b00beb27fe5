package video

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/comeback-ar/backend/internal/common"
	"github.com/comeback-ar/backend/internal/obs"
	"github.com/comeback-ar/backend/internal/realtime"
)

const objectsPath = "objects"

var validate = validator.New()

// Service owns video placement lifecycle and keeps the realtime mirror in
// sync. Mirror failures never fail the admin request; the row is marked
// unsynced and the next write retries.
type Service struct {
	Store    Store
	Realtime realtime.Store
	Log      zerolog.Logger
}

// CreateInput is the admin payload for a new placement.
type CreateInput struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64 `json:"longitude" validate:"gte=-180,lte=180"`
	VideoURL    string  `json:"video_url" validate:"required,url"`
	IsActive    bool    `json:"is_active"`
}

func syncMetric(result string) {
	if obs.RealtimeSyncTotal != nil {
		obs.RealtimeSyncTotal.WithLabelValues("video", result).Inc()
	}
}

// Create persists a placement and pushes its Unity shape to the realtime
// store.
func (s *Service) Create(ctx context.Context, in CreateInput, createdBy string) (Object, error) {
	if err := validate.Struct(in); err != nil {
		return Object{}, common.ValidationError(validationMessage(err))
	}
	o, err := s.Store.Create(ctx, Object{
		Title:       in.Title,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		VideoURL:    in.VideoURL,
		IsActive:    in.IsActive,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return Object{}, fmt.Errorf("create video object: %w", err)
	}
	return s.mirror(ctx, o), nil
}

// Update modifies a placement and rewrites its mirror entry.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in CreateInput) (Object, error) {
	if err := validate.Struct(in); err != nil {
		return Object{}, common.ValidationError(validationMessage(err))
	}
	current, err := s.Store.Get(ctx, id)
	if err != nil {
		return Object{}, mapStoreErr(err)
	}
	current.Title = in.Title
	current.Description = in.Description
	current.Latitude = in.Latitude
	current.Longitude = in.Longitude
	current.VideoURL = in.VideoURL
	current.IsActive = in.IsActive

	o, err := s.Store.Update(ctx, current)
	if err != nil {
		return Object{}, mapStoreErr(err)
	}
	o.FirebaseKey = current.FirebaseKey
	return s.mirror(ctx, o), nil
}

// Delete removes a placement and its mirror entry.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	if err := s.Store.Delete(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	if o.FirebaseKey != "" && s.Realtime != nil {
		if err := s.Realtime.Delete(ctx, objectsPath+"/"+o.FirebaseKey); err != nil {
			syncMetric("error")
			s.Log.Error().Err(err).Str("video_id", id.String()).Msg("delete mirror entry failed")
		} else {
			syncMetric("ok")
		}
	}
	return nil
}

// Get returns one placement.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Object, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return Object{}, mapStoreErr(err)
	}
	return o, nil
}

// List returns placements, optionally only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Object, error) {
	return s.Store.List(ctx, activeOnly)
}

// Resync re-pushes every active placement to the realtime store. Used by the
// worker after mirror outages.
func (s *Service) Resync(ctx context.Context) (int, error) {
	objects, err := s.Store.List(ctx, false)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range objects {
		if o.Synced {
			continue
		}
		if synced := s.mirror(ctx, o); synced.Synced {
			n++
		}
	}
	return n, nil
}

// mirror writes the Unity shape of o to the realtime store and records the
// outcome on the row. It returns o updated with the sync state.
func (s *Service) mirror(ctx context.Context, o Object) Object {
	if s.Realtime == nil {
		return o
	}
	var err error
	key := o.FirebaseKey
	if key == "" {
		key, err = s.Realtime.Push(ctx, objectsPath, toUnity(o))
	} else {
		err = s.Realtime.Set(ctx, objectsPath+"/"+key, toUnity(o))
	}
	synced := err == nil
	if err != nil {
		syncMetric("error")
		s.Log.Error().Err(err).Str("video_id", o.ID.String()).Msg("video mirror sync failed")
	} else {
		syncMetric("ok")
	}
	if stateErr := s.Store.SetSyncState(ctx, o.ID, key, synced); stateErr != nil {
		s.Log.Error().Err(stateErr).Str("video_id", o.ID.String()).Msg("record sync state failed")
	}
	o.FirebaseKey = key
	o.Synced = synced
	return o
}

func mapStoreErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return common.NewAppError(common.CodeNotFound, "Video object not found", http.StatusNotFound, err)
	}
	return err
}

func validationMessage(err error) string {
	var verr validator.ValidationErrors
	if errors.As(err, &verr) && len(verr) > 0 {
		return "invalid field: " + verr[0].Field()
	}
	return "invalid input"
}
