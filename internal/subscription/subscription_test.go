package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/comeback-ar/backend/internal/common"
)

type memStore struct {
	mu       sync.Mutex
	settings *Settings
}

func (m *memStore) Get(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return defaultSettings(), nil
	}
	return *m.settings, nil
}

func (m *memStore) Upsert(_ context.Context, s Settings) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	m.settings = &s
	return s, nil
}

type fakeRealtime struct {
	mu      sync.Mutex
	values  map[string]any
	failAll bool
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{values: map[string]any{}}
}

func (f *fakeRealtime) Get(context.Context, string, any) error { return nil }

func (f *fakeRealtime) Set(_ context.Context, path string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("realtime unavailable")
	}
	f.values[path] = value
	return nil
}

func (f *fakeRealtime) Push(context.Context, string, any) (string, error) { return "", nil }
func (f *fakeRealtime) Delete(context.Context, string) error              { return nil }
func (f *fakeRealtime) Ready(context.Context) error                       { return nil }

func newTestService() (*Service, *memStore, *fakeRealtime) {
	store := &memStore{}
	rt := newFakeRealtime()
	return &Service{Store: store, Realtime: rt, Log: zerolog.Nop()}, store, rt
}

func TestGetReturnsDefaultsBeforeFirstUpdate(t *testing.T) {
	svc, _, _ := newTestService()

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5000), settings.Price)
	require.Equal(t, 30, settings.DurationMinutes)
	require.Equal(t, "UZS", settings.Currency)
	require.True(t, settings.IsActive)
}

func TestUpdatePersistsAndMirrors(t *testing.T) {
	svc, _, rt := newTestService()

	settings, err := svc.Update(context.Background(), UpdateInput{
		Price:           9000,
		DurationMinutes: 60,
		Currency:        "UZS",
		IsActive:        true,
	}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, int64(9000), settings.Price)
	require.Equal(t, "admin-1", settings.UpdatedBy)

	rt.mu.Lock()
	value, ok := rt.values["subscription_settings"]
	rt.mu.Unlock()
	require.True(t, ok)

	payload, ok := value.(map[string]any)
	require.True(t, ok)
	require.Equal(t, int64(9000), payload["price"])
	require.Equal(t, 60, payload["duration_minutes"])
	require.Equal(t, true, payload["is_active"])

	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, settings.Price, got.Price)
}

func TestUpdateValidation(t *testing.T) {
	svc, _, _ := newTestService()

	cases := []UpdateInput{
		{Price: 0, DurationMinutes: 30, Currency: "UZS"},
		{Price: 100, DurationMinutes: 0, Currency: "UZS"},
		{Price: 100, DurationMinutes: 2000, Currency: "UZS"},
		{Price: 100, DurationMinutes: 30, Currency: "SOM4"},
	}
	for _, in := range cases {
		_, err := svc.Update(context.Background(), in, "admin-1")
		require.True(t, common.IsAppError(err), "%+v", in)
	}
}

func TestUpdateSurvivesMirrorFailure(t *testing.T) {
	svc, store, rt := newTestService()
	rt.failAll = true

	settings, err := svc.Update(context.Background(), UpdateInput{
		Price:           7000,
		DurationMinutes: 45,
		Currency:        "UZS",
		IsActive:        true,
	}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, int64(7000), settings.Price)

	stored, err := store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7000), stored.Price)
}
