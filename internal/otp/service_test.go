package otp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/comeback-ar/backend/internal/common"
	"github.com/comeback-ar/backend/internal/lock"
)

type memStore struct {
	mu    sync.Mutex
	codes map[string]Code
}

func newMemStore() *memStore {
	return &memStore{codes: map[string]Code{}}
}

func (m *memStore) Create(_ context.Context, c Code) (Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.codes[c.Code]; exists {
		return Code{}, ErrDuplicateCode
	}
	c.ID = uuid.New()
	c.Status = StatusActive
	c.CreatedAt = time.Now()
	m.codes[c.Code] = c
	return c, nil
}

func (m *memStore) GetByCode(_ context.Context, code string) (Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return Code{}, ErrNotFound
	}
	return c, nil
}

func (m *memStore) List(_ context.Context, status Status) ([]Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Code
	for _, c := range m.codes {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) MarkUsed(_ context.Context, code, deviceID string) (Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok || c.Status != StatusActive {
		return Code{}, ErrNotFound
	}
	now := time.Now()
	c.Status = StatusUsed
	c.UsedAt = &now
	c.DeviceID = deviceID
	m.codes[code] = c
	return c, nil
}

func (m *memStore) ExpireStale(_ context.Context, cutoff time.Time) ([]Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Code
	for code, c := range m.codes {
		if c.Status == StatusActive && c.CreatedAt.Before(cutoff) {
			c.Status = StatusExpired
			m.codes[code] = c
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) SetFirebaseKey(_ context.Context, id uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, c := range m.codes {
		if c.ID == id {
			c.FirebaseKey = key
			m.codes[code] = c
			return nil
		}
	}
	return ErrNotFound
}

// fakeRealtime records mirror writes and can be told to fail.
type fakeRealtime struct {
	mu      sync.Mutex
	values  map[string]any
	pushed  int
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

func (f *fakeRealtime) Push(_ context.Context, path string, value any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", errors.New("realtime unavailable")
	}
	f.pushed++
	key := fmt.Sprintf("-fake%d", f.pushed)
	f.values[path+"/"+key] = value
	return key, nil
}

func (f *fakeRealtime) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, path)
	return nil
}

func (f *fakeRealtime) Ready(context.Context) error { return nil }

func newTestService(t *testing.T) (*Service, *memStore, *fakeRealtime) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemStore()
	rt := newFakeRealtime()
	svc := &Service{
		Store:    store,
		Realtime: rt,
		Locker:   lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond},
		Log:      zerolog.Nop(),
		Currency: "UZS",
		TTL:      24 * time.Hour,
	}
	return svc, store, rt
}

func TestCreateGeneratesSixDigitCode(t *testing.T) {
	svc, _, rt := newTestService(t)

	created, err := svc.Create(context.Background(), CreateInput{Amount: 5000, Quantity: 2}, "cashier-1")
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^\d{6}$`), created.Code)
	require.Equal(t, StatusActive, created.Status)
	require.Equal(t, "UZS", created.Currency)
	require.Equal(t, "cashier-1", created.CreatedBy)
	require.NotEmpty(t, created.FirebaseKey)
	require.Equal(t, 1, rt.pushed)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{Amount: 0}, "cashier-1")
	require.True(t, common.IsAppError(err))

	_, err = svc.Create(context.Background(), CreateInput{Amount: 100, Quantity: 101}, "cashier-1")
	require.True(t, common.IsAppError(err))
}

func TestCreateSurvivesMirrorFailure(t *testing.T) {
	svc, _, rt := newTestService(t)
	rt.failAll = true

	created, err := svc.Create(context.Background(), CreateInput{Amount: 100}, "cashier-1")
	require.NoError(t, err)
	require.Empty(t, created.FirebaseKey)
}

func TestRedeemOnce(t *testing.T) {
	svc, store, _ := newTestService(t)

	created, err := svc.Create(context.Background(), CreateInput{Amount: 7000, Quantity: 3}, "cashier-1")
	require.NoError(t, err)

	res, err := svc.Redeem(context.Background(), created.Code, "device-1")
	require.NoError(t, err)
	require.Equal(t, created.Code, res.Code)
	require.Equal(t, int64(7000), res.Amount)
	require.Equal(t, 3, res.Quantity)

	stored, err := store.GetByCode(context.Background(), created.Code)
	require.NoError(t, err)
	require.Equal(t, StatusUsed, stored.Status)
	require.Equal(t, "device-1", stored.DeviceID)
	require.NotNil(t, stored.UsedAt)

	// Second redemption, even from the same device, is rejected.
	_, err = svc.Redeem(context.Background(), created.Code, "device-1")
	require.ErrorIs(t, err, ErrCodeUnavailable)
}

func TestRedeemUnknownCode(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Redeem(context.Background(), "000000", "device-1")
	require.ErrorIs(t, err, ErrCodeUnavailable)
	require.True(t, common.IsAppError(err))
}

func TestRedeemRequiresCodeAndDevice(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Redeem(context.Background(), "", "device-1")
	require.True(t, common.IsAppError(err))

	_, err = svc.Redeem(context.Background(), "123456", "")
	require.True(t, common.IsAppError(err))
}

func TestRedeemExpiredCode(t *testing.T) {
	svc, store, _ := newTestService(t)
	svc.TTL = time.Minute

	created, err := svc.Create(context.Background(), CreateInput{Amount: 100}, "cashier-1")
	require.NoError(t, err)

	store.mu.Lock()
	c := store.codes[created.Code]
	c.CreatedAt = time.Now().Add(-2 * time.Minute)
	store.codes[created.Code] = c
	store.mu.Unlock()

	_, err = svc.Redeem(context.Background(), created.Code, "device-1")
	require.ErrorIs(t, err, ErrCodeUnavailable)
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	svc, _, _ := newTestService(t)

	created, err := svc.Create(context.Background(), CreateInput{Amount: 100}, "cashier-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(device int) {
			defer wg.Done()
			if _, err := svc.Redeem(context.Background(), created.Code, fmt.Sprintf("device-%d", device)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestExpireSweep(t *testing.T) {
	svc, store, rt := newTestService(t)
	svc.TTL = time.Minute

	created, err := svc.Create(context.Background(), CreateInput{Amount: 100}, "cashier-1")
	require.NoError(t, err)

	store.mu.Lock()
	c := store.codes[created.Code]
	c.CreatedAt = time.Now().Add(-2 * time.Minute)
	store.codes[created.Code] = c
	store.mu.Unlock()

	n, err := svc.ExpireSweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stored, err := store.GetByCode(context.Background(), created.Code)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, stored.Status)

	// The mirror entry was rewritten with the expired state.
	rt.mu.Lock()
	_, ok := rt.values["activation_codes/"+stored.FirebaseKey]
	rt.mu.Unlock()
	require.True(t, ok)
}
