package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/comeback-ar/backend/internal/resilience"
)

// FirebaseConfig carries the REST connection settings for one database.
type FirebaseConfig struct {
	DatabaseURL string
	AuthToken   string
	Timeout     time.Duration
	MaxAttempts int
	BreakerMin  int
	BreakerPct  float64
	BreakerOpen time.Duration
}

// Firebase talks to a Realtime Database over its REST interface. All calls go
// through a retrying client with a circuit breaker so a slow database cannot
// stall admin requests indefinitely.
type Firebase struct {
	baseURL string
	token   string
	client  resilience.HTTPClient
	log     zerolog.Logger
}

// NewFirebase builds a Firebase store from config.
func NewFirebase(cfg FirebaseConfig, log zerolog.Logger) *Firebase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	breaker := resilience.NewBreaker(cfg.BreakerMin, cfg.BreakerPct, cfg.BreakerOpen).
		WithTarget("firebase_rtdb").
		WithLogger(log)
	return &Firebase{
		baseURL: strings.TrimRight(cfg.DatabaseURL, "/"),
		token:   cfg.AuthToken,
		client: resilience.HTTPClient{
			Client:      &http.Client{},
			Breaker:     breaker,
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: maxAttempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		log: log,
	}
}

func (f *Firebase) url(path string) string {
	path = strings.Trim(path, "/")
	u := f.baseURL + "/" + path + ".json"
	if f.token != "" {
		u += "?auth=" + f.token
	}
	return u
}

func (f *Firebase) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode realtime payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, f.url(path), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("realtime %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("realtime %s %s: status %d", method, path, resp.StatusCode)
	}
	return data, nil
}

// Get reads path into out. A JSON null at the path yields ErrNotFound.
func (f *Firebase) Get(ctx context.Context, path string, out any) error {
	data, err := f.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if len(data) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return ErrNotFound
	}
	return json.Unmarshal(data, out)
}

// Set writes value at path, replacing whatever was there.
func (f *Firebase) Set(ctx context.Context, path string, value any) error {
	_, err := f.do(ctx, http.MethodPut, path, value)
	return err
}

// Push appends value under path and returns the generated child key.
func (f *Firebase) Push(ctx context.Context, path string, value any) (string, error) {
	data, err := f.do(ctx, http.MethodPost, path, value)
	if err != nil {
		return "", err
	}
	var result struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode push response: %w", err)
	}
	return result.Name, nil
}

// Delete removes the value at path. Deleting an absent path is not an error.
func (f *Firebase) Delete(ctx context.Context, path string) error {
	_, err := f.do(ctx, http.MethodDelete, path, nil)
	return err
}

// Ready performs a shallow read of the database root.
func (f *Firebase) Ready(ctx context.Context) error {
	u := f.baseURL + "/.json?shallow=true"
	if f.token != "" {
		u += "&auth=" + f.token
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("realtime ready check: status %d", resp.StatusCode)
	}
	return nil
}
