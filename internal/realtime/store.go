// Package realtime mirrors admin-managed content into a Firebase Realtime
// Database so AR clients can read it without touching the backend.
package realtime

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested path holds no value.
var ErrNotFound = errors.New("realtime: path not found")

// Store is the mirror surface used by the content services. Paths are
// slash-separated and relative to the database root.
type Store interface {
	Get(ctx context.Context, path string, out any) error
	Set(ctx context.Context, path string, value any) error
	// Push appends value under path with a server-generated key and returns
	// that key.
	Push(ctx context.Context, path string, value any) (string, error)
	Delete(ctx context.Context, path string) error
	// Ready probes the database and reports whether it is reachable.
	Ready(ctx context.Context) error
}
