// Package store provides the string-keyed persistent store shared by the
// event cache and the user settings. Both live in one flat key namespace;
// cache keys always carry an _events or _timestamp suffix, settings keys
// never do, so the two can coexist without prefixes.
package store

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the backing store could not serve the request.
// Callers treat it as "no data" (fail-open) rather than a hard failure.
var ErrUnavailable = errors.New("store unavailable")

// Change describes a single key mutation delivered on the watch feed.
type Change struct {
	Key     string
	Value   string
	Removed bool
}

// Store is a string-keyed persistent store with change notifications.
// Values are opaque strings; callers handle their own encoding.
type Store interface {
	// Get returns the subset of keys that exist.
	Get(ctx context.Context, keys []string) (map[string]string, error)
	// GetAll returns every key/value pair.
	GetAll(ctx context.Context) (map[string]string, error)
	// Set writes all given pairs.
	Set(ctx context.Context, values map[string]string) error
	// Remove deletes the given keys. Missing keys are not an error.
	Remove(ctx context.Context, keys []string) error
	// Clear deletes everything.
	Clear(ctx context.Context) error
	// Watch registers a listener for key changes. The channel is closed
	// when the store is closed. Slow listeners may miss changes.
	Watch() <-chan Change
	// Close releases resources and closes all watch channels.
	Close() error
}
