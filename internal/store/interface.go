// Package store provides the key-value backends used to persist the
// last-known version marker, and the VersionStore that normalises it.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Backend when a key has no value.
var ErrNotFound = errors.New("store: key not found")

// Backend is a minimal string key-value medium.
type Backend interface {
	// Get returns the raw value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any resources held by the backend.
	Close() error
}

// Syncer is implemented by backends that buffer writes in memory.
type Syncer interface {
	Sync() error
}
