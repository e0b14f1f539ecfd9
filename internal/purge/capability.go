// Package purge deletes the named artifact caches of the guarded client and
// reloads it.
package purge

import "context"

// CacheStorage enumerates and deletes named caches. A nil CacheStorage means
// the capability is unavailable and the deletion step is skipped.
type CacheStorage interface {
	// Keys lists the names of all caches.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes the named cache and reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
}

// Navigator reloads the guarded client at its current location without
// leaving a way back to the stale build. A successful Replace is terminal
// for the current client instance.
type Navigator interface {
	Replace(ctx context.Context) error
}

// VersionWriter persists the version the reloaded client should consider
// current.
type VersionWriter interface {
	Set(ctx context.Context, key, value string)
}
