// Package facade is the consumer-facing view of a poller: the three fields a
// caller renders from and a way to trigger the purge by hand.
package facade

import (
	"context"

	"github.com/version-sentinel/version-sentinel/internal/poller"
)

// Result is what a caller needs to decide whether to prompt for a reload.
type Result struct {
	Loading         bool   `json:"loading"`
	IsLatestVersion bool   `json:"isLatestVersion"`
	LatestVersion   string `json:"latestVersion"`
}

// Source is the part of a poller the facade reads from.
type Source interface {
	Snapshot() poller.Snapshot
	Subscribe(fn func(poller.Snapshot)) func()
	Purge(ctx context.Context, version string) error
}

// Facade projects a poller's snapshot into a Result.
type Facade struct {
	src Source
}

// New returns a Facade over src.
func New(src Source) *Facade {
	return &Facade{src: src}
}

// FromSnapshot projects s into a Result.
func FromSnapshot(s poller.Snapshot) Result {
	return Result{
		Loading:         s.Loading,
		IsLatestVersion: s.IsLatestVersion,
		LatestVersion:   s.LatestVersion,
	}
}

// Result returns the projection of the poller's last settled state.
func (f *Facade) Result() Result {
	return FromSnapshot(f.src.Snapshot())
}

// State returns the full snapshot, for diagnostics.
func (f *Facade) State() poller.Snapshot {
	return f.src.Snapshot()
}

// EmptyCacheStorage deletes every cache, records version and reloads the
// client. An empty version means the latest published one.
func (f *Facade) EmptyCacheStorage(ctx context.Context, version string) error {
	return f.src.Purge(ctx, version)
}

// Watch calls fn with the new Result after every state change. fn must not
// block. The returned function stops the notifications.
func (f *Facade) Watch(fn func(Result)) func() {
	return f.src.Subscribe(func(s poller.Snapshot) {
		fn(FromSnapshot(s))
	})
}
