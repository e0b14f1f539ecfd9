package facade

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/version-sentinel/version-sentinel/internal/poller"
)

type fakeSource struct {
	snap      poller.Snapshot
	observers []func(poller.Snapshot)
	purged    []string
}

func (f *fakeSource) Snapshot() poller.Snapshot { return f.snap }

func (f *fakeSource) Subscribe(fn func(poller.Snapshot)) func() {
	f.observers = append(f.observers, fn)
	idx := len(f.observers) - 1
	return func() { f.observers[idx] = nil }
}

func (f *fakeSource) Purge(_ context.Context, version string) error {
	f.purged = append(f.purged, version)
	return nil
}

func (f *fakeSource) publish(s poller.Snapshot) {
	f.snap = s
	for _, o := range f.observers {
		if o != nil {
			o(s)
		}
	}
}

func TestFacade_Result(t *testing.T) {
	src := &fakeSource{snap: poller.Snapshot{
		State:           poller.Stale,
		Loading:         false,
		IsLatestVersion: false,
		LatestVersion:   "1.1.0",
	}}

	got := New(src).Result()
	assert.Equal(t, Result{Loading: false, IsLatestVersion: false, LatestVersion: "1.1.0"}, got)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"loading":false,"isLatestVersion":false,"latestVersion":"1.1.0"}`, string(data))
}

func TestFacade_EmptyCacheStoragePassesVersionThrough(t *testing.T) {
	src := &fakeSource{}
	f := New(src)

	require.NoError(t, f.EmptyCacheStorage(context.Background(), ""))
	require.NoError(t, f.EmptyCacheStorage(context.Background(), "2.0.0"))
	assert.Equal(t, []string{"", "2.0.0"}, src.purged)
}

func TestFacade_Watch(t *testing.T) {
	src := &fakeSource{}
	f := New(src)

	var got []Result
	stop := f.Watch(func(r Result) { got = append(got, r) })

	src.publish(poller.Snapshot{State: poller.Fresh, IsLatestVersion: true, LatestVersion: "1.0.0"})
	stop()
	src.publish(poller.Snapshot{State: poller.Stale, LatestVersion: "1.1.0"})

	require.Len(t, got, 1)
	assert.Equal(t, "1.0.0", got[0].LatestVersion)
	assert.True(t, got[0].IsLatestVersion)
}
