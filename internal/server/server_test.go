package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/version-sentinel/version-sentinel/internal/config"
	"github.com/version-sentinel/version-sentinel/internal/facade"
	"github.com/version-sentinel/version-sentinel/internal/poller"
)

type fakeSentinel struct {
	mu     sync.Mutex
	snap   poller.Snapshot
	purged []string
	focus  int
	blur   int
}

func (f *fakeSentinel) Result() facade.Result { return facade.FromSnapshot(f.State()) }

func (f *fakeSentinel) State() poller.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSentinel) EmptyCacheStorage(_ context.Context, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, version)
	return nil
}

func (f *fakeSentinel) Focus() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focus++
}

func (f *fakeSentinel) Blur() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blur++
}

func (f *fakeSentinel) purges() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.purged...)
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *fakeSentinel, *httptest.Server) {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.Events.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}

	sentinel := &fakeSentinel{snap: poller.Snapshot{
		State:           poller.Stale,
		IsLatestVersion: false,
		LatestVersion:   "1.1.0",
	}}
	s, err := NewServer(cfg, sentinel, quietLogger())
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, sentinel, ts
}

func post(t *testing.T, url, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_HealthAndReady(t *testing.T) {
	s, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	s.SetReady(true)
	resp, err = http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "vs_timer_active")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServer_ConfigIsRedacted(t *testing.T) {
	_, _, ts := newTestServer(t, func(c *config.Config) {
		c.Server.Events.SecretToken = "hunter2"
	})

	resp, err := http.Get(ts.URL + "/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.NotContains(t, string(body), "hunter2")
	assert.Contains(t, string(body), "storage_key")
}

func TestServer_State(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, false, got["isLatestVersion"])
	assert.Equal(t, "1.1.0", got["latestVersion"])
	assert.Equal(t, "stale", got["poll"].(map[string]any)["state"])
}

func TestEvents_Purge(t *testing.T) {
	_, sentinel, ts := newTestServer(t, nil)

	resp := post(t, ts.URL+"/purge", `{"version":"2.0.0"}`, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = post(t, ts.URL+"/purge", "", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool { return len(sentinel.purges()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"2.0.0", ""}, sentinel.purges())
}

func TestEvents_Visibility(t *testing.T) {
	_, sentinel, ts := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/visibility", `{"state":"hidden"}`, nil).StatusCode)
	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/visibility", `{"state":"visible"}`, nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/visibility", `{"state":"asleep"}`, nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/visibility", `not json`, nil).StatusCode)

	sentinel.mu.Lock()
	defer sentinel.mu.Unlock()
	assert.Equal(t, 1, sentinel.blur)
	assert.Equal(t, 1, sentinel.focus)
}

func TestEvents_Token(t *testing.T) {
	_, sentinel, ts := newTestServer(t, func(c *config.Config) {
		c.Server.Events.SecretToken = "s3cret"
	})

	resp := post(t, ts.URL+"/visibility", `{"state":"hidden"}`, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = post(t, ts.URL+"/visibility", `{"state":"hidden"}`, map[string]string{TokenHeader: "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = post(t, ts.URL+"/visibility", `{"state":"hidden"}`, map[string]string{TokenHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sentinel.mu.Lock()
	defer sentinel.mu.Unlock()
	assert.Equal(t, 1, sentinel.blur)
}

func TestEvents_MethodNotAllowed(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/purge")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEvents_RateLimited(t *testing.T) {
	_, _, ts := newTestServer(t, func(c *config.Config) {
		c.Server.Events.RequestsPerMin = 2
	})

	for i := 0; i < 2; i++ {
		resp := post(t, ts.URL+"/visibility", `{"state":"visible"}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := post(t, ts.URL+"/visibility", `{"state":"visible"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestServer_EventsDisabled(t *testing.T) {
	_, _, ts := newTestServer(t, func(c *config.Config) {
		c.Server.Events.Enabled = false
	})

	resp := post(t, ts.URL+"/purge", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DefaultConfigServesNoEvents(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	require.NoError(t, config.Validate(cfg))

	sentinel := &fakeSentinel{}
	s, err := NewServer(cfg, sentinel, quietLogger())
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	for _, path := range []string{"/purge", "/visibility"} {
		resp := post(t, ts.URL+path, `{"state":"visible"}`, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	assert.Empty(t, sentinel.purges())
}

func TestServer_StartStop(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.ListenAddress = "127.0.0.1:0"

	s, err := NewServer(cfg, &fakeSentinel{}, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
