package meta

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, file, want string
	}{
		{"", "meta.json", "/meta.json"},
		{"/", "meta.json", "/meta.json"},
		{"/static", "meta.json", "/static/meta.json"},
		{"/static///", "meta.json", "/static/meta.json"},
		{"https://cdn.example.com/app/", "build.json", "https://cdn.example.com/app/build.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinURL(tt.base, tt.file), "JoinURL(%q, %q)", tt.base, tt.file)
	}
}

func TestResolveURL(t *testing.T) {
	got, err := ResolveURL("https://app.example.com/deep/page", "/static/", "meta.json")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/static/meta.json", got)

	got, err = ResolveURL("", "https://cdn.example.com/v/", "meta.json")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v/meta.json", got)

	got, err = ResolveURL("https://app.example.com", "https://cdn.example.com", "meta.json")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/meta.json", got, "absolute base path wins over origin")

	_, err = ResolveURL("", "", "meta.json")
	assert.Error(t, err, "relative URL without origin")

	_, err = ResolveURL("app.example.com", "", "meta.json")
	assert.Error(t, err, "origin must be absolute")
}

func TestParseDocument(t *testing.T) {
	v, err := ParseDocument([]byte(`{"version":"3.2.1","built":"yesterday"}`))
	require.NoError(t, err)
	assert.Equal(t, "3.2.1", v)

	v, err = ParseDocument([]byte(`{"version":""}`))
	require.NoError(t, err)
	assert.Equal(t, "", v, "explicit empty version is not a failure")

	for _, body := range []string{
		``,
		`not json`,
		`null`,
		`[]`,
		`{}`,
		`{"version":null}`,
		`{"version":3}`,
		`{"version":{"major":3}}`,
	} {
		_, err := ParseDocument([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestFetcher_FetchMeta(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		assert.Equal(t, "/meta.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"1.1.0"}`))
	}))
	defer srv.Close()

	f := NewFetcher(Options{UserAgent: "version-sentinel/test"}, quietLogger())
	v, err := f.FetchMeta(context.Background(), srv.URL+"/meta.json")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v)

	assert.Contains(t, gotHeaders.Get("Cache-Control"), "no-store")
	assert.Equal(t, "no-cache", gotHeaders.Get("Pragma"))
	assert.Equal(t, "version-sentinel/test", gotHeaders.Get("User-Agent"))
}

func TestFetcher_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			status: http.StatusInternalServerError,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.NotFound(w, nil)
			},
			status: http.StatusNotFound,
		},
		{
			name: "html body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>maintenance</html>"))
			},
			status: http.StatusOK,
		},
		{
			name: "missing version",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"build":42}`))
			},
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			f := NewFetcher(Options{}, quietLogger())
			_, err := f.FetchMeta(context.Background(), srv.URL+"/meta.json")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFetch)

			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.status, fe.StatusCode)
		})
	}
}

func TestFetcher_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/meta.json"
	srv.Close()

	f := NewFetcher(Options{Timeout: time.Second}, quietLogger())
	_, err := f.FetchMeta(context.Background(), url)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestFetcher_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	f := NewFetcher(Options{}, quietLogger())
	_, err := f.FetchMeta(ctx, srv.URL)
	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	rl := NewRateLimiter(0, quietLogger())
	assert.True(t, rl.BackoffUntil().IsZero())

	h := http.Header{}
	h.Set("Retry-After", "30")
	rl.UpdateFromHeaders(h)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), rl.BackoffUntil(), 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)

	h.Set("Retry-After", "garbage")
	before := rl.BackoffUntil()
	rl.UpdateFromHeaders(h)
	assert.Equal(t, before, rl.BackoffUntil())
}

func TestDirection(t *testing.T) {
	assert.Equal(t, DirectionUpgrade, Direction("1.0.0", "1.1.0"))
	assert.Equal(t, DirectionDowngrade, Direction("2.0.0", "1.9.9"))
	assert.Equal(t, DirectionSame, Direction("1.0", "1.0.0"))
	assert.Equal(t, DirectionUnknown, Direction("", "1.0.0"))
	assert.Equal(t, DirectionUnknown, Direction("abc123", "def456"))
}
