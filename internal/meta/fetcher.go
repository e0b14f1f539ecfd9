// Package meta fetches the version metadata document published by the
// origin server.
package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/version-sentinel/version-sentinel/internal/metrics"
)

// maxDocumentSize caps how much of the metadata body is read.
const maxDocumentSize = 64 << 10

// ErrFetch is matched by every error FetchMeta returns.
var ErrFetch = errors.New("metadata fetch failed")

// FetchError describes why a metadata fetch produced no version.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is reports ErrFetch as a match so callers can test with errors.Is.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Document is the metadata document. Only the version field is read.
type Document struct {
	Version json.RawMessage `json:"version"`
}

// Options configures a Fetcher.
type Options struct {
	// Timeout bounds a single request. Zero means 10s.
	Timeout time.Duration
	// MaxRequestsPerSecond paces requests locally; zero disables pacing.
	MaxRequestsPerSecond int
	// UserAgent is sent with every request when set.
	UserAgent string
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Fetcher retrieves the metadata document, always bypassing caches.
type Fetcher struct {
	client    *http.Client
	limiter   *RateLimiter
	userAgent string
	logger    *logrus.Entry
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts Options, logger *logrus.Entry) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := logger.WithField("component", "meta_fetcher")
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: opts.Transport,
		},
		limiter:   NewRateLimiter(opts.MaxRequestsPerSecond, log.WithField("component", "rate_limiter")),
		userAgent: opts.UserAgent,
		logger:    log,
	}
}

// FetchMeta requests url and returns its version field. Any transport
// failure, non-2xx status, non-JSON body or missing/non-string version
// yields a *FetchError. An explicit empty version is returned as "".
func (f *Fetcher) FetchMeta(ctx context.Context, url string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}()

	if err := f.limiter.Wait(ctx); err != nil {
		return "", &FetchError{URL: url, Err: fmt.Errorf("rate limiter wait: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, max-age=0")
	req.Header.Set("Pragma", "no-cache")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	f.limiter.UpdateFromHeaders(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentSize))
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode, Err: errors.New("unexpected status")}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	if len(body) > maxDocumentSize {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("document larger than %d bytes", maxDocumentSize)}
	}

	version, err := ParseDocument(body)
	if err != nil {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	f.logger.WithFields(logrus.Fields{
		"url":      url,
		"version":  version,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("metadata fetched")

	return version, nil
}

// ParseDocument extracts the version string from a metadata document body.
func ParseDocument(body []byte) (string, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decoding metadata document: %w", err)
	}
	if len(doc.Version) == 0 || string(doc.Version) == "null" {
		return "", errors.New("metadata document has no version field")
	}
	var version string
	if err := json.Unmarshal(doc.Version, &version); err != nil {
		return "", fmt.Errorf("metadata version is not a string: %w", err)
	}
	return version, nil
}
