package meta

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter paces outbound metadata requests with a local token bucket and
// honours Retry-After from the origin (sent with 429 and 503 responses).
// It is safe for concurrent use.
type RateLimiter struct {
	mu sync.Mutex

	local *rate.Limiter

	// backoffUntil is the time before which no request should be issued
	// because the origin asked us to slow down.
	backoffUntil time.Time

	logger *logrus.Entry
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second.
// A zero or negative rps disables local pacing.
func NewRateLimiter(rps int, logger *logrus.Entry) *RateLimiter {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &RateLimiter{
		local:  limiter,
		logger: logger,
	}
}

// Wait blocks until a request may be issued. It returns ctx.Err() if the
// context ends first.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	backoff := rl.backoffUntil
	rl.mu.Unlock()

	if delay := time.Until(backoff); delay > 0 {
		rl.logger.WithField("delay", delay.Round(time.Millisecond)).
			Debug("rate limiter: waiting for Retry-After backoff")
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return rl.local.Wait(ctx)
}

// UpdateFromHeaders records a Retry-After delay (in seconds) if present.
func (rl *RateLimiter) UpdateFromHeaders(headers http.Header) {
	ra := headers.Get("Retry-After")
	if ra == "" {
		return
	}
	sec, err := strconv.Atoi(ra)
	if err != nil || sec <= 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	until := time.Now().Add(time.Duration(sec) * time.Second)
	if until.After(rl.backoffUntil) {
		rl.backoffUntil = until
		rl.logger.WithField("retry_after_sec", sec).Warn("rate limiter: origin asked to back off")
	}
}

// BackoffUntil returns the time before which requests are held back.
func (rl *RateLimiter) BackoffUntil() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.backoffUntil
}
