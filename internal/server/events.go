package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"

	"github.com/version-sentinel/version-sentinel/internal/visibility"
)

// TokenHeader carries the shared secret for the event endpoints.
const TokenHeader = "X-Sentinel-Token"

// EventsHandler serves the purge and visibility endpoints. It validates the
// token header when a secret token is configured.
type EventsHandler struct {
	secretToken string
	sentinel    Sentinel
	logger      *logrus.Entry

	// purgeTimeout bounds a purge started over HTTP. It runs detached from
	// the request because a successful purge may replace this process.
	purgeTimeout time.Duration
}

// NewEventsHandler creates a handler. If secretToken is empty, token
// validation is skipped.
func NewEventsHandler(secretToken string, sentinel Sentinel, logger *logrus.Entry) *EventsHandler {
	return &EventsHandler{
		secretToken:  secretToken,
		sentinel:     sentinel,
		logger:       logger.WithField("component", "events"),
		purgeTimeout: 2 * time.Minute,
	}
}

type purgeRequest struct {
	Version string `json:"version"`
}

type visibilityRequest struct {
	State string `json:"state"`
}

// HandlePurge accepts {"version": "..."} (the body is optional) and starts
// a purge. It answers 202 before the purge runs.
func (eh *EventsHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if !eh.authorize(w, r) {
		return
	}

	var req purgeRequest
	if err := decodeBody(r, &req); err != nil {
		eh.logger.WithError(err).Warn("failed to parse purge request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	eh.logger.WithField("version", req.Version).Info("purge requested over HTTP")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eh.purgeTimeout)
		defer cancel()
		if err := eh.sentinel.EmptyCacheStorage(ctx, req.Version); err != nil {
			eh.logger.WithError(err).Error("purge failed")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

// HandleVisibility accepts {"state": "visible"|"hidden"}.
func (eh *EventsHandler) HandleVisibility(w http.ResponseWriter, r *http.Request) {
	if !eh.authorize(w, r) {
		return
	}

	var req visibilityRequest
	if err := decodeBody(r, &req); err != nil {
		eh.logger.WithError(err).Warn("failed to parse visibility request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := visibility.Apply(eh.sentinel, req.State); err != nil {
		if errors.Is(err, visibility.ErrUnknownState) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	eh.logger.WithField("state", req.State).Debug("visibility changed")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (eh *EventsHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if eh.secretToken != "" && r.Header.Get(TokenHeader) != eh.secretToken {
		eh.logger.Warn("event received with invalid token")
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// decodeBody reads at most 64 KB of JSON into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing body: %w", err)
	}
	return nil
}

// rateLimit limits requests per client IP and answers 429 with Retry-After.
func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	)
}
