package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/version-sentinel/version-sentinel/internal/metrics"
)

// VersionStore reads and writes the last-known version marker on top of a
// Backend. Markers are stored JSON-encoded. Anything that is not a JSON
// string is treated as corrupt, cleared, and read as "".
//
// VersionStore never returns errors: the marker is a cache hint, not a
// system of record.
type VersionStore struct {
	backend Backend
	logger  *logrus.Entry
}

// NewVersionStore wraps backend.
func NewVersionStore(backend Backend, logger *logrus.Entry) *VersionStore {
	return &VersionStore{
		backend: backend,
		logger:  logger.WithField("component", "version_store"),
	}
}

// Get returns the marker stored under key, or "" if it is absent, empty,
// malformed or unreadable. In the last three cases the entry is removed.
func (s *VersionStore) Get(ctx context.Context, key string) string {
	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return ""
	}
	if err != nil {
		s.reset(ctx, key, err, "reading version marker failed")
		return ""
	}
	if raw == "" {
		s.reset(ctx, key, nil, "empty version marker")
		return ""
	}

	var v *string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.reset(ctx, key, err, "malformed version marker")
		return ""
	}
	if v == nil {
		s.reset(ctx, key, nil, "null version marker")
		return ""
	}
	return *v
}

// Set persists value under key. Failures are logged and dropped.
func (s *VersionStore) Set(ctx context.Context, key, value string) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("encoding version marker failed")
		return
	}
	if err := s.backend.Set(ctx, key, string(data)); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("persisting version marker failed")
		return
	}
	s.logger.WithFields(logrus.Fields{"key": key, "version": value}).Debug("version marker persisted")
}

func (s *VersionStore) reset(ctx context.Context, key string, cause error, msg string) {
	log := s.logger.WithField("key", key)
	if cause != nil {
		log = log.WithError(cause)
	}
	log.Warn(msg + ", resetting")
	metrics.StoreResetsTotal.Inc()

	if err := s.backend.Delete(ctx, key); err != nil {
		log.WithError(err).Debug("clearing version marker failed")
	}
}

// Close closes the underlying backend.
func (s *VersionStore) Close() error {
	return s.backend.Close()
}

// Sync flushes the backend if it buffers writes. It is called before the
// process image is replaced.
func (s *VersionStore) Sync() error {
	if syncer, ok := s.backend.(Syncer); ok {
		return syncer.Sync()
	}
	return nil
}
