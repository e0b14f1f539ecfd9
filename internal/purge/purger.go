package purge

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/version-sentinel/version-sentinel/internal/metrics"
)

// Options configures a Purger.
type Options struct {
	// Caches is optional; nil skips cache deletion.
	Caches     CacheStorage
	Navigator  Navigator
	Versions   VersionWriter
	StorageKey string
}

// Purger deletes every named cache, records the version to load next, and
// reloads the client. Only one purge runs at a time and a purge that reached
// navigation is never repeated.
type Purger struct {
	caches     CacheStorage
	navigator  Navigator
	versions   VersionWriter
	key        string
	navigating atomic.Bool
	logger     *logrus.Entry
}

// New creates a Purger.
func New(opts Options, logger *logrus.Entry) *Purger {
	return &Purger{
		caches:    opts.Caches,
		navigator: opts.Navigator,
		versions:  opts.Versions,
		key:       opts.StorageKey,
		logger:    logger.WithField("component", "purger"),
	}
}

// Navigating reports whether a purge is underway or has already reloaded.
func (p *Purger) Navigating() bool {
	return p.navigating.Load()
}

// Purge deletes all caches (best effort), persists version under the storage
// key and replaces the client. Calls made while a purge is in progress, or
// after one has navigated, return nil without doing anything. If navigation
// fails the error is returned and the purger can be used again.
func (p *Purger) Purge(ctx context.Context, version string) error {
	if !p.navigating.CompareAndSwap(false, true) {
		p.logger.Debug("purge already in progress, ignoring")
		return nil
	}

	log := p.logger.WithField("version", version)
	log.Info("purging caches")

	p.deleteCaches(ctx, log)

	if p.versions != nil {
		p.versions.Set(ctx, p.key, version)
	}

	if p.navigator == nil {
		return nil
	}
	if err := p.navigator.Replace(ctx); err != nil {
		p.navigating.Store(false)
		return fmt.Errorf("reloading client: %w", err)
	}
	return nil
}

func (p *Purger) deleteCaches(ctx context.Context, log *logrus.Entry) {
	if p.caches == nil {
		log.Debug("no cache storage configured, skipping cache deletion")
		return
	}

	names, err := p.caches.Keys(ctx)
	if err != nil {
		log.WithError(err).Warn("listing caches failed, skipping cache deletion")
		return
	}

	deleted := 0
	for _, name := range names {
		ok, err := p.caches.Delete(ctx, name)
		if err != nil {
			metrics.CacheDeleteErrorsTotal.Inc()
			log.WithError(err).WithField("cache", name).Warn("deleting cache failed")
			continue
		}
		if ok {
			deleted++
			metrics.CachesDeletedTotal.Inc()
		}
	}

	log.WithFields(logrus.Fields{
		"found":   len(names),
		"deleted": deleted,
	}).Info("caches purged")
}
