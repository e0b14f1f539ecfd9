// Package poller decides whether the running build is stale by periodically
// comparing the origin's published version with the last known one.
//
// All state transitions happen on a single event loop (a serial task queue).
// Timer ticks, fetch completions and focus changes are posted to it, so two
// checks never compare and transition at the same time. Fetches themselves
// run on their own goroutines with contexts tied to the poller's lifetime.
//
// When ticks outpace fetches, the newest check wins: issuing a check cancels
// the one in flight and completions of older checks are discarded.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/version-sentinel/version-sentinel/internal/meta"
	"github.com/version-sentinel/version-sentinel/internal/metrics"
	"github.com/version-sentinel/version-sentinel/internal/netcheck"
	"github.com/version-sentinel/version-sentinel/internal/scheduler"
)

// MetaFetcher returns the version published at url.
type MetaFetcher interface {
	FetchMeta(ctx context.Context, url string) (string, error)
}

// VersionStore persists the last known version marker.
type VersionStore interface {
	Get(ctx context.Context, key string) string
	Set(ctx context.Context, key, value string)
}

// Purger deletes caches, persists version and reloads the client.
type Purger interface {
	Purge(ctx context.Context, version string) error
}

// Options is fixed for the lifetime of a Poller.
type Options struct {
	// Interval between checks while focused.
	Interval time.Duration
	// Auto purges as soon as a version mismatch is seen.
	Auto bool
	// StorageKey is the VersionStore key of the marker.
	StorageKey string
	// URL of the metadata document.
	URL string
	// StartFocused starts the repeating timer on Start. The first check
	// runs on Start regardless.
	StartFocused bool
	// Clock drives the repeating timer; nil uses the real clock.
	Clock clockwork.Clock
	// Connectivity is consulted when focus returns; nil is always online.
	Connectivity netcheck.Checker
}

// ErrAlreadyStarted is returned by Start on a poller that was started before.
var ErrAlreadyStarted = errors.New("poller already started")

// Poller is the version polling state machine.
type Poller struct {
	opts    Options
	fetcher MetaFetcher
	store   VersionStore
	purger  Purger
	online  netcheck.Checker
	queue   *scheduler.TaskQueue
	timer   *scheduler.Timer
	logger  *logrus.Entry

	snap atomic.Pointer[Snapshot]

	lifeMu    sync.Mutex
	started   atomic.Bool
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	loopDone  chan struct{}
	wg        sync.WaitGroup

	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int

	// Owned by the event loop.
	seq         uint64
	cancelFetch context.CancelFunc
	focused     bool
	focusEpoch  uint64
	purging     bool
}

// New creates a stopped Poller. The stored marker is read once to seed
// LatestVersion.
func New(opts Options, fetcher MetaFetcher, store VersionStore, purger Purger, logger *logrus.Entry) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	online := opts.Connectivity
	if online == nil {
		online = netcheck.Always{}
	}
	log := logger.WithField("component", "poller")

	p := &Poller{
		opts:      opts,
		fetcher:   fetcher,
		store:     store,
		purger:    purger,
		online:    online,
		queue:     scheduler.NewTaskQueue(64, log),
		timer:     scheduler.NewTimer("version_check", opts.Clock, log),
		logger:    log,
		loopDone:  make(chan struct{}),
		observers: make(map[int]func(Snapshot)),
	}

	p.snap.Store(&Snapshot{
		State:           Bootstrapping,
		Loading:         true,
		IsLatestVersion: true,
		LatestVersion:   store.Get(context.Background(), opts.StorageKey),
	})
	return p
}

// Start launches the event loop, runs the first check immediately and, when
// StartFocused is set, starts the repeating timer.
func (p *Poller) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.started.Load() || p.closed {
		return ErrAlreadyStarted
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started.Store(true)

	go func() {
		defer close(p.loopDone)
		p.queue.Start(p.ctx)
	}()

	p.queue.Enqueue(func() {
		p.logger.WithFields(logrus.Fields{
			"url":      p.opts.URL,
			"interval": p.opts.Interval,
			"auto":     p.opts.Auto,
		}).Info("version polling started")

		p.focused = p.opts.StartFocused
		if p.focused {
			p.startTimer()
		}
		p.check()
	})
	return nil
}

// Run starts the poller and blocks until ctx is done, then closes it.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.Close()
	return nil
}

// Close stops the timer, cancels any fetch in flight and ignores every
// completion that arrives afterwards. It is safe to call more than once.
func (p *Poller) Close() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if !p.started.Load() {
		return
	}

	p.cancel()
	<-p.loopDone
	p.timer.Stop()
	metrics.TimerActive.Set(0)
	p.wg.Wait()
	p.logger.Info("version polling stopped")
}

// Snapshot returns the last settled state.
func (p *Poller) Snapshot() Snapshot {
	return *p.snap.Load()
}

// TimerActive reports whether the repeating timer is running.
func (p *Poller) TimerActive() bool {
	return p.timer.Active()
}

// Subscribe registers fn to receive every published snapshot. fn runs on the
// event loop and must not block. The returned function unsubscribes.
func (p *Poller) Subscribe(fn func(Snapshot)) func() {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	return func() {
		p.obsMu.Lock()
		defer p.obsMu.Unlock()
		delete(p.observers, id)
	}
}

// Focus resumes polling if the network is reachable. Polling stays dormant
// otherwise until the next Focus finds connectivity.
func (p *Poller) Focus() {
	p.post(func() {
		p.focused = true
		p.focusEpoch++
		epoch := p.focusEpoch

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			online := p.online.Online(p.ctx)
			p.queue.Enqueue(func() { p.resume(epoch, online) })
		}()
	})
}

// Blur suspends polling. A fetch already in flight still completes.
func (p *Poller) Blur() {
	p.post(func() {
		p.focused = false
		p.focusEpoch++
		p.stopTimer()
		p.logger.Debug("focus lost, polling suspended")
	})
}

// CheckNow runs a check outside the regular schedule.
func (p *Poller) CheckNow() {
	p.post(p.check)
}

// Purge deletes caches, persists version and reloads the client. An empty
// version falls back to the latest fetched version. It may be called at any
// time, whether or not automatic purging is enabled.
func (p *Poller) Purge(ctx context.Context, version string) error {
	if version == "" {
		version = p.Snapshot().LatestVersion
	}
	metrics.PurgesTotal.WithLabelValues(metrics.TriggerManual).Inc()
	p.logger.WithField("version", version).Info("manual purge requested")
	return p.purger.Purge(ctx, version)
}

func (p *Poller) post(fn func()) {
	if !p.started.Load() {
		return
	}
	p.queue.Enqueue(fn)
}

// --- event loop only below this line ---

func (p *Poller) startTimer() {
	p.timer.Start(p.opts.Interval, func() {
		p.queue.TryEnqueue(p.check)
	})
	metrics.TimerActive.Set(1)
}

func (p *Poller) stopTimer() {
	p.timer.Stop()
	metrics.TimerActive.Set(0)
}

func (p *Poller) resume(epoch uint64, online bool) {
	if p.ctx.Err() != nil || !p.focused || epoch != p.focusEpoch {
		return
	}
	if !online {
		p.logger.Info("focus regained while offline, polling stays dormant")
		return
	}
	if p.purging {
		return
	}
	p.startTimer()
	p.logger.Debug("focus regained, polling resumed")
}

func (p *Poller) check() {
	if p.ctx.Err() != nil || p.purging {
		return
	}

	p.seq++
	seq := p.seq
	if p.cancelFetch != nil {
		p.cancelFetch()
	}
	fetchCtx, cancel := context.WithCancel(p.ctx)
	p.cancelFetch = cancel

	checkID := uuid.NewString()
	p.update(func(s *Snapshot) { s.Checking = true })

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		version, err := p.fetcher.FetchMeta(fetchCtx, p.opts.URL)
		p.queue.Enqueue(func() { p.complete(seq, checkID, version, err) })
	}()
}

func (p *Poller) complete(seq uint64, checkID, fetched string, err error) {
	if p.ctx.Err() != nil {
		return
	}
	log := p.logger.WithField("check_id", checkID)

	if seq != p.seq {
		metrics.ChecksTotal.WithLabelValues(metrics.OutcomeSuperseded).Inc()
		log.Debug("discarding result of superseded check")
		return
	}
	p.cancelFetch()
	p.cancelFetch = nil

	if err != nil {
		metrics.ChecksTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		log.WithError(err).Warn("version check failed, keeping current state")
		p.update(func(s *Snapshot) { s.Checking = false })
		return
	}

	p.transition(log, fetched)
}

func (p *Poller) transition(log *logrus.Entry, fetched string) {
	stored := p.store.Get(p.ctx, p.opts.StorageKey)
	now := time.Now()
	log = log.WithFields(logrus.Fields{"fetched": fetched, "stored": stored})

	if fetched != "" && fetched == stored {
		metrics.ChecksTotal.WithLabelValues(metrics.OutcomeFresh).Inc()
		log.Debug("running the latest version")
		p.update(func(s *Snapshot) {
			s.State = Fresh
			s.Checking = false
			s.Loading = false
			s.IsLatestVersion = true
			s.LatestVersion = fetched
			s.LastChecked = now
		})
		return
	}

	direction := meta.Direction(stored, fetched)
	if stored != "" {
		metrics.VersionChangesTotal.WithLabelValues(direction).Inc()
	}

	if p.opts.Auto {
		target := fetched
		if target == "" {
			target = p.Snapshot().LatestVersion
		}
		metrics.ChecksTotal.WithLabelValues(metrics.OutcomePurge).Inc()
		metrics.PurgesTotal.WithLabelValues(metrics.TriggerAuto).Inc()
		log.WithField("direction", direction).Info("new version published, purging automatically")
		p.update(func(s *Snapshot) {
			s.Checking = false
			s.LatestVersion = fetched
			s.LastChecked = now
		})
		p.autoPurge(target)
		return
	}

	if stored != "" {
		metrics.ChecksTotal.WithLabelValues(metrics.OutcomeStale).Inc()
		log.WithField("direction", direction).Info("new version published, waiting for purge")
		p.update(func(s *Snapshot) {
			s.State = Stale
			s.Checking = false
			s.Loading = false
			s.IsLatestVersion = false
			s.LatestVersion = fetched
			s.LastChecked = now
		})
		return
	}

	metrics.ChecksTotal.WithLabelValues(metrics.OutcomeBootstrap).Inc()
	log.Info("no version recorded yet, recording the published one")
	p.store.Set(p.ctx, p.opts.StorageKey, fetched)
	p.update(func(s *Snapshot) {
		s.State = Fresh
		s.Checking = false
		s.Loading = false
		s.IsLatestVersion = true
		s.LatestVersion = fetched
		s.LastChecked = now
	})
}

// autoPurge stops polling and purges off the loop. If the reload fails,
// polling resumes so a later check can try again.
func (p *Poller) autoPurge(version string) {
	p.purging = true
	p.stopTimer()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.purger.Purge(p.ctx, version)
		if err == nil {
			return
		}
		p.queue.Enqueue(func() {
			p.logger.WithError(err).Error("automatic purge failed, resuming polling")
			p.purging = false
			if p.focused {
				p.startTimer()
			}
		})
	}()
}

// update applies fn to a copy of the current snapshot and publishes it.
func (p *Poller) update(fn func(*Snapshot)) {
	next := *p.snap.Load()
	fn(&next)
	p.snap.Store(&next)
	metrics.SetState(next.State.String(), stateLabels())

	p.obsMu.Lock()
	observers := make([]func(Snapshot), 0, len(p.observers))
	for _, o := range p.observers {
		observers = append(observers, o)
	}
	p.obsMu.Unlock()

	for _, o := range observers {
		o(next)
	}
}
