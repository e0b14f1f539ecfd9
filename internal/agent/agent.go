// Package agent wires the store, fetcher, purger, poller, signal source and
// HTTP server into a single orchestrator.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/version-sentinel/version-sentinel/internal/config"
	"github.com/version-sentinel/version-sentinel/internal/facade"
	"github.com/version-sentinel/version-sentinel/internal/meta"
	"github.com/version-sentinel/version-sentinel/internal/netcheck"
	"github.com/version-sentinel/version-sentinel/internal/poller"
	"github.com/version-sentinel/version-sentinel/internal/purge"
	"github.com/version-sentinel/version-sentinel/internal/scheduler"
	"github.com/version-sentinel/version-sentinel/internal/server"
	"github.com/version-sentinel/version-sentinel/internal/store"
	"github.com/version-sentinel/version-sentinel/internal/visibility"
)

// Options carries what the agent cannot read from the configuration.
type Options struct {
	// Version of this binary, sent in the fetcher's User-Agent.
	Version string
	// Clock drives the poll timer; nil uses the real clock.
	Clock clockwork.Clock
	// Navigator overrides the reload strategy chosen by reload.mode.
	Navigator purge.Navigator
	// Transport overrides the fetcher's HTTP transport.
	Transport http.RoundTripper
}

// Agent is the main application orchestrator. It owns one poller session at
// a time; a reload that leaves the process running starts a new session so
// the next check compares against the freshly recorded version.
type Agent struct {
	config    *config.Config
	opts      Options
	versions  *store.VersionStore
	fetcher   *meta.Fetcher
	url       string
	caches    purge.CacheStorage
	navigator purge.Navigator
	online    netcheck.Checker
	server    *server.Server
	closers   []io.Closer
	logger    *logrus.Entry

	replaced chan struct{}

	mu      sync.RWMutex
	session *session
	focused bool
}

type session struct {
	poller    *poller.Poller
	facade    *facade.Facade
	stopWatch func()
}

var (
	_ server.Sentinel   = (*Agent)(nil)
	_ visibility.Target = (*Agent)(nil)
)

// New creates the agent:
//  1. Opens the version store.
//  2. Resolves the metadata URL and creates the fetcher.
//  3. Opens the cache storage and picks the reload strategy.
//  4. Creates the HTTP server.
//
// No network traffic happens until Run.
func New(cfg *config.Config, opts Options, logger *logrus.Entry) (*Agent, error) {
	log := logger.WithField("component", "agent")

	a := &Agent{
		config:   cfg,
		opts:     opts,
		logger:   log,
		replaced: make(chan struct{}, 1),
		focused:  cfg.Poll.StartFocused,
	}

	// --- 1. Version store ---
	backend, err := openBackend(cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("creating version store: %w", err)
	}
	a.versions = store.NewVersionStore(backend, logger)
	a.closers = append(a.closers, a.versions)

	// --- 2. Fetcher ---
	a.url, err = meta.ResolveURL(cfg.Poll.Origin, cfg.Poll.BasePath, cfg.Poll.Filename)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("resolving metadata URL: %w", err)
	}
	a.fetcher = meta.NewFetcher(meta.Options{
		Timeout:              cfg.Poll.RequestTimeout(),
		MaxRequestsPerSecond: cfg.Poll.MaxRequestsPerSecond,
		UserAgent:            "version-sentinel/" + opts.Version,
		Transport:            opts.Transport,
	}, logger)

	// --- 3. Purge capabilities ---
	caches, closer, err := openCaches(cfg.Cache, log)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("creating cache storage: %w", err)
	}
	a.caches = caches
	a.closers = append(a.closers, closer)

	a.navigator = opts.Navigator
	if a.navigator == nil {
		a.navigator, err = newNavigator(cfg.Reload, a.beforeExec, a.onReplaced, logger)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("creating navigator: %w", err)
		}
	}

	a.online, err = newConnectivity(cfg, logger)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	// --- 4. HTTP server ---
	if cfg.Server.Enabled {
		a.server, err = server.NewServer(cfg, a, logger)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("creating server: %w", err)
		}
	}

	log.WithField("url", a.url).Info("agent initialised")
	return a, nil
}

// URL is the resolved metadata document URL.
func (a *Agent) URL() string {
	return a.url
}

// Run starts polling, the signal source and the HTTP server, then blocks
// until ctx is cancelled or a service fails.
func (a *Agent) Run(ctx context.Context) error {
	defer a.closeAll()

	if err := a.startSession(ctx); err != nil {
		return err
	}

	sched := scheduler.NewScheduler(a.logger)
	sched.Add("visibility", visibility.NewSignalSource(a, a.logger).Run)
	if a.server != nil {
		sched.Add("http", a.server.Run)
	}
	sched.Start(ctx)

	a.logger.Info("agent is running")

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-sched.Errors():
			runErr = fmt.Errorf("service failed: %w", err)
			break loop
		case <-a.replaced:
			a.logger.Info("client reloaded, starting a new polling session")
			a.stopSession()
			if err := a.startSession(ctx); err != nil {
				runErr = err
				break loop
			}
		}
	}

	a.logger.Info("shutting down agent")
	if a.server != nil {
		a.server.SetReady(false)
	}
	sched.Stop()
	a.stopSession()
	return runErr
}

// CheckOnce runs a single check without automatic purging and returns the
// settled result. Like any first check, it records the published version
// when none is stored yet. It gives up when ctx is done.
func (a *Agent) CheckOnce(ctx context.Context) (facade.Result, error) {
	defer a.closeAll()

	p := a.newPoller(false, false, nil, a.newPurger(a.navigator))
	f := facade.New(p)

	settled := make(chan struct{}, 1)
	stop := p.Subscribe(func(s poller.Snapshot) {
		if s.Checking {
			return
		}
		select {
		case settled <- struct{}{}:
		default:
		}
	})
	defer stop()

	if err := p.Start(ctx); err != nil {
		return facade.Result{}, err
	}
	defer p.Close()

	select {
	case <-settled:
	case <-ctx.Done():
		return facade.Result{}, fmt.Errorf("waiting for version check: %w", ctx.Err())
	}

	snap := p.Snapshot()
	if snap.State == poller.Bootstrapping {
		return f.Result(), errors.New("version check failed, see log for details")
	}
	return f.Result(), nil
}

// Purge runs one purge with the configured capabilities, outside any
// polling session. An empty version means the currently published one.
// Re-executing makes no sense for a one-shot command, so exec mode only
// logs the reload request here.
func (a *Agent) Purge(ctx context.Context, version string) error {
	defer a.closeAll()
	if version == "" {
		fetched, err := a.fetcher.FetchMeta(ctx, a.url)
		if err != nil {
			return fmt.Errorf("fetching latest version: %w", err)
		}
		version = fetched
	}

	navigator := a.navigator
	if a.opts.Navigator == nil && a.config.Reload.Mode == "exec" {
		navigator = purge.NewLogNavigator(nil, a.logger)
	}
	return a.newPurger(navigator).Purge(ctx, version)
}

// --- server.Sentinel and visibility.Target ---

// Result returns the consumer view of the current session.
func (a *Agent) Result() facade.Result {
	if s := a.current(); s != nil {
		return s.facade.Result()
	}
	return facade.Result{Loading: true, IsLatestVersion: true}
}

// State returns the full snapshot of the current session.
func (a *Agent) State() poller.Snapshot {
	if s := a.current(); s != nil {
		return s.facade.State()
	}
	return poller.Snapshot{Loading: true, IsLatestVersion: true}
}

// EmptyCacheStorage purges through the current session.
func (a *Agent) EmptyCacheStorage(ctx context.Context, version string) error {
	s := a.current()
	if s == nil {
		return errors.New("no polling session")
	}
	return s.facade.EmptyCacheStorage(ctx, version)
}

// Focus resumes polling. It survives session changes.
func (a *Agent) Focus() {
	a.mu.Lock()
	a.focused = true
	s := a.session
	a.mu.Unlock()
	if s != nil {
		s.poller.Focus()
	}
}

// Blur suspends polling. It survives session changes.
func (a *Agent) Blur() {
	a.mu.Lock()
	a.focused = false
	s := a.session
	a.mu.Unlock()
	if s != nil {
		s.poller.Blur()
	}
}

// --- sessions ---

func (a *Agent) current() *session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

func (a *Agent) newPurger(navigator purge.Navigator) *purge.Purger {
	return purge.New(purge.Options{
		Caches:     a.caches,
		Navigator:  navigator,
		Versions:   a.versions,
		StorageKey: a.config.Poll.StorageKey,
	}, a.logger)
}

func (a *Agent) newPoller(auto, focused bool, online netcheck.Checker, purger *purge.Purger) *poller.Poller {
	return poller.New(poller.Options{
		Interval:     a.config.Poll.Interval(),
		Auto:         auto,
		StorageKey:   a.config.Poll.StorageKey,
		URL:          a.url,
		StartFocused: focused,
		Clock:        a.opts.Clock,
		Connectivity: online,
	}, a.fetcher, a.versions, purger, a.logger)
}

func (a *Agent) startSession(ctx context.Context) error {
	a.mu.Lock()
	focused := a.focused
	a.mu.Unlock()

	p := a.newPoller(a.config.Poll.Auto, focused, a.online, a.newPurger(a.navigator))
	f := facade.New(p)
	stop := f.Watch(func(r facade.Result) {
		if a.server != nil && !r.Loading {
			a.server.SetReady(true)
		}
	})

	if err := p.Start(ctx); err != nil {
		stop()
		return fmt.Errorf("starting poller: %w", err)
	}

	a.mu.Lock()
	a.session = &session{poller: p, facade: f, stopWatch: stop}
	a.mu.Unlock()
	return nil
}

func (a *Agent) stopSession() {
	a.mu.Lock()
	s := a.session
	a.session = nil
	a.mu.Unlock()
	if s == nil {
		return
	}
	s.stopWatch()
	s.poller.Close()
}

// onReplaced runs on the purging goroutine, which the poller waits for on
// Close, so the session is swapped from Run instead.
func (a *Agent) onReplaced() {
	select {
	case a.replaced <- struct{}{}:
	default:
	}
}

func (a *Agent) beforeExec() {
	if err := a.versions.Sync(); err != nil {
		a.logger.WithError(err).Warn("flushing version store before exec failed")
	}
}

func (a *Agent) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.WithError(err).Error("error closing resource")
		}
	}
	a.closers = nil
}
