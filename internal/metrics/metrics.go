// Package metrics holds the Prometheus instruments shared by the poller,
// purger and store, and exposes them for registration on the HTTP server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Check outcomes recorded on ChecksTotal.
const (
	OutcomeFresh      = "fresh"
	OutcomeStale      = "stale"
	OutcomeBootstrap  = "bootstrap"
	OutcomePurge      = "purge"
	OutcomeFailure    = "failure"
	OutcomeSuperseded = "superseded"
)

// Purge triggers recorded on PurgesTotal.
const (
	TriggerAuto   = "auto"
	TriggerManual = "manual"
)

var (
	ChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vs_checks_total",
		Help: "Version checks completed, by outcome.",
	}, []string{"outcome"})

	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vs_fetch_duration_seconds",
		Help:    "Duration of metadata document fetches.",
		Buckets: prometheus.DefBuckets,
	})

	PollState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vs_poll_state",
		Help: "Current settled poll state (1 = current state matches label, 0 otherwise).",
	}, []string{"state"})

	TimerActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vs_timer_active",
		Help: "Whether the repeating poll timer is running (1) or suspended (0).",
	})

	VersionChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vs_version_changes_total",
		Help: "Published versions that differ from the recorded one, by direction (upgrade, downgrade, same, unknown).",
	}, []string{"direction"})

	PurgesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vs_purges_total",
		Help: "Cache purges started, by trigger.",
	}, []string{"trigger"})

	CachesDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vs_caches_deleted_total",
		Help: "Named caches deleted by purges.",
	})

	CacheDeleteErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vs_cache_delete_errors_total",
		Help: "Named caches that could not be deleted during a purge.",
	})

	StoreResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vs_store_resets_total",
		Help: "Persisted version markers cleared because they were empty, malformed or unreadable.",
	})
)

// Collectors returns every instrument in this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ChecksTotal,
		FetchDuration,
		PollState,
		TimerActive,
		VersionChangesTotal,
		PurgesTotal,
		CachesDeletedTotal,
		CacheDeleteErrorsTotal,
		StoreResetsTotal,
	}
}

// Register registers every instrument on reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// SetState marks state as the active poll state and clears the others.
func SetState(state string, all []string) {
	for _, s := range all {
		if s == state {
			PollState.WithLabelValues(s).Set(1)
		} else {
			PollState.WithLabelValues(s).Set(0)
		}
	}
}
