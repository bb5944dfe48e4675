package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Orchestrator loop metrics (§4.5)
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swarm_orchestrator_tick_duration_seconds",
			Help:    "Time taken to resolve and commit one orchestrator tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarm_orchestrator_ticks_total",
			Help: "Total number of orchestrator ticks completed",
		},
	)

	ResolveErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_resolve_errors_total",
			Help: "Total number of resolver failures by blade role",
		},
		[]string{"role"},
	)

	ResolveSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_resolve_skipped_total",
			Help: "Total number of blades skipped this tick (no resolver or no intent)",
		},
		[]string{"role", "reason"},
	)

	// Intent commit metrics (§4.6)
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_commits_total",
			Help: "Total number of intent commit attempts by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	CommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarm_commit_duration_seconds",
			Help:    "Intent commit round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role"},
	)

	// Scraper selection metrics (§4.1, §4.4)
	ChooserDrawsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_chooser_draws_total",
			Help: "Total number of weighted-chooser draws by selected key",
		},
		[]string{"key"},
	)

	ChooserNoCandidateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarm_chooser_no_candidate_total",
			Help: "Total number of weighted-chooser draws that found no candidate",
		},
	)

	ScraperIntentsMemoizedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarm_scraper_intents_memoized_total",
			Help: "Total number of scraper intents served from the memoization window",
		},
	)

	ScraperIntentsGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarm_scraper_intents_generated_total",
			Help: "Total number of scraper intents freshly generated",
		},
	)

	// Version store metrics (§4.2)
	VersionSyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swarm_version_sync_duration_seconds",
			Help:    "Time taken for a full version store sync pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	VersionSyncFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_version_sync_failures_total",
			Help: "Total number of per-repository upstream sync failures",
		},
		[]string{"repository"},
	)

	TrackedRepositories = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swarm_version_tracked_repositories",
			Help: "Number of repositories currently tracked by the version store",
		},
	)

	// Blade-side install metrics (§4.7)
	InstallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_blade_installs_total",
			Help: "Total number of module install attempts by module and outcome",
		},
		[]string{"module", "outcome"},
	)

	InstallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarm_blade_install_duration_seconds",
			Help:    "Time taken to install a scraping module",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"module"},
	)

	// Monitor ingestion metrics (supplemented feature)
	MonitorLogsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_monitor_logs_ingested_total",
			Help: "Total number of log records ingested by the monitor blade",
		},
		[]string{"host", "level"},
	)
)

func init() {
	prometheus.MustRegister(
		TickDuration,
		TicksTotal,
		ResolveErrorsTotal,
		ResolveSkippedTotal,
		CommitsTotal,
		CommitDuration,
		ChooserDrawsTotal,
		ChooserNoCandidateTotal,
		ScraperIntentsMemoizedTotal,
		ScraperIntentsGeneratedTotal,
		VersionSyncDuration,
		VersionSyncFailuresTotal,
		TrackedRepositories,
		InstallsTotal,
		InstallDuration,
		MonitorLogsIngestedTotal,
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
