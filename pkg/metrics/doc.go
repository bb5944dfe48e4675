/*
Package metrics defines and registers the swarm's Prometheus metrics and
a small health-check registry shared by every process.

# Metrics

Registered at package init via a single MustRegister call, grouped by
concern:

  - Tick lifecycle: TickDuration, TicksTotal.
  - Resolution: ResolveErrorsTotal, ResolveSkippedTotal (labelled by role).
  - Commit: CommitsTotal (labelled by role and outcome), CommitDuration.
  - Chooser: ChooserDrawsTotal (labelled by drawn key), ChooserNoCandidateTotal.
  - Scraper memoization: ScraperIntentsMemoizedTotal, ScraperIntentsGeneratedTotal.
  - Version sync: VersionSyncDuration, VersionSyncFailuresTotal (labelled
    by repository), TrackedRepositories.
  - Blade install: InstallsTotal (labelled by module and outcome), InstallDuration.
  - Monitor ingestion: MonitorLogsIngestedTotal (labelled by host and level).

Handler() returns the promhttp handler mounted at /metrics by every
blade process.

# Timer

Timer wraps a prometheus.Histogram or HistogramVec start time; NewTimer
starts one, ObserveDuration/ObserveDurationVec record the elapsed time
at the end of an operation. Used around every tick, commit, and install;
the version sync times itself with prometheus.NewTimer instead.

# Health

HealthChecker tracks a named set of components (e.g. "topology",
"version_store") and their current status, exposed via HealthHandler
(overall component health), ReadyHandler (readiness, which additionally
requires the critical components to be registered and healthy), and
LivenessHandler (always 200 while the process runs). RegisterComponent/UpdateComponent
let any package report its own status without importing net/http.
*/
package metrics
