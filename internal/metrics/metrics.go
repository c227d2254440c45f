package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Provider metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookworm_provider_requests_total",
			Help: "Remote provider requests by provider and outcome",
		},
		[]string{"provider", "outcome"}, // "ok", "error", "rejected"
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookworm_provider_request_duration_seconds",
			Help:    "Duration of remote provider requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ProviderCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookworm_provider_cache_hits_total",
			Help: "Provider responses served from the response cache",
		},
		[]string{"provider"},
	)

	ProviderCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookworm_provider_cache_misses_total",
			Help: "Provider requests that missed the response cache",
		},
		[]string{"provider"},
	)

	ProviderBreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookworm_provider_breaker_open",
			Help: "1 while a provider's circuit breaker is open",
		},
		[]string{"provider"},
	)

	// Pipeline metrics
	ReleasesSnatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookworm_releases_snatched_total",
			Help: "Releases accepted by the download client",
		},
	)

	ReleasesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookworm_releases_processed_total",
			Help: "Completed downloads moved into the library",
		},
	)

	PostProcessFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookworm_postprocess_failures_total",
			Help: "Staged downloads that failed post-processing",
		},
	)

	BooksMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookworm_books_merged_total",
			Help: "Catalog books merged into the library",
		},
		[]string{"result"}, // "created", "updated"
	)

	// Scheduler metrics
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookworm_job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookworm_job_duration_seconds",
			Help:    "Duration of scheduled job runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		},
		[]string{"job"},
	)
)

// Outcome returns the outcome label for err.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveProviderRequest records one remote call.
func ObserveProviderRequest(provider string, start time.Time, err error) {
	ProviderRequests.WithLabelValues(provider, Outcome(err)).Inc()
	ProviderRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// ObserveJob records one scheduled job run.
func ObserveJob(job string, start time.Time, err error) {
	JobRuns.WithLabelValues(job, Outcome(err)).Inc()
	JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
