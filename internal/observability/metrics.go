package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total HTTP requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collector_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// batch runs started, labelled by trigger type and mode
	BatchRunCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_batch_runs_total",
			Help: "Total batch runs started",
		},
		[]string{"trigger", "mode"},
	)

	// per-target scrape outcomes, labelled by platform and outcome
	TargetScrapeCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_target_scrapes_total",
			Help: "Total per-target scrapes, by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	// per-target scrape duration in seconds
	TargetScrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collector_target_scrape_duration_seconds",
			Help:    "Duration of per-target scrapes",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"platform"},
	)

	// ads upserted, labelled by platform and whether the row was new
	AdsUpsertedCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_ads_upserted_total",
			Help: "Total ads upserted, by platform and result",
		},
		[]string{"platform", "result"},
	)

	// ads rejected before upsert, labelled by platform
	AdsRejectedCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_ads_rejected_total",
			Help: "Total ads rejected by validation",
		},
		[]string{"platform"},
	)

	// scheduler ticks skipped because a run was already in flight
	SchedulerSkipCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_scheduler_skips_total",
			Help: "Total scheduler ticks skipped due to an in-flight run",
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		BatchRunCount,
		TargetScrapeCount,
		TargetScrapeDuration,
		AdsUpsertedCount,
		AdsRejectedCount,
		SchedulerSkipCount,
	)
}
