package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// so components take metrics by dependency injection instead of touching
// the global Prometheus vectors directly.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Batch run metrics
	IncrementBatchRuns(trigger, mode string)
	IncrementTargetScrapes(platform, outcome string)
	RecordTargetScrapeDuration(platform string, duration time.Duration)

	// Upsert metrics. Count-based since upserts land in batches.
	AddAdsUpserted(platform, result string, count int)
	AddAdsRejected(platform string, count int)

	// Scheduler metrics
	IncrementSchedulerSkips()
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementBatchRuns(trigger, mode string) {
	BatchRunCount.WithLabelValues(trigger, mode).Inc()
}

func (r *PrometheusRegistry) IncrementTargetScrapes(platform, outcome string) {
	TargetScrapeCount.WithLabelValues(platform, outcome).Inc()
}

func (r *PrometheusRegistry) RecordTargetScrapeDuration(platform string, duration time.Duration) {
	TargetScrapeDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) AddAdsUpserted(platform, result string, count int) {
	AdsUpsertedCount.WithLabelValues(platform, result).Add(float64(count))
}

func (r *PrometheusRegistry) AddAdsRejected(platform string, count int) {
	AdsRejectedCount.WithLabelValues(platform).Add(float64(count))
}

func (r *PrometheusRegistry) IncrementSchedulerSkips() {
	SchedulerSkipCount.Inc()
}
