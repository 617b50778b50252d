package observability

import "time"

// MockMetricsRegistry is a no-op implementation of MetricsRegistry for testing
type MockMetricsRegistry struct{}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementBatchRuns(trigger, mode string)                              {}
func (m *MockMetricsRegistry) IncrementTargetScrapes(platform, outcome string)                      {}
func (m *MockMetricsRegistry) RecordTargetScrapeDuration(platform string, duration time.Duration)   {}
func (m *MockMetricsRegistry) AddAdsUpserted(platform, result string, count int)                    {}
func (m *MockMetricsRegistry) AddAdsRejected(platform string, count int)                            {}
func (m *MockMetricsRegistry) IncrementSchedulerSkips()                                             {}
