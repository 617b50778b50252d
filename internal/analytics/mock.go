package analytics

import (
	"context"
	"sync"

	"github.com/adscope/collector/internal/models"
)

var _ EventService = (*MockAnalytics)(nil)

// MockAnalytics is a mock implementation of EventService for testing. It
// retains recorded events so tests can assert on them.
type MockAnalytics struct {
	mu     sync.Mutex
	Events []CollectionEvent
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordTargetResult records a collection event (mock implementation)
func (m *MockAnalytics) RecordTargetResult(ctx context.Context, runID string, target models.Target, result models.TargetResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var brand *string
	if target.BrandName != "" {
		b := target.BrandName
		brand = &b
	}
	var scrapeErr *string
	if result.Error != "" {
		e := result.Error
		scrapeErr = &e
	}
	m.Events = append(m.Events, CollectionEvent{
		BatchRunID:      runID,
		BrandName:       brand,
		Platform:        string(target.Platform),
		SourceType:      target.SourceType,
		SourceValue:     target.SourceValue,
		AdsScraped:      int32(result.AdsScraped),
		AdsNew:          int32(result.AdsNew),
		AdsUpdated:      int32(result.AdsUpdated),
		DurationSeconds: result.DurationSeconds,
		Error:           scrapeErr,
	})
	return nil
}
