// Package scheduler fires batch runs on a wall-clock cadence: an incremental
// pass every few hours and one full catalog walk per week.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adscope/collector/internal/collector"
	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/observability"
	"github.com/adscope/collector/internal/scrape"
)

// Runner executes one batch run.
type Runner interface {
	RunBatch(ctx context.Context, params collector.Params) (*models.RunSummary, error)
}

// RunLock serializes runs across collector replicas.
type RunLock interface {
	AcquireRunLock(ctx context.Context, token string, ttl time.Duration) (bool, error)
	ReleaseRunLock(ctx context.Context, token string) error
}

// Scheduler evaluates the cadence at every top of the hour and triggers runs.
// With no RunLock configured it falls back to an in-process guard, which is
// enough for a single replica.
type Scheduler struct {
	Runner  Runner
	Lock    RunLock
	LockTTL time.Duration
	Metrics observability.MetricsRegistry

	// IncrementalEvery is the incremental cadence in hours.
	IncrementalEvery int
	FullDay          time.Weekday
	FullHour         int

	now func() time.Time

	mu      sync.Mutex
	running bool
}

// New builds a Scheduler with the given cadence.
func New(runner Runner, incrementalEvery int, fullDay time.Weekday, fullHour int) *Scheduler {
	if incrementalEvery <= 0 {
		incrementalEvery = 4
	}
	return &Scheduler{
		Runner:           runner,
		IncrementalEvery: incrementalEvery,
		FullDay:          fullDay,
		FullHour:         fullHour,
		LockTTL:          2 * time.Hour,
		now:              time.Now,
	}
}

// Run blocks until ctx is done, evaluating the cadence at every hour boundary.
func (s *Scheduler) Run(ctx context.Context) error {
	zap.L().Info("scheduler started",
		zap.Int("incremental_every_hours", s.IncrementalEvery),
		zap.String("full_day", s.FullDay.String()),
		zap.Int("full_hour", s.FullHour))
	for {
		next := s.now().Truncate(time.Hour).Add(time.Hour)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next.Sub(s.now())):
		}
		s.Tick(ctx, next)
	}
}

// Tick evaluates the cadence for one hour boundary and runs when due.
func (s *Scheduler) Tick(ctx context.Context, at time.Time) {
	mode := s.modeFor(at)
	if mode == "" {
		return
	}

	token := uuid.NewString()
	acquired, release := s.acquire(ctx, token)
	if !acquired {
		if s.Metrics != nil {
			s.Metrics.IncrementSchedulerSkips()
		}
		zap.L().Info("scheduler tick skipped, run already in flight", zap.String("mode", mode))
		return
	}
	defer release()

	summary, err := s.Runner.RunBatch(ctx, collector.Params{TriggerType: "scheduled", Mode: mode})
	if err != nil {
		zap.L().Error("scheduled run failed", zap.String("mode", mode), zap.Error(err))
		return
	}
	zap.L().Info("scheduled run finished",
		zap.String("mode", mode),
		zap.String("status", summary.Status),
		zap.Int("ads_new", summary.TotalAdsNew))
}

// modeFor maps an hour boundary onto a run mode: the weekly full slot wins,
// then the incremental cadence, otherwise nothing is due.
func (s *Scheduler) modeFor(at time.Time) string {
	if at.Weekday() == s.FullDay && at.Hour() == s.FullHour {
		return string(scrape.ModeFull)
	}
	if at.Hour()%s.IncrementalEvery == 0 {
		return string(scrape.ModeIncremental)
	}
	return ""
}

// acquire claims the run lock, distributed when configured, in-process
// otherwise. The returned release is a no-op when acquisition failed.
func (s *Scheduler) acquire(ctx context.Context, token string) (bool, func()) {
	if s.Lock != nil {
		ok, err := s.Lock.AcquireRunLock(ctx, token, s.LockTTL)
		if err != nil {
			zap.L().Warn("run lock acquire failed, falling back to local guard", zap.Error(err))
			return s.acquireLocal()
		}
		if !ok {
			return false, func() {}
		}
		return true, func() {
			if err := s.Lock.ReleaseRunLock(ctx, token); err != nil {
				zap.L().Warn("run lock release failed", zap.Error(err))
			}
		}
	}
	return s.acquireLocal()
}

func (s *Scheduler) acquireLocal() (bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false, func() {}
	}
	s.running = true
	return true, func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}
}
