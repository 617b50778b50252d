package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/collector/internal/collector"
	"github.com/adscope/collector/internal/db"
	"github.com/adscope/collector/internal/models"
)

type countingRunner struct {
	calls []collector.Params
}

func (c *countingRunner) RunBatch(_ context.Context, params collector.Params) (*models.RunSummary, error) {
	c.calls = append(c.calls, params)
	return &models.RunSummary{Status: "completed"}, nil
}

type countingMetrics struct {
	skips int
}

func (m *countingMetrics) IncrementRequests(string, string, string)            {}
func (m *countingMetrics) RecordRequestLatency(string, string, time.Duration)  {}
func (m *countingMetrics) IncrementBatchRuns(string, string)                   {}
func (m *countingMetrics) IncrementTargetScrapes(string, string)               {}
func (m *countingMetrics) RecordTargetScrapeDuration(string, time.Duration)    {}
func (m *countingMetrics) AddAdsUpserted(string, string, int)                  {}
func (m *countingMetrics) AddAdsRejected(string, int)                          {}
func (m *countingMetrics) IncrementSchedulerSkips()                            { m.skips++ }

func newRedisStore(t *testing.T) *db.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
}

func TestModeFor(t *testing.T) {
	s := New(&countingRunner{}, 4, time.Sunday, 3)

	sundayFullHour := time.Date(2026, 8, 23, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "full", s.modeFor(sundayFullHour))

	wednesdayAligned := time.Date(2026, 8, 19, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "incremental", s.modeFor(wednesdayAligned))

	wednesdayOff := time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC)
	assert.Empty(t, s.modeFor(wednesdayOff))

	// on the full day, hours outside the full slot stay incremental
	sundayNoon := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "incremental", s.modeFor(sundayNoon))
}

func TestTick_RunsWhenDue(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, 4, time.Sunday, 3)
	s.Lock = newRedisStore(t)

	s.Tick(context.Background(), time.Date(2026, 8, 19, 8, 0, 0, 0, time.UTC))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "scheduled", runner.calls[0].TriggerType)
	assert.Equal(t, "incremental", runner.calls[0].Mode)

	// lock released, a later tick runs again
	s.Tick(context.Background(), time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC))
	assert.Len(t, runner.calls, 2)
}

func TestTick_SkipsOffCadenceHours(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, 4, time.Sunday, 3)

	s.Tick(context.Background(), time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC))
	assert.Empty(t, runner.calls)
}

func TestTick_SkipsWhenLockHeld(t *testing.T) {
	runner := &countingRunner{}
	metrics := &countingMetrics{}
	store := newRedisStore(t)

	// another replica holds the lock
	held, err := store.AcquireRunLock(context.Background(), "other-replica", time.Hour)
	require.NoError(t, err)
	require.True(t, held)

	s := New(runner, 4, time.Sunday, 3)
	s.Lock = store
	s.Metrics = metrics

	s.Tick(context.Background(), time.Date(2026, 8, 19, 8, 0, 0, 0, time.UTC))

	assert.Empty(t, runner.calls)
	assert.Equal(t, 1, metrics.skips)
}

func TestAcquireLocal(t *testing.T) {
	s := New(&countingRunner{}, 4, time.Sunday, 3)

	ok, release := s.acquireLocal()
	require.True(t, ok)

	again, _ := s.acquireLocal()
	assert.False(t, again)

	release()
	ok, release = s.acquireLocal()
	assert.True(t, ok)
	release()
}

func TestReleaseRunLock_OnlyOwner(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	held, err := store.AcquireRunLock(ctx, "owner", time.Hour)
	require.NoError(t, err)
	require.True(t, held)

	// a stranger's release leaves the lock in place
	require.NoError(t, store.ReleaseRunLock(ctx, "stranger"))
	held, err = store.AcquireRunLock(ctx, "late", time.Hour)
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, store.ReleaseRunLock(ctx, "owner"))
	held, err = store.AcquireRunLock(ctx, "late", time.Hour)
	require.NoError(t, err)
	assert.True(t, held)
}
