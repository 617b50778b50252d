package sinks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adscope/collector/internal/db"
)

// DailyStats maintains the per-brand per-platform daily counters. Counts are
// additive across runs on the same day, so a full run after an incremental
// one keeps accumulating rather than overwriting.
type DailyStats struct {
	pg *db.Postgres
}

// NewDailyStats builds a DailyStats sink.
func NewDailyStats(pg *db.Postgres) *DailyStats {
	return &DailyStats{pg: pg}
}

// Bump adds the given counts to today's row for (brand, platform). Failures
// are logged and swallowed.
func (d *DailyStats) Bump(ctx context.Context, brandID, platform string, newCount, updatedCount int) {
	if d == nil || d.pg == nil || brandID == "" {
		return
	}
	statDate := time.Now().UTC().Format("2006-01-02")
	_, err := d.pg.DB.ExecContext(ctx, `
		INSERT INTO daily_brand_stats (brand_id, stat_date, platform, new_count, updated_count, total_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (brand_id, stat_date, platform) DO UPDATE SET
			new_count = daily_brand_stats.new_count + EXCLUDED.new_count,
			updated_count = daily_brand_stats.updated_count + EXCLUDED.updated_count,
			total_count = daily_brand_stats.total_count + EXCLUDED.total_count`,
		brandID, statDate, platform, newCount, updatedCount, newCount+updatedCount)
	if err != nil {
		zap.L().Warn("daily stats write failed",
			zap.String("brand_id", brandID),
			zap.String("platform", platform),
			zap.Error(err))
	}
}
