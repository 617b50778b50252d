// Package sinks holds the secondary write paths fed by collection runs:
// the activity feed and the per-brand daily counters. Both are best-effort;
// a failed sink write never fails the run.
package sinks

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/adscope/collector/internal/db"
)

// Activity event types.
const (
	EventCollection = "collection"
	EventAdChange   = "ad_change"
)

// Activity event subtypes.
const (
	SubtypeBatchStarted   = "batch_started"
	SubtypeBatchCompleted = "batch_completed"
	SubtypeBatchFailed    = "batch_failed"
	SubtypeNewAdsFound    = "new_ads_found"
)

// ActivityLog appends events to the activity feed.
type ActivityLog struct {
	pg *db.Postgres
}

// NewActivityLog builds an ActivityLog.
func NewActivityLog(pg *db.Postgres) *ActivityLog {
	return &ActivityLog{pg: pg}
}

// Record appends one event. Failures are logged and swallowed.
func (a *ActivityLog) Record(ctx context.Context, eventType, subtype, title, message string, metadata map[string]interface{}) {
	if a == nil || a.pg == nil {
		return
	}
	var meta []byte
	if metadata != nil {
		meta, _ = json.Marshal(metadata)
	}
	_, err := a.pg.DB.ExecContext(ctx, `
		INSERT INTO activity_logs (event_type, event_subtype, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		eventType, nullIfEmpty(subtype), title, nullIfEmpty(message), nullIfNilBytes(meta))
	if err != nil {
		zap.L().Warn("activity log write failed",
			zap.String("event_type", eventType),
			zap.String("subtype", subtype),
			zap.Error(err))
	}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfNilBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
