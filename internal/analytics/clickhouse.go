package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/adscope/collector/internal/models"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// EventService records per-target collection events. Implementations should
// handle cases where underlying storage is unavailable by returning
// ErrUnavailable.
type EventService interface {
	// RecordTargetResult records one target's outcome within a batch run.
	RecordTargetResult(ctx context.Context, runID string, target models.Target, result models.TargetResult) error
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB *sql.DB
}

// CollectionEvent mirrors a row in the collection_events table.
type CollectionEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	BatchRunID      string    `json:"batch_run_id"`
	BrandName       *string   `json:"brand_name"`
	Platform        string    `json:"platform"`
	SourceType      string    `json:"source_type"`
	SourceValue     string    `json:"source_value"`
	AdsScraped      int32     `json:"ads_scraped"`
	AdsNew          int32     `json:"ads_new"`
	AdsUpdated      int32     `json:"ads_updated"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           *string   `json:"error"`
}

// InitClickHouse connects to ClickHouse and ensures the collection_events
// table exists.
func InitClickHouse(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS collection_events (
       timestamp        DateTime,
       batch_run_id     String,
       brand_name       Nullable(String),
       platform         String,
       source_type      String,
       source_value     String,
       ads_scraped      Int32,
       ads_new          Int32,
       ads_updated      Int32,
       duration_seconds Float64,
       error            Nullable(String)
   ) ENGINE=MergeTree() ORDER BY (platform, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db}, nil
}

// RecordTargetResult inserts a single collection event row.
func (a *Analytics) RecordTargetResult(ctx context.Context, runID string, target models.Target, result models.TargetResult) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	var brand sql.NullString
	if target.BrandName != "" {
		brand.String = target.BrandName
		brand.Valid = true
	}
	var scrapeErr sql.NullString
	if result.Error != "" {
		scrapeErr.String = result.Error
		scrapeErr.Valid = true
	}
	stmt := `INSERT INTO collection_events (timestamp, batch_run_id, brand_name, platform, source_type, source_value, ads_scraped, ads_new, ads_updated, duration_seconds, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, time.Now(), runID, brand,
		string(target.Platform), target.SourceType, target.SourceValue,
		int32(result.AdsScraped), int32(result.AdsNew), int32(result.AdsUpdated),
		result.DurationSeconds, scrapeErr); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("batch_run_id", runID))
		return fmt.Errorf("insert collection event: %w", err)
	}
	return nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
