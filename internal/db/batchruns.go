package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adscope/collector/internal/models"
)

// CreateBatchRun inserts a new run row in the running state.
func (p *Postgres) CreateBatchRun(ctx context.Context, run *models.BatchRun) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO batch_runs
        (id, started_at, status, total_targets, trigger_type)
        VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.StartedAt, run.Status, run.TotalTargets, run.TriggerType)
	if err != nil {
		return fmt.Errorf("insert batch run: %w", err)
	}
	return nil
}

// UpdateBatchRun persists the run's current aggregates and per-target results.
// Called after every target so a crashed run still shows partial progress.
func (p *Postgres) UpdateBatchRun(ctx context.Context, run *models.BatchRun) error {
	results, err := json.Marshal(run.TargetResults)
	if err != nil {
		return fmt.Errorf("marshal target results: %w", err)
	}
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `UPDATE batch_runs SET
        total_targets = $1, total_ads_scraped = $2, total_ads_new = $3,
        total_ads_updated = $4, domain_results = $5, errors = $6
        WHERE id = $7`,
		run.TotalTargets, run.TotalAdsScraped, run.TotalAdsNew,
		run.TotalAdsUpdated, results, errs, run.ID)
	if err != nil {
		return fmt.Errorf("update batch run: %w", err)
	}
	return nil
}

// FinalizeBatchRun stamps the run's terminal status and finish time.
func (p *Postgres) FinalizeBatchRun(ctx context.Context, runID string, status models.BatchRunStatus, finishedAt time.Time) error {
	_, err := p.DB.ExecContext(ctx, `UPDATE batch_runs SET status = $1, finished_at = $2 WHERE id = $3`,
		status, finishedAt, runID)
	if err != nil {
		return fmt.Errorf("finalize batch run: %w", err)
	}
	return nil
}

// GetLatestBatchRun returns the most recently started run, or nil when no run
// has ever executed.
func (p *Postgres) GetLatestBatchRun(ctx context.Context) (*models.BatchRun, error) {
	var run models.BatchRun
	var finished sql.NullTime
	var results, errs []byte
	err := p.DB.QueryRowContext(ctx, `SELECT id, started_at, finished_at, status,
            total_targets, total_ads_scraped, total_ads_new, total_ads_updated,
            domain_results, errors, trigger_type
        FROM batch_runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&run.ID, &run.StartedAt, &finished, &run.Status,
			&run.TotalTargets, &run.TotalAdsScraped, &run.TotalAdsNew,
			&run.TotalAdsUpdated, &results, &errs, &run.TriggerType)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest batch run: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &run.TargetResults); err != nil {
			return nil, fmt.Errorf("parse target results: %w", err)
		}
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &run.Errors); err != nil {
			return nil, fmt.Errorf("parse errors: %w", err)
		}
	}
	return &run, nil
}
