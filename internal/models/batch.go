package models

import "time"

// BatchRunStatus is the lifecycle state of one orchestration pass. A run
// never re-enters running after leaving it.
type BatchRunStatus string

const (
	RunStatusRunning   BatchRunStatus = "running"
	RunStatusCompleted BatchRunStatus = "completed"
	RunStatusFailed    BatchRunStatus = "failed"
)

// BatchRun is the accountability record for one orchestration pass. It is
// created on orchestrator entry, updated after every target so the run is
// inspectable mid-flight, and finalized on exit. Never deleted.
type BatchRun struct {
	ID              string                  `json:"id"`
	StartedAt       time.Time               `json:"started_at"`
	FinishedAt      *time.Time              `json:"finished_at,omitempty"`
	Status          BatchRunStatus          `json:"status"`
	TotalTargets    int                     `json:"total_targets"`
	TotalAdsScraped int                     `json:"total_ads_scraped"`
	TotalAdsNew     int                     `json:"total_ads_new"`
	TotalAdsUpdated int                     `json:"total_ads_updated"`
	TargetResults   map[string]TargetResult `json:"target_results"`
	Errors          []string                `json:"errors"`
	TriggerType     string                  `json:"trigger_type"`
}

// TargetResult is the per-target slice of a batch run.
type TargetResult struct {
	SourceID        string  `json:"source_id,omitempty"`
	Platform        string  `json:"platform"`
	SourceType      string  `json:"source_type"`
	SourceValue     string  `json:"source_value"`
	AdsScraped      int     `json:"ads_scraped"`
	AdsNew          int     `json:"ads_new"`
	AdsUpdated      int     `json:"ads_updated"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error,omitempty"`
}

// RunSummary is what RunBatch returns to its caller (the CLI or the HTTP
// trigger endpoint).
type RunSummary struct {
	BatchRunID      string                  `json:"batch_run_id,omitempty"`
	TriggerType     string                  `json:"trigger_type"`
	Mode            string                  `json:"mode"`
	Status          string                  `json:"status"`
	DryRun          bool                    `json:"dry_run,omitempty"`
	TotalTargets    int                     `json:"total_targets"`
	Targets         []string                `json:"targets,omitempty"`
	TotalAdsScraped int                     `json:"total_ads_scraped"`
	TotalAdsNew     int                     `json:"total_ads_new"`
	TotalAdsUpdated int                     `json:"total_ads_updated"`
	TargetResults   map[string]TargetResult `json:"target_results,omitempty"`
	Errors          []string                `json:"errors,omitempty"`
	StartedAt       time.Time               `json:"started_at"`
}
