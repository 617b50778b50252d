package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adscope/collector/internal/analytics"
	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/observability"
	"github.com/adscope/collector/internal/scrape"
	"github.com/adscope/collector/internal/sinks"
)

// Store is the data-layer surface the orchestrator drives.
type Store interface {
	TargetStore
	UpsertBatch(ctx context.Context, ads []models.NormalizedAd, brandID string) (models.UpsertStats, error)
	ListExistingCreativeIDs(ctx context.Context, platform models.Platform, domain string) (map[string]struct{}, error)
	ListExistingSourceIDs(ctx context.Context, platform models.Platform, brandID string) (map[string]struct{}, error)
	CreateBatchRun(ctx context.Context, run *models.BatchRun) error
	UpdateBatchRun(ctx context.Context, run *models.BatchRun) error
	FinalizeBatchRun(ctx context.Context, runID string, status models.BatchRunStatus, finishedAt time.Time) error
}

// ActivityRecorder is the activity-feed sink surface.
type ActivityRecorder interface {
	Record(ctx context.Context, eventType, subtype, title, message string, metadata map[string]interface{})
}

// StatsBumper is the daily-counters sink surface.
type StatsBumper interface {
	Bump(ctx context.Context, brandID, platform string, newCount, updatedCount int)
}

// MediaMirror re-hosts a creative URL and returns the stable replacement, or
// the input unchanged on failure.
type MediaMirror interface {
	MirrorURL(ctx context.Context, src string) string
}

// Params selects what one batch run does. Zero values mean: manual trigger,
// mode decided by the calendar, wet run, all configured targets.
type Params struct {
	TriggerType string
	// Mode is "full", "incremental", or empty for calendar-based selection.
	Mode string
	// DryRun resolves and reports the target list without scraping.
	DryRun bool
	// Domain, when set, restricts the run to one legacy google-domain target.
	Domain string
}

// Orchestrator executes batch collection runs.
type Orchestrator struct {
	Store    Store
	Dispatch *Dispatcher
	Activity ActivityRecorder
	Stats    StatsBumper
	Events   analytics.EventService
	Metrics  observability.MetricsRegistry
	Media    MediaMirror

	MaxResults    int
	ScrapeTimeout time.Duration
	// FullDay is the weekday on which calendar-selected runs go full.
	FullDay time.Weekday

	now func() time.Time
}

// New builds an Orchestrator with the required collaborators. Optional sinks
// (Activity, Stats, Events) are left nil and set by the caller.
func New(store Store, dispatch *Dispatcher, metrics observability.MetricsRegistry) *Orchestrator {
	return &Orchestrator{
		Store:      store,
		Dispatch:   dispatch,
		Metrics:    metrics,
		MaxResults: 30,
		FullDay:    time.Sunday,
		now:        time.Now,
	}
}

// RunBatch executes one collection pass over the resolved targets. A target
// failure is recorded and the run continues; the returned error covers only
// failures of the run machinery itself.
func (o *Orchestrator) RunBatch(ctx context.Context, params Params) (*models.RunSummary, error) {
	trigger := params.TriggerType
	if trigger == "" {
		trigger = "manual"
	}
	mode := o.selectMode(params.Mode)

	targets, legacy, err := ResolveTargets(ctx, o.Store, params.Domain)
	if err != nil {
		return nil, err
	}
	zap.L().Info("batch run starting",
		zap.String("trigger", trigger),
		zap.String("mode", string(mode)),
		zap.Bool("legacy_targets", legacy),
		zap.Int("targets", len(targets)))

	if params.DryRun {
		summary := &models.RunSummary{
			TriggerType:  trigger,
			Mode:         string(mode),
			Status:       "dry_run",
			DryRun:       true,
			TotalTargets: len(targets),
			StartedAt:    o.now().UTC(),
		}
		for _, t := range targets {
			summary.Targets = append(summary.Targets, t.Label())
		}
		return summary, nil
	}

	run := &models.BatchRun{
		ID:            uuid.NewString(),
		StartedAt:     o.now().UTC(),
		Status:        models.RunStatusRunning,
		TotalTargets:  len(targets),
		TargetResults: make(map[string]models.TargetResult),
		TriggerType:   trigger,
	}
	if err := o.Store.CreateBatchRun(ctx, run); err != nil {
		return nil, err
	}
	o.recordActivity(ctx, sinks.EventCollection, sinks.SubtypeBatchStarted,
		"Batch started",
		fmt.Sprintf("%d targets, %s mode", len(targets), mode),
		map[string]interface{}{"batch_run_id": run.ID, "trigger_type": trigger})

	for _, t := range targets {
		if ctx.Err() != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("[%s] run aborted: %v", t.Label(), ctx.Err()))
			break
		}
		result := o.runTarget(ctx, t, mode)
		o.applyResult(ctx, run, t, result)
	}

	status := models.RunStatusCompleted
	finishCtx := ctx
	if ctx.Err() != nil {
		// A cancelled run is failed regardless of what it scraped, and the
		// request context is already dead, so the terminal writes get a short
		// detached context or the row would stay running forever.
		status = models.RunStatusFailed
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := o.Store.UpdateBatchRun(finishCtx, run); err != nil {
			zap.L().Error("batch run update failed", zap.String("batch_run_id", run.ID), zap.Error(err))
		}
	} else if run.TotalAdsScraped == 0 && len(run.Errors) > 0 {
		status = models.RunStatusFailed
	}
	run.Status = status
	finishedAt := o.now().UTC()
	run.FinishedAt = &finishedAt
	if err := o.Store.FinalizeBatchRun(finishCtx, run.ID, status, finishedAt); err != nil {
		zap.L().Error("finalize batch run failed", zap.String("batch_run_id", run.ID), zap.Error(err))
	}
	o.recordActivity(finishCtx, sinks.EventCollection, sinks.SubtypeBatchCompleted,
		fmt.Sprintf("Batch completed: %d new, %d updated", run.TotalAdsNew, run.TotalAdsUpdated),
		"",
		map[string]interface{}{"batch_run_id": run.ID, "status": string(status)})
	if o.Metrics != nil {
		o.Metrics.IncrementBatchRuns(trigger, string(mode))
	}
	zap.L().Info("batch run finished",
		zap.String("batch_run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("ads_scraped", run.TotalAdsScraped),
		zap.Int("ads_new", run.TotalAdsNew),
		zap.Int("ads_updated", run.TotalAdsUpdated),
		zap.Int("errors", len(run.Errors)))

	return &models.RunSummary{
		BatchRunID:      run.ID,
		TriggerType:     trigger,
		Mode:            string(mode),
		Status:          string(status),
		TotalTargets:    run.TotalTargets,
		TotalAdsScraped: run.TotalAdsScraped,
		TotalAdsNew:     run.TotalAdsNew,
		TotalAdsUpdated: run.TotalAdsUpdated,
		TargetResults:   run.TargetResults,
		Errors:          run.Errors,
		StartedAt:       run.StartedAt,
	}, nil
}

// selectMode resolves the effective mode: explicit values win, otherwise the
// weekly full day gets a full walk and every other day is incremental.
func (o *Orchestrator) selectMode(requested string) scrape.Mode {
	switch requested {
	case string(scrape.ModeFull):
		return scrape.ModeFull
	case string(scrape.ModeIncremental):
		return scrape.ModeIncremental
	}
	if o.now().Weekday() == o.FullDay {
		return scrape.ModeFull
	}
	return scrape.ModeIncremental
}

// runTarget scrapes one target and upserts its ads batch by batch.
func (o *Orchestrator) runTarget(ctx context.Context, t models.Target, mode scrape.Mode) models.TargetResult {
	result := models.TargetResult{
		SourceID:    t.SourceID,
		Platform:    string(t.Platform),
		SourceType:  t.SourceType,
		SourceValue: t.SourceValue,
	}

	scraper, err := o.Dispatch.Pick(t)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	var stats models.UpsertStats
	opts := scrape.Options{
		MaxResults: o.MaxResults,
		Mode:       mode,
		KnownIDs:   o.knownIDs(ctx, t, mode),
		OnBatch: func(ctx context.Context, ads []models.NormalizedAd) error {
			for i := range ads {
				if ads[i].Domain == "" && t.SourceType == models.SourceTypeDomain {
					ads[i].Domain = scrape.NormalizeDomain(t.SourceValue)
				}
				if o.Media != nil && ads[i].ThumbnailURL != "" {
					ads[i].ThumbnailURL = o.Media.MirrorURL(ctx, ads[i].ThumbnailURL)
				}
			}
			s, err := o.Store.UpsertBatch(ctx, ads, t.BrandID)
			if err != nil {
				return err
			}
			stats.Add(s)
			if o.Metrics != nil {
				o.Metrics.AddAdsUpserted(string(t.Platform), "new", s.New)
				o.Metrics.AddAdsUpserted(string(t.Platform), "updated", s.Updated)
				o.Metrics.AddAdsRejected(string(t.Platform), s.Rejected)
			}
			return nil
		},
	}

	sctx := ctx
	if o.ScrapeTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, o.ScrapeTimeout)
		defer cancel()
	}

	start := o.now()
	ads, scrapeErr := scraper.Scrape(sctx, t, opts)
	result.DurationSeconds = o.now().Sub(start).Seconds()
	result.AdsScraped = len(ads)
	result.AdsNew = stats.New
	result.AdsUpdated = stats.Updated

	outcome := "success"
	if scrapeErr != nil {
		outcome = "error"
	}
	if o.Metrics != nil {
		o.Metrics.IncrementTargetScrapes(string(t.Platform), outcome)
		o.Metrics.RecordTargetScrapeDuration(string(t.Platform), time.Duration(result.DurationSeconds*float64(time.Second)))
	}
	if scrapeErr != nil {
		zap.L().Error("target scrape failed",
			zap.String("target", t.Label()),
			zap.String("platform", string(t.Platform)),
			zap.Error(scrapeErr))
		// Keep the typed error shape for the run-level error list.
		result.Error = fmt.Sprintf("%T: %v", scrapeErr, scrapeErr)
	} else {
		zap.L().Info("target scraped",
			zap.String("target", t.Label()),
			zap.Int("ads_scraped", result.AdsScraped),
			zap.Int("ads_new", result.AdsNew),
			zap.Int("ads_updated", result.AdsUpdated),
			zap.Float64("duration_seconds", result.DurationSeconds))
	}
	return result
}

// knownIDs loads the already-stored identifiers an incremental scrape can
// stop on. Load failures degrade the scrape to full-walk behavior.
func (o *Orchestrator) knownIDs(ctx context.Context, t models.Target, mode scrape.Mode) map[string]struct{} {
	if mode != scrape.ModeIncremental {
		return nil
	}
	var (
		ids map[string]struct{}
		err error
	)
	switch {
	case t.Platform == models.PlatformGoogle && t.SourceType == models.SourceTypeDomain:
		ids, err = o.Store.ListExistingCreativeIDs(ctx, t.Platform, scrape.NormalizeDomain(t.SourceValue))
	case t.Platform == models.PlatformMeta || t.Platform == models.PlatformInstagram:
		ids, err = o.Store.ListExistingSourceIDs(ctx, t.Platform, t.BrandID)
	default:
		return nil
	}
	if err != nil {
		zap.L().Warn("known-id load failed, scraping without early stop",
			zap.String("target", t.Label()), zap.Error(err))
		return nil
	}
	return ids
}

// applyResult folds one target's result into the run record, emits the
// activity and analytics events, and persists the run's progress.
func (o *Orchestrator) applyResult(ctx context.Context, run *models.BatchRun, t models.Target, result models.TargetResult) {
	label := t.Label()
	run.TargetResults[label] = result
	run.TotalAdsScraped += result.AdsScraped
	run.TotalAdsNew += result.AdsNew
	run.TotalAdsUpdated += result.AdsUpdated

	if result.Error != "" {
		run.Errors = append(run.Errors, fmt.Sprintf("[%s] %s", label, result.Error))
		o.recordActivity(ctx, sinks.EventCollection, sinks.SubtypeBatchFailed,
			"Scrape failed: "+label, result.Error,
			map[string]interface{}{"batch_run_id": run.ID, "platform": string(t.Platform)})
	} else if result.AdsNew > 0 {
		who := t.BrandName
		if who == "" {
			who = t.SourceValue
		}
		o.recordActivity(ctx, sinks.EventAdChange, sinks.SubtypeNewAdsFound,
			fmt.Sprintf("%d new ads from %s", result.AdsNew, who), "",
			map[string]interface{}{
				"batch_run_id": run.ID,
				"platform":     string(t.Platform),
				"brand_id":     t.BrandID,
			})
	}
	if o.Stats != nil && t.BrandID != "" && result.AdsNew+result.AdsUpdated > 0 {
		o.Stats.Bump(ctx, t.BrandID, string(t.Platform), result.AdsNew, result.AdsUpdated)
	}
	if o.Events != nil {
		if err := o.Events.RecordTargetResult(ctx, run.ID, t, result); err != nil && err != analytics.ErrUnavailable {
			zap.L().Warn("analytics event failed", zap.String("target", label), zap.Error(err))
		}
	}
	if err := o.Store.UpdateBatchRun(ctx, run); err != nil {
		zap.L().Error("batch run update failed", zap.String("batch_run_id", run.ID), zap.Error(err))
	}
}

func (o *Orchestrator) recordActivity(ctx context.Context, eventType, subtype, title, message string, metadata map[string]interface{}) {
	if o.Activity != nil {
		o.Activity.Record(ctx, eventType, subtype, title, message, metadata)
	}
}
