// Command collector runs one batch collection pass and exits. Intended for
// cron, CI, and manual invocations; the long-running daemon is collectord.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/adscope/collector/internal/analytics"
	"github.com/adscope/collector/internal/browser"
	"github.com/adscope/collector/internal/collector"
	"github.com/adscope/collector/internal/config"
	"github.com/adscope/collector/internal/db"
	"github.com/adscope/collector/internal/media"
	"github.com/adscope/collector/internal/observability"
	"github.com/adscope/collector/internal/scrape/google"
	"github.com/adscope/collector/internal/scrape/meta"
	"github.com/adscope/collector/internal/scrape/metagraph"
	"github.com/adscope/collector/internal/scrape/serpapi"
	"github.com/adscope/collector/internal/scrape/tiktok"
	"github.com/adscope/collector/internal/sinks"
)

func main() {
	domain := flag.String("domain", "", "scrape a single domain instead of the configured targets")
	dryRun := flag.Bool("dry-run", false, "resolve and print the target list without scraping")
	triggerType := flag.String("trigger-type", "manual", "trigger type recorded on the run")
	mode := flag.String("mode", "", "run mode: full, incremental, or empty for calendar-based")
	flag.Parse()

	cfg := config.Load()

	logger, err := observability.InitLogger(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(logger, cfg, collector.Params{
		TriggerType: *triggerType,
		Mode:        *mode,
		DryRun:      *dryRun,
		Domain:      *domain,
	}); err != nil {
		logger.Error("collector error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config, params collector.Params) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns,
		cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	orch := collector.New(pg, buildDispatcher(cfg), metricsRegistry)
	orch.Activity = sinks.NewActivityLog(pg)
	orch.Stats = sinks.NewDailyStats(pg)
	orch.MaxResults = cfg.ScrapeMaxResults
	orch.ScrapeTimeout = cfg.ScrapeTimeout
	orch.FullDay = cfg.BatchFullDay

	if cfg.ClickHouseDSN != "" {
		events, err := analytics.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns,
			cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime)
		if err != nil {
			logger.Warn("clickhouse unavailable, continuing without analytics", zap.Error(err))
		} else {
			defer events.Close()
			orch.Events = events
		}
	}
	if cfg.AWSAccessKeyID != "" && cfg.S3Bucket != "" {
		mirror, err := media.NewS3Mirror(ctx, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey,
			cfg.AWSRegion, cfg.S3Bucket, cfg.S3KeyPrefix)
		if err != nil {
			logger.Warn("s3 mirror unavailable, keeping original media URLs", zap.Error(err))
		} else {
			orch.Media = mirror
		}
	}

	summary, err := orch.RunBatch(ctx, params)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// buildDispatcher wires every platform that has credentials or a browser
// available. Nil slots fail at dispatch time with a per-target error rather
// than up front, so partial configurations still run.
func buildDispatcher(cfg config.Config) *collector.Dispatcher {
	chrome := browser.NewChrome(cfg.ScrapeHeadless)
	d := &collector.Dispatcher{
		Google: google.New(chrome, cfg.ScrapeRegion),
		Meta:   meta.New(chrome, cfg.ScrapeRegion),
	}
	if cfg.SerpAPIKey != "" {
		d.SerpAPI = serpapi.New(cfg.SerpAPIKey)
	}
	if cfg.TikTokAPIKey != "" {
		d.TikTok = tiktok.New(cfg.TikTokAPIKey)
	}
	if cfg.MetaAccessToken != "" {
		d.MetaGraph = metagraph.New(cfg.MetaAccessToken, cfg.ScrapeRegion)
	}
	return d
}
