// Command collectord is the long-running collector daemon: it serves the HTTP
// API and fires scheduled batch runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/adscope/collector/internal/analytics"
	"github.com/adscope/collector/internal/api"
	"github.com/adscope/collector/internal/browser"
	"github.com/adscope/collector/internal/collector"
	"github.com/adscope/collector/internal/config"
	"github.com/adscope/collector/internal/db"
	"github.com/adscope/collector/internal/media"
	"github.com/adscope/collector/internal/observability"
	"github.com/adscope/collector/internal/scheduler"
	"github.com/adscope/collector/internal/scrape/google"
	"github.com/adscope/collector/internal/scrape/meta"
	"github.com/adscope/collector/internal/scrape/metagraph"
	"github.com/adscope/collector/internal/scrape/serpapi"
	"github.com/adscope/collector/internal/scrape/tiktok"
	"github.com/adscope/collector/internal/sinks"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLogger(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("collectord error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName,
			cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

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

	sched := scheduler.New(orch, cfg.BatchIncrementalHours, cfg.BatchFullDay, cfg.BatchFullHour)
	sched.LockTTL = cfg.RunLockTTL
	sched.Metrics = metricsRegistry

	srv := api.NewServer(logger, orch, pg, metricsRegistry)
	srv.LockTTL = cfg.RunLockTTL

	if cfg.RedisAddr != "" {
		store, err := db.InitRedis(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer store.Close()
		sched.Lock = store
		srv.Lock = store
	}

	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("collectord listening", zap.String("addr", httpSrv.Addr))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
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
