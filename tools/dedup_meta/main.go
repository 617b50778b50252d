// Command dedup_meta consolidates duplicate Meta ads saved before source IDs
// ignored fbcdn query params. The same creative used to land under a new
// source ID every scrape because its signed CDN URL changed; this tool
// regroups rows by advertiser plus content-URL path, keeps the oldest row
// under the path-based source ID, and deletes the rest.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/adscope/collector/internal/config"
	"github.com/adscope/collector/internal/db"
	"github.com/adscope/collector/internal/observability"
	"github.com/adscope/collector/internal/scrape/meta"
)

type adRow struct {
	id         string
	sourceID   string
	advertiser string
	previewURL string
}

func main() {
	dryRun := flag.Bool("dry-run", false, "report what would change without writing")
	flag.Parse()

	cfg := config.Load()
	logger, err := observability.InitLogger("dedup-meta")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(cfg, *dryRun); err != nil {
		logger.Error("dedup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, dryRun bool) error {
	ctx := context.Background()
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns,
		cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	groups, err := loadGroups(ctx, pg.DB)
	if err != nil {
		return err
	}

	var keepers, deletions int
	for canonicalID, rows := range groups {
		if len(rows) == 0 {
			continue
		}
		keeper := rows[0]
		dupes := rows[1:]
		if keeper.sourceID == canonicalID && len(dupes) == 0 {
			continue
		}
		keepers++
		deletions += len(dupes)

		if dryRun {
			zap.L().Info("would consolidate",
				zap.String("canonical_source_id", canonicalID),
				zap.String("keeper_id", keeper.id),
				zap.Int("duplicates", len(dupes)))
			continue
		}
		if err := consolidate(ctx, pg.DB, canonicalID, keeper, dupes); err != nil {
			return err
		}
	}

	zap.L().Info("dedup finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("groups_touched", keepers),
		zap.Int("rows_deleted", deletions))
	return nil
}

// loadGroups buckets every meta ad by its canonical path-based source ID,
// oldest row first within each bucket.
func loadGroups(ctx context.Context, d *sql.DB) (map[string][]adRow, error) {
	rows, err := d.QueryContext(ctx, `SELECT id, source_id,
	        COALESCE(advertiser_name, ''), COALESCE(preview_url, '')
	    FROM ads WHERE platform = 'meta' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query meta ads: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	groups := make(map[string][]adRow)
	for rows.Next() {
		var r adRow
		if err := rows.Scan(&r.id, &r.sourceID, &r.advertiser, &r.previewURL); err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		if r.previewURL == "" {
			continue
		}
		canonical := meta.MakeSourceID(r.advertiser, r.previewURL)
		groups[canonical] = append(groups[canonical], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return groups, nil
}

// consolidate deletes the duplicates, then moves the keeper onto the
// canonical source ID. Delete-first so the unique index never conflicts.
func consolidate(ctx context.Context, d *sql.DB, canonicalID string, keeper adRow, dupes []adRow) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, dupe := range dupes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ads WHERE id = $1`, dupe.id); err != nil {
			return fmt.Errorf("delete duplicate %s: %w", dupe.id, err)
		}
	}
	if keeper.sourceID != canonicalID {
		if _, err := tx.ExecContext(ctx,
			`UPDATE ads SET source_id = $1, updated_at = NOW() WHERE id = $2`,
			canonicalID, keeper.id); err != nil {
			return fmt.Errorf("rewrite keeper %s: %w", keeper.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
