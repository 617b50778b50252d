package db

import (
	"context"
	"fmt"

	"github.com/adscope/collector/internal/models"
)

// ListBrandTargets returns all active sources of active brands as resolved
// targets, ordered by brand name then platform so run output is stable.
func (p *Postgres) ListBrandTargets(ctx context.Context) ([]models.Target, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT bs.id, bs.brand_id, b.brand_name,
            bs.platform, bs.source_type, bs.source_value
        FROM brand_sources bs
        JOIN brands b ON b.id = bs.brand_id
        WHERE b.is_active AND bs.is_active
        ORDER BY b.brand_name, bs.platform`)
	if err != nil {
		return nil, fmt.Errorf("query brand sources: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var targets []models.Target
	for rows.Next() {
		var t models.Target
		if err := rows.Scan(&t.SourceID, &t.BrandID, &t.BrandName, &t.Platform, &t.SourceType, &t.SourceValue); err != nil {
			return nil, fmt.Errorf("scan brand source: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return targets, nil
}

// ListMonitoredDomains returns the legacy domain watchlist as targets,
// oldest first. Used only when no brand sources are configured.
func (p *Postgres) ListMonitoredDomains(ctx context.Context) ([]models.Target, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT domain, platform FROM monitored_domains
        WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query monitored domains: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var targets []models.Target
	for rows.Next() {
		var domain string
		var platform models.Platform
		if err := rows.Scan(&domain, &platform); err != nil {
			return nil, fmt.Errorf("scan monitored domain: %w", err)
		}
		targets = append(targets, models.Target{
			Platform:    platform,
			SourceType:  models.SourceTypeDomain,
			SourceValue: domain,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return targets, nil
}
