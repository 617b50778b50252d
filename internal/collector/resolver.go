// Package collector orchestrates batch collection runs: it resolves the
// configured targets, dispatches each one to its platform scraper, upserts
// the results, and keeps the run record current throughout.
package collector

import (
	"context"
	"fmt"

	"github.com/adscope/collector/internal/models"
)

// TargetStore is the part of the data layer the resolver needs.
type TargetStore interface {
	ListBrandTargets(ctx context.Context) ([]models.Target, error)
	ListMonitoredDomains(ctx context.Context) ([]models.Target, error)
}

// ResolveTargets decides what this run will scrape. A non-empty domain
// override forces a single legacy google-domain target. Otherwise active
// brand sources win; the legacy monitored-domains watchlist is only consulted
// when no brand sources exist at all. The legacy flag reports which path was
// taken.
func ResolveTargets(ctx context.Context, store TargetStore, domainOverride string) (targets []models.Target, legacy bool, err error) {
	if domainOverride != "" {
		return []models.Target{{
			Platform:    models.PlatformGoogle,
			SourceType:  models.SourceTypeDomain,
			SourceValue: domainOverride,
		}}, true, nil
	}

	targets, err = store.ListBrandTargets(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("resolve brand targets: %w", err)
	}
	if len(targets) > 0 {
		return targets, false, nil
	}

	targets, err = store.ListMonitoredDomains(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("resolve monitored domains: %w", err)
	}
	return targets, true, nil
}
