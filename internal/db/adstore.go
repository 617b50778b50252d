package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/adscope/collector/internal/models"
)

// upsertAdSQL writes one normalized ad. The (source_id, platform) pair is the
// row identity; on conflict the mutable fields are refreshed, creative_id and
// brand_id only ever gain a value, and saved_at is bumped so "recently seen"
// queries keep working. xmax = 0 distinguishes an insert from a conflict
// update within the same statement.
const upsertAdSQL = `INSERT INTO ads (
        source_id, platform, format, advertiser_name, advertiser_handle,
        advertiser_avatar_url, thumbnail_url, preview_url, media_type, ad_copy,
        cta_text, likes, comments, shares, start_date, end_date, tags,
        landing_page_url, domain, creative_id, brand_id, raw_data)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
    ON CONFLICT (source_id, platform) DO UPDATE SET
        advertiser_name = EXCLUDED.advertiser_name,
        thumbnail_url = EXCLUDED.thumbnail_url,
        preview_url = EXCLUDED.preview_url,
        ad_copy = EXCLUDED.ad_copy,
        cta_text = EXCLUDED.cta_text,
        end_date = EXCLUDED.end_date,
        raw_data = EXCLUDED.raw_data,
        landing_page_url = EXCLUDED.landing_page_url,
        domain = EXCLUDED.domain,
        creative_id = COALESCE(EXCLUDED.creative_id, ads.creative_id),
        brand_id = COALESCE(EXCLUDED.brand_id, ads.brand_id),
        updated_at = NOW(),
        saved_at = NOW()
    RETURNING (xmax = 0) AS is_new`

// UpsertBatch writes a batch of normalized ads. Rows that fail validation are
// counted as rejected and skipped; rows that fail at the database are logged
// and skipped. Neither aborts the rest of the batch. brandID, when non-empty,
// is applied to ads that do not already carry one.
func (p *Postgres) UpsertBatch(ctx context.Context, ads []models.NormalizedAd, brandID string) (models.UpsertStats, error) {
	var stats models.UpsertStats
	for i := range ads {
		ad := &ads[i]
		if ad.BrandID == "" {
			ad.BrandID = brandID
		}
		if err := validateAd(ad); err != nil {
			stats.Rejected++
			zap.L().Warn("ad rejected",
				zap.String("platform", string(ad.Platform)),
				zap.String("source_id", ad.SourceID),
				zap.Error(err))
			continue
		}
		isNew, err := p.upsertAd(ctx, ad)
		if err != nil {
			stats.Rejected++
			zap.L().Error("ad upsert failed",
				zap.String("platform", string(ad.Platform)),
				zap.String("source_id", ad.SourceID),
				zap.Error(err))
			continue
		}
		stats.Total++
		if isNew {
			stats.New++
		} else {
			stats.Updated++
		}
	}
	return stats, nil
}

func (p *Postgres) upsertAd(ctx context.Context, ad *models.NormalizedAd) (bool, error) {
	var rawData interface{}
	if len(ad.RawData) > 0 {
		rawData = []byte(ad.RawData)
	}
	var isNew bool
	err := p.DB.QueryRowContext(ctx, upsertAdSQL,
		ad.SourceID, ad.Platform, nullStr(ad.Format), nullStr(ad.AdvertiserName),
		nullStr(ad.AdvertiserHandle), nullStr(ad.AdvertiserAvatarURL),
		nullStr(ad.ThumbnailURL), nullStr(ad.PreviewURL), nullStr(ad.MediaType),
		nullStr(ad.AdCopy), nullStr(ad.CTAText), ad.Likes, ad.Comments, ad.Shares,
		nullTime(ad.StartDate), nullTime(ad.EndDate), pq.Array(ad.Tags),
		nullStr(ad.LandingPageURL), nullStr(ad.Domain), nullStr(ad.CreativeID),
		nullStr(ad.BrandID), rawData,
	).Scan(&isNew)
	if err != nil {
		return false, fmt.Errorf("upsert ad: %w", err)
	}
	return isNew, nil
}

// validateAd rejects rows that would be unrenderable: no source identity, or
// no thumbnail on anything but a text ad.
func validateAd(ad *models.NormalizedAd) error {
	if ad.SourceID == "" {
		return fmt.Errorf("empty source_id")
	}
	if ad.Platform == "" {
		return fmt.Errorf("empty platform")
	}
	if ad.ThumbnailURL == "" && !ad.IsText() {
		return fmt.Errorf("empty thumbnail_url on non-text ad")
	}
	return nil
}

// ListExistingCreativeIDs returns the set of known transparency-center
// creative IDs for a domain, used by incremental scrapes to stop early. The
// domain match tolerates a www. prefix and falls back to a landing-page
// substring match for legacy rows saved without a domain.
func (p *Postgres) ListExistingCreativeIDs(ctx context.Context, platform models.Platform, domain string) (map[string]struct{}, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT creative_id FROM ads
        WHERE platform = $1 AND creative_id IS NOT NULL
          AND (REPLACE(domain, 'www.', '') = $2
               OR (domain IS NULL AND landing_page_url LIKE '%' || $2 || '%'))`,
		platform, domain)
	if err != nil {
		return nil, fmt.Errorf("query creative ids: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan creative id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

// ListExistingSourceIDs returns the set of known source IDs for a platform,
// optionally scoped to one brand. Incremental Ad Library scrapes sample
// against it to stop scrolling once only known creatives remain.
func (p *Postgres) ListExistingSourceIDs(ctx context.Context, platform models.Platform, brandID string) (map[string]struct{}, error) {
	query := `SELECT source_id FROM ads WHERE platform = $1`
	args := []interface{}{platform}
	if brandID != "" {
		query += ` AND brand_id = $2`
		args = append(args, brandID)
	}
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query source ids: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
