// Package metagraph queries the Meta Graph API ads_archive endpoint, the
// official API counterpart to browser-scraping the Ad Library. It needs an
// access token from an app with Ad Library API access.
package metagraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v23.0/ads_archive"
	maxPages       = 10

	archiveFields = "id,page_id,page_name,ad_creative_bodies,ad_creative_link_titles," +
		"ad_snapshot_url,ad_delivery_start_time,ad_delivery_stop_time"
)

type archiveAd struct {
	ID                   string   `json:"id"`
	PageID               string   `json:"page_id"`
	PageName             string   `json:"page_name"`
	AdCreativeBodies     []string `json:"ad_creative_bodies"`
	AdCreativeLinkTitles []string `json:"ad_creative_link_titles"`
	AdSnapshotURL        string   `json:"ad_snapshot_url"`
	AdDeliveryStartTime  string   `json:"ad_delivery_start_time"`
	AdDeliveryStopTime   string   `json:"ad_delivery_stop_time"`
}

type archiveResponse struct {
	Data   []archiveAd `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Client pages through ads_archive for one search term or page ID.
type Client struct {
	AccessToken string
	BaseURL     string
	Country     string
	HTTP        *http.Client
}

var _ scrape.Scraper = (*Client)(nil)

// New builds a Client. country is the two-letter reached-countries filter.
func New(accessToken, country string) *Client {
	if country == "" {
		country = "KR"
	}
	return &Client{
		AccessToken: accessToken,
		BaseURL:     defaultBaseURL,
		Country:     country,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Platform() models.Platform { return models.PlatformMeta }

// Scrape searches the archive. Page-ID targets filter by search_page_ids,
// everything else goes through search_terms. Follows paging cursors until the
// limit is reached.
func (c *Client) Scrape(ctx context.Context, target models.Target, opts scrape.Options) ([]models.NormalizedAd, error) {
	limit := opts.MaxResults
	if limit <= 0 {
		limit = 25
	}

	params := url.Values{}
	params.Set("access_token", c.AccessToken)
	params.Set("ad_reached_countries", `["`+c.Country+`"]`)
	params.Set("ad_active_status", "ACTIVE")
	params.Set("fields", archiveFields)
	params.Set("limit", strconv.Itoa(min(limit, 100)))
	if target.SourceType == models.SourceTypePageID {
		params.Set("search_page_ids", target.SourceValue)
	} else {
		params.Set("search_terms", target.SourceValue)
	}

	batcher := scrape.NewBatcher(opts.OnBatch)
	next := c.BaseURL + "?" + params.Encode()
	for page := 0; next != "" && batcher.Len() < limit && page < maxPages; page++ {
		body, err := c.fetch(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, entry := range body.Data {
			if batcher.Len() >= limit {
				break
			}
			if err := batcher.Add(ctx, normalize(entry)); err != nil {
				return nil, fmt.Errorf("batch callback: %w", err)
			}
		}
		next = body.Paging.Next
	}
	return batcher.Finish(ctx)
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*archiveResponse, error) {
	resp, err := scrape.DoWithRetry(c.HTTP, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("graph request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var body archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Error != nil {
		return nil, fmt.Errorf("graph error %d: %s", body.Error.Code, body.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph status %d", resp.StatusCode)
	}
	return &body, nil
}

// normalize maps one archive entry onto the shared ad schema. The archive
// exposes no creative media, only a snapshot URL, so entries normalize as
// text ads with the snapshot as preview.
func normalize(entry archiveAd) models.NormalizedAd {
	raw, _ := json.Marshal(entry)

	sourceID := entry.ID
	if sourceID == "" {
		sourceID = scrape.FingerprintJSON("meta:graph:", map[string]interface{}{
			"page_id":      entry.PageID,
			"snapshot_url": entry.AdSnapshotURL,
		})
	}

	advertiser := entry.PageName
	if advertiser == "" {
		advertiser = "Unknown"
	}

	adCopy := ""
	if len(entry.AdCreativeBodies) > 0 {
		adCopy = entry.AdCreativeBodies[0]
	}
	cta := ""
	if len(entry.AdCreativeLinkTitles) > 0 {
		cta = entry.AdCreativeLinkTitles[0]
	}

	return models.NormalizedAd{
		SourceID:         sourceID,
		Platform:         models.PlatformMeta,
		Format:           models.FormatText,
		AdvertiserName:   advertiser,
		AdvertiserHandle: entry.PageID,
		PreviewURL:       entry.AdSnapshotURL,
		MediaType:        models.MediaImage,
		AdCopy:           adCopy,
		CTAText:          cta,
		StartDate:        parseArchiveTime(entry.AdDeliveryStartTime),
		EndDate:          parseArchiveTime(entry.AdDeliveryStopTime),
		RawData:          raw,
	}
}

// parseArchiveTime accepts both the date-only and the full timestamp shapes
// the Graph API emits.
func parseArchiveTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-0700", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
