// Package tiktok queries the TikTok Commercial Content API (ad library).
// The API currently serves EU data only; other regions may come back empty.
package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

const defaultBaseURL = "https://open.tiktokapis.com/v2/research/adlib/ad/query/"

type video struct {
	URL           string `json:"url"`
	CoverImageURL string `json:"cover_image_url"`
}

type image struct {
	URL string `json:"url"`
}

type adEntry struct {
	AdID           json.Number `json:"ad_id"`
	BusinessName   string      `json:"business_name"`
	AdText         string      `json:"ad_text"`
	Videos         []video     `json:"videos"`
	Images         []image     `json:"images"`
	FirstShownDate string      `json:"first_shown_date"`
	LastShownDate  string      `json:"last_shown_date"`
}

type queryResponse struct {
	Data struct {
		Ads []adEntry `json:"ads"`
	} `json:"data"`
}

// Client queries the ad library by ad-text keyword.
type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

var _ scrape.Scraper = (*Client)(nil)

// New builds a Client.
func New(apiKey string) *Client {
	return &Client{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Platform() models.Platform { return models.PlatformTikTok }

// Scrape searches ads whose text matches the target's source value.
func (c *Client) Scrape(ctx context.Context, target models.Target, opts scrape.Options) ([]models.NormalizedAd, error) {
	limit := opts.MaxResults
	if limit <= 0 {
		limit = 25
	}

	payload := map[string]interface{}{
		"filters": map[string]interface{}{
			"ad_text": map[string]interface{}{"values": []string{target.SourceValue}},
		},
		"max_count": limit,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	resp, err := scrape.DoWithRetry(c.HTTP, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("tiktok request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tiktok status %d", resp.StatusCode)
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	batcher := scrape.NewBatcher(opts.OnBatch)
	for _, entry := range out.Data.Ads {
		if err := batcher.Add(ctx, normalize(entry)); err != nil {
			return nil, fmt.Errorf("batch callback: %w", err)
		}
	}
	return batcher.Finish(ctx)
}

// normalize maps one library entry onto the shared ad schema. The first video
// wins over images; entries without a native ad ID are fingerprinted from
// their canonical JSON.
func normalize(entry adEntry) models.NormalizedAd {
	raw, _ := json.Marshal(entry)

	sourceID := entry.AdID.String()
	if sourceID == "" || sourceID == "0" {
		sourceID = scrape.FingerprintJSON("tiktok:", map[string]interface{}{
			"business_name": entry.BusinessName,
			"ad_text":       entry.AdText,
		})
	}

	advertiser := entry.BusinessName
	if advertiser == "" {
		advertiser = "Unknown"
	}

	mediaType := models.MediaImage
	thumbnail := ""
	preview := ""
	if len(entry.Videos) > 0 {
		mediaType = models.MediaVideo
		thumbnail = entry.Videos[0].CoverImageURL
		preview = entry.Videos[0].URL
	} else if len(entry.Images) > 0 {
		thumbnail = entry.Images[0].URL
		preview = thumbnail
	}

	return models.NormalizedAd{
		SourceID:       sourceID,
		Platform:       models.PlatformTikTok,
		Format:         mediaType,
		AdvertiserName: advertiser,
		ThumbnailURL:   thumbnail,
		PreviewURL:     preview,
		MediaType:      mediaType,
		AdCopy:         entry.AdText,
		StartDate:      parseDate(entry.FirstShownDate),
		EndDate:        parseDate(entry.LastShownDate),
		RawData:        raw,
	}
}

func parseDate(s string) *time.Time {
	if len(s) < 10 {
		return nil
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return nil
	}
	return &t
}
