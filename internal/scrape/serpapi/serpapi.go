// Package serpapi queries the Google Ads Transparency Center through the
// SerpAPI aggregation service, as an API alternative to browser scraping.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

const (
	defaultBaseURL = "https://serpapi.com/search"
	cacheTTL       = 5 * time.Minute
	maxPerRequest  = 100
)

// creative is one entry of SerpAPI's ad_creatives array.
type creative struct {
	AdCreativeID string `json:"ad_creative_id"`
	Advertiser   string `json:"advertiser"`
	AdvertiserID string `json:"advertiser_id"`
	Image        string `json:"image"`
	DetailsLink  string `json:"details_link"`
	Format       string `json:"format"`
	FirstShown   int64  `json:"first_shown"`
	LastShown    int64  `json:"last_shown"`
	TargetDomain string `json:"target_domain"`
}

type searchResponse struct {
	AdCreatives []creative `json:"ad_creatives"`
}

type cacheEntry struct {
	at   time.Time
	data []creative
}

// Client is a SerpAPI transparency-center client with a short in-memory
// response cache, since the orchestrator may hit the same keyword for
// several brands in one run.
type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client

	// CreativeFormat filters server side ("image", "video"); empty means all.
	CreativeFormat string

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

var _ scrape.Scraper = (*Client)(nil)

// New builds a Client.
func New(apiKey string) *Client {
	return &Client{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *Client) Platform() models.Platform { return models.PlatformGoogle }

// Scrape searches the transparency center by keyword. Text-format creatives
// are filtered out: SerpAPI returns no renderable content for them.
func (c *Client) Scrape(ctx context.Context, target models.Target, opts scrape.Options) ([]models.NormalizedAd, error) {
	limit := opts.MaxResults
	if limit <= 0 {
		limit = 25
	}
	raw, err := c.search(ctx, target.SourceValue, limit)
	if err != nil {
		return nil, err
	}

	batcher := scrape.NewBatcher(opts.OnBatch)
	for _, cr := range raw {
		ad := normalize(cr)
		if ad.Format == models.FormatText {
			continue
		}
		if err := batcher.Add(ctx, ad); err != nil {
			return nil, fmt.Errorf("batch callback: %w", err)
		}
	}
	return batcher.Finish(ctx)
}

func (c *Client) search(ctx context.Context, keyword string, limit int) ([]creative, error) {
	cacheKey := fmt.Sprintf("google:%s:%s:%d", keyword, c.CreativeFormat, limit)
	if data, ok := c.getCached(cacheKey); ok {
		zap.L().Debug("serpapi cache hit", zap.String("keyword", keyword))
		return data, nil
	}

	num := limit
	if num > maxPerRequest {
		num = maxPerRequest
	}
	params := url.Values{}
	params.Set("engine", "google_ads_transparency_center")
	params.Set("text", keyword)
	params.Set("api_key", c.APIKey)
	params.Set("num", strconv.Itoa(num))
	if c.CreativeFormat != "" {
		params.Set("creative_format", c.CreativeFormat)
	}

	resp, err := scrape.DoWithRetry(c.HTTP, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("serpapi request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	creatives := body.AdCreatives
	if len(creatives) > limit {
		creatives = creatives[:limit]
	}
	c.setCached(cacheKey, creatives)
	return creatives, nil
}

func (c *Client) getCached(key string) ([]creative, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.at) >= cacheTTL {
		delete(c.cache, key)
		return nil, false
	}
	return entry.data, true
}

func (c *Client) setCached(key string, data []creative) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{at: c.now(), data: data}
}

// normalize maps one SerpAPI creative onto the shared ad schema. Creatives
// without a native ID are fingerprinted from their canonical JSON.
func normalize(cr creative) models.NormalizedAd {
	raw, _ := json.Marshal(cr)

	sourceID := cr.AdCreativeID
	if sourceID == "" {
		sourceID = scrape.FingerprintJSON("google:serpapi:", map[string]interface{}{
			"advertiser":    cr.Advertiser,
			"image":         cr.Image,
			"details_link":  cr.DetailsLink,
			"target_domain": cr.TargetDomain,
		})
	}

	advertiser := cr.Advertiser
	if advertiser == "" {
		advertiser = "Unknown"
	}

	format := cr.Format
	switch format {
	case models.FormatText, models.FormatImage, models.FormatVideo:
	default:
		format = models.FormatImage
	}
	mediaType := models.MediaImage
	if format == models.FormatVideo {
		mediaType = models.MediaVideo
	}

	var start, end *time.Time
	if cr.FirstShown > 0 {
		t := time.Unix(cr.FirstShown, 0).UTC()
		start = &t
	}
	if cr.LastShown > 0 {
		t := time.Unix(cr.LastShown, 0).UTC()
		end = &t
	}

	landing := ""
	if cr.TargetDomain != "" {
		landing = cr.TargetDomain
		if !strings.HasPrefix(landing, "http") {
			landing = "https://" + landing
		}
	}

	return models.NormalizedAd{
		SourceID:         sourceID,
		Platform:         models.PlatformGoogle,
		Format:           format,
		AdvertiserName:   advertiser,
		AdvertiserHandle: cr.AdvertiserID,
		ThumbnailURL:     cr.Image,
		PreviewURL:       cr.DetailsLink,
		MediaType:        mediaType,
		StartDate:        start,
		EndDate:          end,
		LandingPageURL:   landing,
		Domain:           scrape.NormalizeDomain(cr.TargetDomain),
		RawData:          raw,
	}
}
