package serpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New("test-key")
	c.BaseURL = srv.URL
	return c, srv
}

func TestScrape_NormalizesCreatives(t *testing.T) {
	var gotQuery map[string]string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"engine":  q.Get("engine"),
			"text":    q.Get("text"),
			"api_key": q.Get("api_key"),
		}
		_ = json.NewEncoder(w).Encode(searchResponse{AdCreatives: []creative{
			{
				AdCreativeID: "CR111",
				Advertiser:   "Acme",
				Image:        "https://serpapi.test/img.png",
				Format:       "image",
				FirstShown:   1700000000,
				TargetDomain: "example.com",
			},
			{
				Advertiser: "NoID Inc",
				Image:      "https://serpapi.test/img2.png",
				Format:     "video",
			},
			{
				AdCreativeID: "CR222",
				Format:       "text",
			},
		}})
	})
	defer srv.Close()

	ads, err := c.Scrape(context.Background(), models.Target{
		Platform:    models.PlatformGoogle,
		SourceType:  models.SourceTypeKeyword,
		SourceValue: "widgets",
	}, scrape.Options{MaxResults: 10})
	require.NoError(t, err)

	assert.Equal(t, "google_ads_transparency_center", gotQuery["engine"])
	assert.Equal(t, "widgets", gotQuery["text"])
	assert.Equal(t, "test-key", gotQuery["api_key"])

	// text creatives are dropped
	require.Len(t, ads, 2)

	assert.Equal(t, "CR111", ads[0].SourceID)
	assert.Equal(t, models.PlatformGoogle, ads[0].Platform)
	assert.Equal(t, models.MediaImage, ads[0].MediaType)
	assert.Equal(t, "https://example.com", ads[0].LandingPageURL)
	assert.Equal(t, "example.com", ads[0].Domain)
	require.NotNil(t, ads[0].StartDate)
	assert.Equal(t, int64(1700000000), ads[0].StartDate.Unix())

	// missing native ID gets fingerprinted
	assert.NotEmpty(t, ads[1].SourceID)
	assert.Equal(t, models.MediaVideo, ads[1].MediaType)
}

func TestScrape_CachesResponses(t *testing.T) {
	calls := 0
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(searchResponse{AdCreatives: []creative{
			{AdCreativeID: "CR1", Advertiser: "A", Image: "https://x/i.png", Format: "image"},
		}})
	})
	defer srv.Close()

	target := models.Target{SourceValue: "widgets"}
	_, err := c.Scrape(context.Background(), target, scrape.Options{MaxResults: 5})
	require.NoError(t, err)
	_, err = c.Scrape(context.Background(), target, scrape.Options{MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// cache expires
	c.now = func() time.Time { return time.Now().Add(cacheTTL + time.Second) }
	_, err = c.Scrape(context.Background(), target, scrape.Options{MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestScrape_StatusError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer srv.Close()

	_, err := c.Scrape(context.Background(), models.Target{SourceValue: "x"}, scrape.Options{})
	assert.ErrorContains(t, err, "serpapi status 401")
}

func TestScrape_RetriesThrottledRequest(t *testing.T) {
	calls := 0
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(searchResponse{AdCreatives: []creative{
			{AdCreativeID: "CR1", Advertiser: "A", Image: "https://x/i.png", Format: "image"},
		}})
	})
	defer srv.Close()

	ads, err := c.Scrape(context.Background(), models.Target{SourceValue: "widgets"}, scrape.Options{MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, ads, 1)
	assert.Equal(t, "CR1", ads[0].SourceID)
}

func TestSearch_TruncatesToLimit(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		var many []creative
		for i := 0; i < 40; i++ {
			many = append(many, creative{AdCreativeID: "CR", Advertiser: "A"})
		}
		_ = json.NewEncoder(w).Encode(searchResponse{AdCreatives: many})
	})
	defer srv.Close()

	got, err := c.search(context.Background(), "kw", 7)
	require.NoError(t, err)
	assert.Len(t, got, 7)
}
