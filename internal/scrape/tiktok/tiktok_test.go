package tiktok

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New("test-token")
	c.BaseURL = srv.URL
	return c, srv
}

func TestScrape_QueryAndNormalize(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]interface{}
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(`{"data":{"ads":[
			{"ad_id":123456,"business_name":"Acme","ad_text":"Great widgets",
			 "videos":[{"url":"https://t.test/v.mp4","cover_image_url":"https://t.test/cover.jpg"}],
			 "first_shown_date":"2026-01-15","last_shown_date":"2026-02-01"},
			{"business_name":"","ad_text":"Image only",
			 "images":[{"url":"https://t.test/img.jpg"}]}
		]}}`))
	})
	defer srv.Close()

	ads, err := c.Scrape(context.Background(), models.Target{
		Platform:    models.PlatformTikTok,
		SourceType:  models.SourceTypeKeyword,
		SourceValue: "widgets",
	}, scrape.Options{MaxResults: 10})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	filters := gotPayload["filters"].(map[string]interface{})
	adText := filters["ad_text"].(map[string]interface{})
	assert.Equal(t, []interface{}{"widgets"}, adText["values"].([]interface{}))
	assert.Equal(t, float64(10), gotPayload["max_count"])

	require.Len(t, ads, 2)

	video := ads[0]
	assert.Equal(t, "123456", video.SourceID)
	assert.Equal(t, models.PlatformTikTok, video.Platform)
	assert.Equal(t, models.MediaVideo, video.MediaType)
	assert.Equal(t, "https://t.test/cover.jpg", video.ThumbnailURL)
	assert.Equal(t, "https://t.test/v.mp4", video.PreviewURL)
	assert.Equal(t, "Acme", video.AdvertiserName)
	require.NotNil(t, video.StartDate)
	assert.Equal(t, "2026-01-15", video.StartDate.Format("2006-01-02"))

	img := ads[1]
	assert.NotEmpty(t, img.SourceID) // fingerprinted, no native ID
	assert.Equal(t, models.MediaImage, img.MediaType)
	assert.Equal(t, "https://t.test/img.jpg", img.ThumbnailURL)
	assert.Equal(t, "Unknown", img.AdvertiserName)
	assert.Nil(t, img.StartDate)
}

func TestScrape_StatusError(t *testing.T) {
	calls := 0
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := c.Scrape(context.Background(), models.Target{SourceValue: "x"}, scrape.Options{})
	assert.ErrorContains(t, err, "tiktok status 429")
	// one retry before giving up
	assert.Equal(t, 2, calls)
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
		_, _ = w.Write([]byte(`{"data":{"ads":[
			{"ad_id":77,"business_name":"Acme","ad_text":"hi",
			 "images":[{"url":"https://t.test/i.jpg"}]}
		]}}`))
	})
	defer srv.Close()

	ads, err := c.Scrape(context.Background(), models.Target{SourceValue: "x"}, scrape.Options{MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, ads, 1)
	assert.Equal(t, "77", ads[0].SourceID)
}

func TestParseDate(t *testing.T) {
	assert.Nil(t, parseDate(""))
	assert.Nil(t, parseDate("bad"))
	got := parseDate("2026-03-02T00:00:00Z")
	require.NotNil(t, got)
	assert.Equal(t, "2026-03-02", got.Format("2006-01-02"))
}
