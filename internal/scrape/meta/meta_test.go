package meta

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/collector/internal/browser"
	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

// fakeBrowser hands out one scripted page.
type fakeBrowser struct {
	page *fakePage
}

func (b *fakeBrowser) NewPage(context.Context) (browser.Page, error) { return b.page, nil }
func (b *fakeBrowser) Close()                                        {}

// fakePage scripts the feed: each scroll grows the page height until the
// feed is exhausted, and extraction returns whatever has "loaded" so far.
type fakePage struct {
	ads       []rawAd
	perScroll int
	maxHeight int

	scrolls   int
	navigated []string
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	return nil
}
func (p *fakePage) WaitVisible(context.Context, string) error { return nil }
func (p *fakePage) Click(context.Context, string) error {
	return context.DeadlineExceeded // no cookie banner
}
func (p *fakePage) Fill(context.Context, string, string) error { return nil }

func (p *fakePage) Evaluate(_ context.Context, expr string, out interface{}) error {
	switch {
	case strings.Contains(expr, "scrollTo"):
		p.scrolls++
		return nil
	case expr == "document.body.scrollHeight":
		h := 1000 + p.scrolls*500
		if h > p.maxHeight {
			h = p.maxHeight
		}
		*(out.(*int)) = h
		return nil
	default:
		// extraction script: return what has loaded so far
		loaded := p.perScroll * (p.scrolls + 1)
		if loaded > len(p.ads) {
			loaded = len(p.ads)
		}
		*(out.(*[]rawAd)) = p.ads[:loaded]
		return nil
	}
}

func (p *fakePage) Content(context.Context) (string, error)        { return "", nil }
func (p *fakePage) Text(context.Context, string) (string, error)   { return "", nil }
func (p *fakePage) Frames(context.Context) ([]browser.Frame, error) { return nil, nil }
func (p *fakePage) Close()                                          {}

func feedAds(n int) []rawAd {
	ads := make([]rawAd, n)
	for i := range ads {
		ads[i] = rawAd{
			AdvertiserName: "Acme",
			ContentURL:     "https://scontent.fbcdn.net/v/t39/ad-" + string(rune('a'+i)) + ".jpg",
		}
	}
	return ads
}

func newFeedScraper(page *fakePage) *Scraper {
	s := New(&fakeBrowser{page: page}, "KR")
	s.sleep = func(time.Duration) {}
	s.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestKeywordURL(t *testing.T) {
	s := newFeedScraper(&fakePage{})
	u := s.keywordURL("acme widgets")

	assert.Contains(t, u, "country=KR")
	assert.Contains(t, u, "q=acme+widgets")
	assert.Contains(t, u, "active_status=active")
	assert.Contains(t, u, "start_date[min]=2026-05-24")
	assert.Contains(t, u, "start_date[max]=2026-08-24")
}

func TestPageIDURL(t *testing.T) {
	s := newFeedScraper(&fakePage{})
	u := s.pageIDURL("987654")

	assert.Contains(t, u, "view_all_page_id=987654")
	assert.Contains(t, u, "search_type=page")
}

func TestScrape_FullWalk(t *testing.T) {
	page := &fakePage{ads: feedAds(6), perScroll: 2, maxHeight: 3000}
	s := newFeedScraper(page)

	ads, err := s.Scrape(context.Background(), models.Target{
		Platform:    models.PlatformMeta,
		SourceType:  models.SourceTypeKeyword,
		SourceValue: "acme",
	}, scrape.Options{MaxResults: 4})
	require.NoError(t, err)

	assert.Len(t, ads, 4) // capped at MaxResults
	assert.Equal(t, models.PlatformMeta, ads[0].Platform)
	require.Len(t, page.navigated, 1)
	assert.Contains(t, page.navigated[0], "facebook.com/ads/library")
}

func TestScrape_IncrementalStopsOnKnownAd(t *testing.T) {
	feed := feedAds(30)
	known := map[string]struct{}{
		MakeSourceID(feed[2].AdvertiserName, feed[2].ContentURL): {},
	}

	page := &fakePage{ads: feed, perScroll: 1, maxHeight: 1 << 20}
	s := newFeedScraper(page)

	_, err := s.Scrape(context.Background(), models.Target{
		Platform:    models.PlatformMeta,
		SourceType:  models.SourceTypeKeyword,
		SourceValue: "acme",
	}, scrape.Options{
		MaxResults: 100,
		Mode:       scrape.ModeIncremental,
		KnownIDs:   known,
	})
	require.NoError(t, err)

	// the known ad loads by the first incremental sample (3rd scroll),
	// well short of the 20-scroll budget
	assert.Equal(t, 3, page.scrolls)
}

func TestScrape_StopsWhenFeedExhausted(t *testing.T) {
	// height stops growing after the second scroll
	page := &fakePage{ads: feedAds(4), perScroll: 2, maxHeight: 2000}
	s := newFeedScraper(page)

	ads, err := s.Scrape(context.Background(), models.Target{
		SourceType:  models.SourceTypeKeyword,
		SourceValue: "acme",
	}, scrape.Options{MaxResults: 100})
	require.NoError(t, err)

	assert.Len(t, ads, 4)
	assert.LessOrEqual(t, page.scrolls, 3)
}
