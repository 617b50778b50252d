package google

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

// walkBrowser hands out one scripted page.
type walkBrowser struct {
	page *walkPage
}

func (b *walkBrowser) NewPage(context.Context) (browser.Page, error) { return b.page, nil }
func (b *walkBrowser) Close()                                        {}

// walkPage scripts a domain walk: a listing with creative links, and per
// creative the variants its detail page would yield. The evaluate dispatch
// keys on distinctive fragments of each script.
type walkPage struct {
	links       []string
	variants    map[string][]variant
	advertiser  string
	textFormat  bool
	adText      string
	pageLanding string

	current    string
	navigated  []string
	detailNavs int
	scrolls    int
}

func (p *walkPage) Navigate(_ context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	p.current = url
	if strings.Contains(url, "/creative/") {
		p.detailNavs++
	}
	return nil
}
func (p *walkPage) WaitVisible(context.Context, string) error { return nil }
func (p *walkPage) Click(context.Context, string) error {
	return context.DeadlineExceeded // no expansion button
}
func (p *walkPage) Fill(context.Context, string, string) error { return nil }

func (p *walkPage) Evaluate(_ context.Context, expr string, out interface{}) error {
	switch {
	case strings.Contains(expr, "scrollTo"):
		p.scrolls++
		return nil
	case strings.HasSuffix(expr, ".length"):
		*(out.(*int)) = len(p.links)
		return nil
	case strings.Contains(expr, "getAttribute('href')"):
		*(out.(*[]string)) = p.links
		return nil
	case strings.Contains(expr, "creative-sub-container"):
		*(out.(*[]variant)) = p.variants[extractCreativeIDFromLink(p.current)]
		return nil
	case strings.Contains(expr, "test(bodyText)"):
		*(out.(*bool)) = p.textFormat
		return nil
	case strings.Contains(expr, "Destination"):
		*(out.(*string)) = p.pageLanding
		return nil
	case strings.Contains(expr, "ad-container"):
		*(out.(*string)) = p.adText
		return nil
	}
	return nil
}

func (p *walkPage) Content(context.Context) (string, error) { return "", nil }
func (p *walkPage) Text(context.Context, string) (string, error) {
	return p.advertiser, nil
}
func (p *walkPage) Frames(context.Context) ([]browser.Frame, error) { return nil, nil }
func (p *walkPage) Close()                                          {}

func newWalkScraper(page *walkPage) *Scraper {
	s := New(&walkBrowser{page: page}, "KR")
	s.sleep = func(time.Duration) {}
	s.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	return s
}

func domainTarget(value string) models.Target {
	return models.Target{
		Platform:    models.PlatformGoogle,
		SourceType:  models.SourceTypeDomain,
		SourceValue: value,
	}
}

func TestScrapeDomain_FullWalk(t *testing.T) {
	page := &walkPage{
		links: []string{
			"/advertiser/AR01/creative/CR100",
			"/advertiser/AR01/creative/CR200",
		},
		variants: map[string][]variant{
			"CR100": {{
				ContentURL: "https://tpc.googlesyndication.com/simgad/100",
				AnchorHref: "https://example.com/a",
			}},
			"CR200": {{
				ContentURL: "https://tpc.googlesyndication.com/simgad/200",
				AnchorHref: "https://example.com/b",
			}},
		},
		advertiser: "Acme",
	}
	s := newWalkScraper(page)

	ads, err := s.Scrape(context.Background(), domainTarget("Example.COM"), scrape.Options{MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, ads, 2)

	// mixed-case input lands on the listing as the bare lowercase domain
	require.NotEmpty(t, page.navigated)
	assert.Contains(t, page.navigated[0], "domain=example.com")

	// one detail visit per creative
	assert.Equal(t, 2, page.detailNavs)

	first := ads[0]
	assert.Equal(t, "CR100", first.CreativeID)
	assert.Equal(t, models.PlatformGoogle, first.Platform)
	assert.Equal(t, "Acme", first.AdvertiserName)
	assert.Equal(t, models.MediaImage, first.MediaType)
	assert.Equal(t, "https://example.com/a", first.LandingPageURL)
	assert.Equal(t, "example.com", first.Domain)
	assert.Equal(t, "CR200", ads[1].CreativeID)
}

func TestScrapeDomain_IncrementalSkipsKnown(t *testing.T) {
	page := &walkPage{
		links: []string{
			"/advertiser/AR01/creative/CR100",
			"/advertiser/AR01/creative/CR200",
		},
		advertiser: "Acme",
	}
	s := newWalkScraper(page)

	ads, err := s.Scrape(context.Background(), domainTarget("example.com"), scrape.Options{
		MaxResults: 10,
		Mode:       scrape.ModeIncremental,
		KnownIDs:   map[string]struct{}{"CR100": {}, "CR200": {}},
	})
	require.NoError(t, err)

	// every listed creative is already known: no detail page gets visited
	assert.Empty(t, ads)
	assert.Equal(t, 0, page.detailNavs)
}

func TestScrapeDomain_IncrementalVisitsOnlyFresh(t *testing.T) {
	page := &walkPage{
		links: []string{
			"/advertiser/AR01/creative/CR100",
			"/advertiser/AR01/creative/CR200",
		},
		variants: map[string][]variant{
			"CR200": {{
				ContentURL: "https://tpc.googlesyndication.com/simgad/200",
				AnchorHref: "https://example.com/b",
			}},
		},
		advertiser: "Acme",
	}
	s := newWalkScraper(page)

	ads, err := s.Scrape(context.Background(), domainTarget("example.com"), scrape.Options{
		MaxResults: 10,
		Mode:       scrape.ModeIncremental,
		KnownIDs:   map[string]struct{}{"CR100": {}},
	})
	require.NoError(t, err)

	require.Len(t, ads, 1)
	assert.Equal(t, "CR200", ads[0].CreativeID)
	assert.Equal(t, 1, page.detailNavs)
}

func TestScrapeDomain_TextFallback(t *testing.T) {
	page := &walkPage{
		links:      []string{"/advertiser/AR01/creative/CR300"},
		advertiser: "Acme",
		textFormat: true,
		adText:     "Best widgets in town",
	}
	s := newWalkScraper(page)

	ads, err := s.Scrape(context.Background(), domainTarget("example.com"), scrape.Options{MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, ads, 1)

	ad := ads[0]
	assert.Equal(t, "CR300", ad.CreativeID)
	assert.Equal(t, models.FormatText, ad.Format)
	assert.Equal(t, models.MediaText, ad.MediaType)
	assert.Equal(t, "Best widgets in town", ad.AdCopy)
	assert.NotEmpty(t, ad.SourceID)
}
