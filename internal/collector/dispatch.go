package collector

import (
	"fmt"

	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

// Dispatcher maps a target to the scraper that will serve it. Any slot may be
// nil when its platform is not configured (missing API key, no browser).
type Dispatcher struct {
	// Google is the transparency-center browser scraper (domain + keyword).
	Google scrape.Scraper
	// SerpAPI serves google keyword targets when configured; cheaper and more
	// reliable than driving the search UI through a browser.
	SerpAPI scrape.Scraper
	// Meta is the Ad Library browser scraper (keyword + page ID).
	Meta scrape.Scraper
	// MetaGraph is the ads_archive API fallback when no browser is available.
	MetaGraph scrape.Scraper
	// TikTok is the Commercial Content API client.
	TikTok scrape.Scraper
}

// Pick selects the scraper for one target.
func (d *Dispatcher) Pick(t models.Target) (scrape.Scraper, error) {
	switch t.Platform {
	case models.PlatformGoogle:
		if t.SourceType == models.SourceTypeKeyword && d.SerpAPI != nil {
			return d.SerpAPI, nil
		}
		if d.Google != nil {
			return d.Google, nil
		}
	case models.PlatformMeta, models.PlatformInstagram:
		if d.Meta != nil {
			return d.Meta, nil
		}
		if d.MetaGraph != nil {
			return d.MetaGraph, nil
		}
	case models.PlatformTikTok:
		if d.TikTok != nil {
			return d.TikTok, nil
		}
	}
	return nil, fmt.Errorf("no scraper configured for platform %q", t.Platform)
}
