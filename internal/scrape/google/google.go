// Package google scrapes the Google Ads Transparency Center by driving a
// real browser: the center is a JS application with no public API, and its
// creatives render inside nested (often cross-origin) frames.
package google

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adscope/collector/internal/browser"
	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

const (
	baseHost = "https://adstransparency.google.com"

	// scroll loop bounds
	scrollWallClock      = 5 * time.Minute
	maxScrollsBounded    = 15
	maxScrollsUnlimited  = 100
	noNewScrollsToStop   = 3
	detailPanelTimeout   = 5 * time.Second
	detailContentTimeout = 5 * time.Second
)

// adContentSelector matches any of the content shapes worth waiting for on a
// detail page before walking its variants.
const adContentSelector = `creative-details img[src*="simgad"], creative-details iframe[src*="youtube"], creative-details iframe[src*="sadbundle"]`

// Scraper drives the transparency center through a browser.Browser.
type Scraper struct {
	Browser        browser.Browser
	Region         string
	MaxAdvertisers int

	// overridable in tests
	sleep func(time.Duration)
	now   func() time.Time
}

var _ scrape.Scraper = (*Scraper)(nil)

// New builds a Scraper pinned to a region (e.g. "KR").
func New(b browser.Browser, region string) *Scraper {
	return &Scraper{
		Browser:        b,
		Region:         region,
		MaxAdvertisers: 3,
		sleep:          time.Sleep,
		now:            time.Now,
	}
}

func (s *Scraper) Platform() models.Platform { return models.PlatformGoogle }

// Scrape dispatches on the target's source type: domains walk the domain
// listing, keywords walk the advertiser search dropdown.
func (s *Scraper) Scrape(ctx context.Context, target models.Target, opts scrape.Options) ([]models.NormalizedAd, error) {
	if target.SourceType == models.SourceTypeKeyword {
		return s.scrapeKeyword(ctx, target.SourceValue, opts)
	}
	return s.scrapeDomain(ctx, target.SourceValue, opts)
}

func (s *Scraper) scrapeDomain(ctx context.Context, domain string, opts scrape.Options) ([]models.NormalizedAd, error) {
	domain = scrape.NormalizeDomain(domain)
	unlimited := opts.MaxResults <= 0
	log := zap.L().With(zap.String("platform", "google"), zap.String("domain", domain))
	log.Info("domain scrape starting", zap.String("mode", string(opts.Mode)))

	page, err := s.Browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	listURL := baseHost + "/?region=" + s.Region + "&domain=" + domain
	navCtx, cancel := context.WithTimeout(ctx, time.Minute)
	err = page.Navigate(navCtx, listURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("open domain listing: %w", err)
	}
	s.sleep(5 * time.Second)

	// Best effort: small result sets hide most ads behind a "See all ads"
	// expansion button.
	clickCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := page.Click(clickCtx, "material-button.grid-expansion-button"); err == nil {
		log.Info("expanded ad grid")
		s.sleep(3 * time.Second)
	}
	cancel()

	if err := s.scrollListing(ctx, page, opts.MaxResults, unlimited, log); err != nil {
		return nil, err
	}

	var links []string
	if err := page.Evaluate(ctx, `(() => {
        const cards = document.querySelectorAll('creative-preview a');
        return Array.from(cards).map(a => a.getAttribute('href'))
            .filter(h => h && h.includes('/creative/'));
    })()`, &links); err != nil {
		return nil, fmt.Errorf("collect creative links: %w", err)
	}
	if !unlimited && len(links) > opts.MaxResults {
		links = links[:opts.MaxResults]
	}
	log.Info("creative links collected", zap.Int("count", len(links)))

	if opts.Mode == scrape.ModeIncremental {
		var fresh []string
		skipped := 0
		for _, href := range links {
			cid := extractCreativeIDFromLink(href)
			if cid != "" {
				if _, known := opts.KnownIDs[cid]; known {
					skipped++
					continue
				}
			}
			fresh = append(fresh, href)
		}
		log.Info("incremental filter applied",
			zap.Int("known", len(opts.KnownIDs)),
			zap.Int("skipped", skipped),
			zap.Int("fresh", len(fresh)))
		links = fresh
		if len(links) == 0 {
			log.Info("no new creatives")
			return nil, nil
		}
	}

	batcher := scrape.NewBatcher(opts.OnBatch)
	for i, href := range links {
		ads, err := s.scrapeDetail(ctx, page, href, domain)
		if err != nil {
			if ctx.Err() != nil {
				return batcher.Finish(ctx)
			}
			log.Warn("detail page failed",
				zap.Int("index", i+1), zap.String("href", href), zap.Error(err))
			continue
		}
		hitLimit := false
		for _, ad := range ads {
			if err := batcher.Add(ctx, ad); err != nil {
				return nil, fmt.Errorf("batch callback: %w", err)
			}
			if !unlimited && batcher.Len() >= opts.MaxResults {
				hitLimit = true
				break
			}
		}
		if hitLimit {
			break
		}
	}

	all, err := batcher.Finish(ctx)
	if err != nil {
		return all, fmt.Errorf("batch callback: %w", err)
	}
	log.Info("domain scrape done", zap.Int("ads", len(all)))
	return all, nil
}

// scrollListing scrolls the listing page until enough cards loaded, growth
// stalls, or the wall clock runs out.
func (s *Scraper) scrollListing(ctx context.Context, page browser.Page, maxResults int, unlimited bool, log *zap.Logger) error {
	maxAttempts := maxScrollsBounded
	if unlimited {
		maxAttempts = maxScrollsUnlimited
	}
	const countJS = `document.querySelectorAll('creative-preview a[href*="/creative/"]').length`

	prev, noNew := 0, 0
	start := s.now()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if s.now().Sub(start) > scrollWallClock {
			log.Info("scroll wall clock reached")
			return nil
		}
		var count int
		if err := page.Evaluate(ctx, countJS, &count); err != nil {
			return fmt.Errorf("count cards: %w", err)
		}
		log.Debug("scrolling", zap.Int("attempt", attempt+1), zap.Int("cards", count))

		if !unlimited && count >= maxResults {
			return nil
		}
		if count == prev {
			noNew++
			if noNew >= noNewScrollsToStop {
				log.Info("no new cards after repeated scrolls", zap.Int("cards", count))
				return nil
			}
		} else {
			noNew = 0
		}
		prev = count
		if err := page.Evaluate(ctx, `window.scrollTo(0, document.body.scrollHeight)`, nil); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		s.sleep(2 * time.Second)
	}
	return nil
}

// scrapeDetail visits one creative detail page and normalizes every variant
// found on it. Failures to load are returned as errors so the caller can skip
// just this creative.
func (s *Scraper) scrapeDetail(ctx context.Context, page browser.Page, href, fallbackName string) ([]models.NormalizedAd, error) {
	detailURL := baseHost + href
	if !strings.Contains(detailURL, "region=") {
		sep := "?"
		if strings.Contains(detailURL, "?") {
			sep = "&"
		}
		detailURL += sep + "region=" + s.Region
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := page.Navigate(navCtx, detailURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("load detail: %w", err)
	}
	s.sleep(3 * time.Second)

	nameCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	name, err := page.Text(nameCtx, "div.advertiser-name")
	cancel()
	name = strings.TrimSpace(name)
	if err != nil || name == "" {
		name = fallbackName
	}

	panelCtx, cancel := context.WithTimeout(ctx, detailPanelTimeout)
	err = page.WaitVisible(panelCtx, "creative-details .ad-container")
	cancel()
	if err != nil {
		return nil, fmt.Errorf("detail panel missing: %w", err)
	}

	// Opportunistic: give real content a moment to render, proceed either way.
	contentCtx, cancel := context.WithTimeout(ctx, detailContentTimeout)
	_ = page.WaitVisible(contentCtx, adContentSelector)
	cancel()
	s.sleep(time.Second)

	variants, err := collectVariants(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("collect variants: %w", err)
	}
	if len(variants) == 0 {
		if variants, err = collectVariantsFromFrames(ctx, page); err != nil {
			return nil, fmt.Errorf("collect frame variants: %w", err)
		}
	}
	if len(variants) == 0 {
		if variants, err = textAdFallback(ctx, page); err != nil {
			return nil, fmt.Errorf("text fallback: %w", err)
		}
	}
	zap.L().Info("variants collected",
		zap.String("advertiser", name), zap.Int("count", len(variants)))

	pageLanding := extractPageLandingURL(ctx, page)
	cid := extractCreativeIDFromLink(href)

	var ads []models.NormalizedAd
	for _, v := range variants {
		landing, navigatedAway := s.resolveVariantLanding(ctx, page, v, pageLanding)
		if navigatedAway {
			backCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := page.Navigate(backCtx, detailURL)
			cancel()
			if err != nil {
				zap.L().Warn("return to detail page failed", zap.Error(err))
				continue
			}
			s.sleep(2 * time.Second)
		}
		ad := variantToAd(name, v, landing)
		ad.CreativeID = cid
		ads = append(ads, ad)
	}
	return ads, nil
}

func (s *Scraper) scrapeKeyword(ctx context.Context, keyword string, opts scrape.Options) ([]models.NormalizedAd, error) {
	log := zap.L().With(zap.String("platform", "google"), zap.String("keyword", keyword))
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 12
	}

	today := s.now()
	threeMonthsAgo := today.AddDate(0, -3, 0)
	searchURL := fmt.Sprintf("%s/?region=%s&start_date=%s&end_date=%s",
		baseHost, s.Region,
		threeMonthsAgo.Format("2006-01-02"), today.Format("2006-01-02"))

	page, err := s.Browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	advertisers, err := s.searchAdvertisers(ctx, page, keyword, searchURL)
	if err != nil {
		return nil, err
	}
	if len(advertisers) == 0 {
		log.Warn("no advertiser suggestions")
		return nil, nil
	}
	if len(advertisers) > s.MaxAdvertisers {
		advertisers = advertisers[:s.MaxAdvertisers]
	}
	log.Info("advertisers found", zap.Strings("names", advertisers))

	batcher := scrape.NewBatcher(opts.OnBatch)
	for idx, name := range advertisers {
		remaining := maxResults - batcher.Len()
		if remaining <= 0 {
			break
		}
		ads, err := s.collectAdsForAdvertiser(ctx, page, keyword, searchURL, idx, name, remaining)
		if err != nil {
			if ctx.Err() != nil {
				return batcher.Finish(ctx)
			}
			log.Warn("advertiser walk failed", zap.String("advertiser", name), zap.Error(err))
			continue
		}
		for _, ad := range ads {
			if err := batcher.Add(ctx, ad); err != nil {
				return nil, fmt.Errorf("batch callback: %w", err)
			}
			if batcher.Len() >= maxResults {
				break
			}
		}
	}

	all, err := batcher.Finish(ctx)
	if err != nil {
		return all, fmt.Errorf("batch callback: %w", err)
	}
	log.Info("keyword scrape done", zap.Int("ads", len(all)))
	return all, nil
}

// searchAdvertisers types the keyword into the search box and reads the
// advertiser suggestion dropdown.
func (s *Scraper) searchAdvertisers(ctx context.Context, page browser.Page, keyword, searchURL string) ([]string, error) {
	if err := s.openSearch(ctx, page, keyword, searchURL); err != nil {
		return nil, err
	}
	var names []string
	err := page.Evaluate(ctx, `(() => {
        return Array.from(document.querySelectorAll('material-select-item')).map((item, idx) => {
            const nameEl = item.querySelector('div.name');
            return nameEl ? nameEl.innerText.trim() : ('Unknown_' + idx);
        });
    })()`, &names)
	if err != nil {
		return nil, fmt.Errorf("read advertiser dropdown: %w", err)
	}
	return names, nil
}

func (s *Scraper) openSearch(ctx context.Context, page browser.Page, keyword, searchURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, time.Minute)
	err := page.Navigate(navCtx, searchURL)
	cancel()
	if err != nil {
		return fmt.Errorf("open search page: %w", err)
	}
	s.sleep(5 * time.Second)

	fillCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = page.Fill(fillCtx, `input[type="text"]`, keyword)
	cancel()
	if err != nil {
		return fmt.Errorf("fill search input: %w", err)
	}
	s.sleep(time.Second)

	waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = page.WaitVisible(waitCtx, "material-select-item")
	cancel()
	if err != nil {
		return fmt.Errorf("advertiser dropdown: %w", err)
	}
	s.sleep(time.Second)
	return nil
}

// collectAdsForAdvertiser re-runs the search, clicks the advertiser at the
// given dropdown index, and walks up to maxCreatives of its creatives.
func (s *Scraper) collectAdsForAdvertiser(ctx context.Context, page browser.Page, keyword, searchURL string, index int, name string, maxCreatives int) ([]models.NormalizedAd, error) {
	if err := s.openSearch(ctx, page, keyword, searchURL); err != nil {
		return nil, err
	}

	var clicked bool
	err := page.Evaluate(ctx, `(() => {
        const items = document.querySelectorAll('material-select-item');
        if (`+strconv.Itoa(index)+` < items.length) {
            items[`+strconv.Itoa(index)+`].click();
            return true;
        }
        return false;
    })()`, &clicked)
	if err != nil {
		return nil, fmt.Errorf("click advertiser: %w", err)
	}
	if !clicked {
		return nil, fmt.Errorf("advertiser index %d out of range", index)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = page.WaitVisible(waitCtx, "creative-preview")
	cancel()
	if err != nil {
		return nil, fmt.Errorf("creative cards: %w", err)
	}
	s.sleep(3 * time.Second)

	var links []string
	err = page.Evaluate(ctx, `(() => {
        return Array.from(document.querySelectorAll('creative-preview')).slice(0, `+strconv.Itoa(maxCreatives)+`).map(c => {
            const a = c.querySelector('a[href]');
            return a ? a.getAttribute('href') : null;
        }).filter(h => h);
    })()`, &links)
	if err != nil {
		return nil, fmt.Errorf("collect creative links: %w", err)
	}

	var ads []models.NormalizedAd
	for _, href := range links {
		pageAds, err := s.scrapeDetail(ctx, page, href, name)
		if err != nil {
			if ctx.Err() != nil {
				return ads, ctx.Err()
			}
			zap.L().Warn("detail page failed", zap.String("href", href), zap.Error(err))
			continue
		}
		ads = append(ads, pageAds...)
	}
	return ads, nil
}
