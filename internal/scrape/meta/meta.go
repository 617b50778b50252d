// Package meta scrapes the public Meta Ad Library through a browser. The
// library renders ads as a lazy-loaded feed, so collection is a scroll loop
// with DOM extraction, not an API walk.
package meta

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/adscope/collector/internal/browser"
	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

// extractAdsJS pulls every loaded ad out of the feed. Each ad lives in a
// div._7jyh container; advertiser comes from the profile image alt, content
// from the first video (src + poster) or the first scontent fbcdn image that
// is not the 60x60 profile thumb, landing from the l.facebook.com redirect's
// u= parameter.
const extractAdsJS = `(() => {
    const results = [];
    const adContainers = Array.from(document.querySelectorAll('div._7jyh')).slice(0, 200);

    for (const container of adContainers) {
        const ad = {};
        let adSection = container.closest('div.xh8yej3') ||
            (container.parentElement && container.parentElement.parentElement) || container;

        const profileImg = adSection.querySelector('img._8nqq');
        ad.advertiser_name = profileImg ? profileImg.alt : '';
        if (!ad.advertiser_name) {
            const pageLink = adSection.querySelector('a[href*="facebook.com/"] span');
            if (pageLink) ad.advertiser_name = pageLink.textContent.trim();
        }

        ad.content_url = '';
        ad.thumbnail_url = '';

        const videoContainer = adSection.querySelector('[data-testid="ad-content-body-video-container"]');
        if (videoContainer) {
            const video = videoContainer.querySelector('video');
            if (video) {
                ad.content_url = video.src || '';
                if (!ad.content_url) {
                    const source = video.querySelector('source');
                    if (source) ad.content_url = source.src || '';
                }
                ad.thumbnail_url = video.poster || '';
            }
        }
        if (!ad.content_url) {
            for (const v of adSection.querySelectorAll('video')) {
                if (v.src) {
                    ad.content_url = v.src;
                    ad.thumbnail_url = v.poster || '';
                    break;
                }
                const s = v.querySelector('source');
                if (s && s.src) {
                    ad.content_url = s.src;
                    ad.thumbnail_url = v.poster || '';
                    break;
                }
            }
        }

        if (!ad.content_url) {
            for (const img of adSection.querySelectorAll('img')) {
                const src = img.src || '';
                const cls = img.className || '';
                if (cls.includes('_8nqq')) continue;
                if (src.startsWith('data:')) continue;
                if (src.includes('emoji')) continue;
                if (src.includes('scontent') && src.includes('fbcdn.net') && !src.includes('s60x60')) {
                    ad.content_url = src;
                    break;
                }
            }
            if (!ad.content_url) {
                for (const img of adSection.querySelectorAll('img')) {
                    const src = img.src || '';
                    const cls = img.className || '';
                    if (cls.includes('_8nqq')) continue;
                    if (!src.startsWith('data:') && !src.includes('emoji') && src.startsWith('http')) {
                        ad.content_url = src;
                        break;
                    }
                }
            }
        }

        ad.landing_page_url = '';
        const ctaLink = adSection.querySelector('a[href*="l.facebook.com/l.php"]');
        if (ctaLink) {
            const href = ctaLink.href;
            try {
                const u = new URL(href).searchParams.get('u');
                ad.landing_page_url = u ? decodeURIComponent(u) : href;
            } catch (e) {
                ad.landing_page_url = href;
            }
        }
        if (!ad.landing_page_url) {
            for (const link of adSection.querySelectorAll('a[href]')) {
                const h = link.href || '';
                if (h.startsWith('http') && !h.includes('facebook.com') && !h.includes('instagram.com')) {
                    ad.landing_page_url = h;
                    break;
                }
            }
        }

        if (ad.advertiser_name || ad.content_url) {
            results.push(ad);
        }
    }
    return results;
})()`

// extractAdsHRJS sections the feed on <hr> separators, for markups where the
// _7jyh container class is absent.
const extractAdsHRJS = `(() => {
    const results = [];
    const hrs = Array.from(document.querySelectorAll('hr')).slice(0, 200);

    for (const hr of hrs) {
        const section = hr.nextElementSibling;
        if (!section) continue;
        const ad = {};

        const profileImg = section.querySelector('img._8nqq');
        ad.advertiser_name = profileImg ? profileImg.alt : '';
        if (!ad.advertiser_name) {
            const pageLink = section.querySelector('a[href*="facebook.com/"] span');
            if (pageLink) ad.advertiser_name = pageLink.textContent.trim();
        }

        ad.content_url = '';
        ad.thumbnail_url = '';
        const video = section.querySelector('video');
        if (video) {
            ad.content_url = video.src || '';
            ad.thumbnail_url = video.poster || '';
        }
        if (!ad.content_url) {
            for (const img of section.querySelectorAll('img')) {
                if (img.className.includes('_8nqq')) continue;
                if (img.src && img.src.includes('scontent') && !img.src.includes('s60x60')) {
                    ad.content_url = img.src;
                    break;
                }
            }
        }

        ad.landing_page_url = '';
        const cta = section.querySelector('a[href*="l.facebook.com/l.php"]');
        if (cta) {
            try {
                const u = new URL(cta.href).searchParams.get('u');
                ad.landing_page_url = decodeURIComponent(u || cta.href);
            } catch (e) {
                ad.landing_page_url = cta.href;
            }
        }

        if (ad.advertiser_name || ad.content_url) {
            results.push(ad);
        }
    }
    return results;
})()`

var cookieConsentSelectors = []string{
	`button[data-cookiebanner="accept_button"]`,
	`button[title="Allow all cookies"]`,
	`button[title="모든 쿠키 허용"]`,
}

// Scraper walks Meta Ad Library listings through a browser.Browser.
type Scraper struct {
	Browser browser.Browser
	Country string

	sleep func(time.Duration)
	now   func() time.Time
}

var _ scrape.Scraper = (*Scraper)(nil)

// New builds a Scraper pinned to a country (e.g. "KR").
func New(b browser.Browser, country string) *Scraper {
	return &Scraper{
		Browser: b,
		Country: country,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

func (s *Scraper) Platform() models.Platform { return models.PlatformMeta }

// Scrape dispatches on source type: page IDs walk an advertiser's full ad
// page, everything else runs a keyword search.
func (s *Scraper) Scrape(ctx context.Context, target models.Target, opts scrape.Options) ([]models.NormalizedAd, error) {
	listURL := ""
	switch target.SourceType {
	case models.SourceTypePageID:
		listURL = s.pageIDURL(ParsePageID(target.SourceValue))
	default:
		listURL = s.keywordURL(target.SourceValue)
	}
	return s.scrapeListing(ctx, listURL, opts)
}

func (s *Scraper) keywordURL(keyword string) string {
	today := s.now()
	threeMonthsAgo := today.AddDate(0, -3, 0)
	return fmt.Sprintf("https://www.facebook.com/ads/library/"+
		"?active_status=active&ad_type=all&country=%s"+
		"&q=%s&search_type=keyword_unordered"+
		"&start_date[min]=%s&start_date[max]=%s",
		s.Country, url.QueryEscape(keyword),
		threeMonthsAgo.Format("2006-01-02"), today.Format("2006-01-02"))
}

func (s *Scraper) pageIDURL(pageID string) string {
	today := s.now()
	threeMonthsAgo := today.AddDate(0, -3, 0)
	return fmt.Sprintf("https://www.facebook.com/ads/library/"+
		"?active_status=active&ad_type=all&country=%s"+
		"&view_all_page_id=%s&search_type=page&media_type=all"+
		"&start_date[min]=%s&start_date[max]=%s",
		s.Country, url.QueryEscape(pageID),
		threeMonthsAgo.Format("2006-01-02"), today.Format("2006-01-02"))
}

func (s *Scraper) scrapeListing(ctx context.Context, listURL string, opts scrape.Options) ([]models.NormalizedAd, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 500
	}
	incremental := opts.Mode == scrape.ModeIncremental && len(opts.KnownIDs) > 0
	log := zap.L().With(zap.String("platform", "meta"))
	log.Info("listing scrape starting",
		zap.String("url", listURL), zap.Bool("incremental", incremental))

	page, err := s.Browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, time.Minute)
	err = page.Navigate(navCtx, listURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("open listing: %w", err)
	}

	s.acceptCookies(ctx, page)
	s.sleep(5 * time.Second)

	if err := s.scrollFeed(ctx, page, maxResults, incremental, opts.KnownIDs, log); err != nil {
		return nil, err
	}

	raw, err := s.extract(ctx, page)
	if err != nil {
		return nil, err
	}

	batcher := scrape.NewBatcher(opts.OnBatch)
	for _, r := range raw {
		if batcher.Len() >= maxResults {
			break
		}
		if err := batcher.Add(ctx, toAd(r)); err != nil {
			return nil, fmt.Errorf("batch callback: %w", err)
		}
	}
	all, err := batcher.Finish(ctx)
	if err != nil {
		return all, fmt.Errorf("batch callback: %w", err)
	}
	log.Info("listing scrape done", zap.Int("ads", len(all)))
	return all, nil
}

// acceptCookies dismisses the consent dialog when one appears. Best effort.
func (s *Scraper) acceptCookies(ctx context.Context, page browser.Page) {
	for _, sel := range cookieConsentSelectors {
		clickCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := page.Click(clickCtx, sel)
		cancel()
		if err == nil {
			zap.L().Debug("cookie consent accepted")
			s.sleep(2 * time.Second)
			return
		}
	}
}

// scrollFeed scrolls until the page height stops growing or enough ads are
// loaded. In incremental mode every third scroll samples the newly loaded
// ads; hitting one whose source ID is already known stops the walk, since
// the feed is newest first.
func (s *Scraper) scrollFeed(ctx context.Context, page browser.Page, maxResults int, incremental bool, knownIDs map[string]struct{}, log *zap.Logger) error {
	maxScrolls := maxResults / 5
	if maxScrolls < 3 {
		maxScrolls = 3
	}
	prevHeight := 0
	prevAdCount := 0
	for i := 0; i < maxScrolls; i++ {
		if err := page.Evaluate(ctx, `window.scrollTo(0, document.body.scrollHeight)`, nil); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		s.sleep(2 * time.Second)

		var height int
		if err := page.Evaluate(ctx, `document.body.scrollHeight`, &height); err != nil {
			return fmt.Errorf("read height: %w", err)
		}
		if height == prevHeight {
			log.Debug("feed exhausted", zap.Int("scrolls", i+1))
			return nil
		}
		prevHeight = height

		if incremental && (i+1)%3 == 0 {
			raw, err := s.extract(ctx, page)
			if err != nil {
				return err
			}
			if len(raw) > prevAdCount {
				for _, r := range raw[prevAdCount:] {
					id := MakeSourceID(r.AdvertiserName, r.ContentURL)
					if _, known := knownIDs[id]; known {
						log.Info("known ad reached, stopping scroll",
							zap.Int("scroll", i+1), zap.Int("loaded", len(raw)))
						return nil
					}
				}
				prevAdCount = len(raw)
			}
		}
	}
	return nil
}

func (s *Scraper) extract(ctx context.Context, page browser.Page) ([]rawAd, error) {
	var raw []rawAd
	if err := page.Evaluate(ctx, extractAdsJS, &raw); err != nil {
		return nil, fmt.Errorf("extract ads: %w", err)
	}
	if len(raw) == 0 {
		// Container class not present in this markup revision.
		if err := page.Evaluate(ctx, extractAdsHRJS, &raw); err != nil {
			return nil, fmt.Errorf("extract ads (hr sections): %w", err)
		}
	}
	if len(raw) == 0 {
		zap.L().Warn("no ads extracted from listing")
	}
	return raw, nil
}
