package google

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adscope/collector/internal/browser"
	"github.com/adscope/collector/internal/scrape"
)

var adurlRe = regexp.MustCompile(`adurl=(https?[^"&<>\s\\]+)`)

// pageLandingJS pulls a landing URL out of the detail page itself, tried in
// order: the Destination label text, an external anchor inside
// creative-details, and finally an adurl= parameter on a googleadservices
// redirect anywhere in the DOM.
const pageLandingJS = `(() => {
    const allText = document.body ? document.body.innerText : '';
    const destMatch = allText.match(/(?:대상|Destination)[:\s]*(https?:\/\/[^\s]+)/i);
    if (destMatch) return destMatch[1];

    const skipDomains = [
        'adstransparency.google.com',
        'support.google.com',
        'policies.google.com',
        'safety.google',
        'google.com/ads',
        'about.google',
        'blog.google',
        'googlesyndication.com',
    ];
    const details = document.querySelector('creative-details');
    if (details) {
        const links = details.querySelectorAll('a[href]');
        for (const a of links) {
            const h = a.href;
            if (h && h.startsWith('http') && !skipDomains.some(d => h.includes(d))) {
                return h;
            }
        }
    }

    const html = document.documentElement.innerHTML;
    const adservicesMatch = html.match(/googleadservices\.com[^"']*adurl=(https?[^"&<>\s\\]+)/);
    if (adservicesMatch) return decodeURIComponent(adservicesMatch[1]);

    return '';
})()`

// extractPageLandingURL returns the detail page's common landing URL, or ""
// when none of the strategies match or the result is blocked.
func extractPageLandingURL(ctx context.Context, page browser.Page) string {
	var landing string
	if err := page.Evaluate(ctx, pageLandingJS, &landing); err != nil {
		zap.L().Debug("page landing extraction failed", zap.Error(err))
		return ""
	}
	if scrape.IsBlockedLandingURL(landing) {
		return ""
	}
	return landing
}

// landingFromSadbundle visits a sadbundle creative bundle and pulls the
// advertiser landing URL from its adurl= click-through parameter. The caller
// must navigate back to the detail page afterwards.
func (s *Scraper) landingFromSadbundle(ctx context.Context, page browser.Page, sadbundleURL string) string {
	navCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := page.Navigate(navCtx, sadbundleURL); err != nil {
		zap.L().Warn("sadbundle visit failed", zap.Error(err))
		return ""
	}
	s.sleep(2 * time.Second)

	html, err := page.Content(ctx)
	if err != nil {
		zap.L().Warn("sadbundle content read failed", zap.Error(err))
		return ""
	}
	m := adurlRe.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	if decoded, err := url.QueryUnescape(m[1]); err == nil {
		return decoded
	}
	return m[1]
}

// resolveVariantLanding picks a landing URL for one variant: sadbundle
// click-through first, then the variant's own anchor, then the page-common
// URL. Blocked destinations are discarded at every step. Returns the landing
// URL and whether the page must be re-navigated to the detail URL.
func (s *Scraper) resolveVariantLanding(ctx context.Context, page browser.Page, v variant, pageLanding string) (string, bool) {
	navigatedAway := false
	landing := ""

	if strings.Contains(v.ContentURL, "sadbundle") {
		landing = s.landingFromSadbundle(ctx, page, v.ContentURL)
		navigatedAway = true
		if scrape.IsBlockedLandingURL(landing) {
			landing = ""
		}
	}
	if landing == "" && v.AnchorHref != "" && !scrape.IsBlockedLandingURL(v.AnchorHref) {
		landing = v.AnchorHref
	}
	if landing == "" {
		landing = pageLanding
	}
	return landing, navigatedAway
}
