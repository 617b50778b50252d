package meta

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

// rawAd is what the in-page extraction returns for one ad section.
type rawAd struct {
	AdvertiserName string `json:"advertiser_name"`
	ContentURL     string `json:"content_url"`
	ThumbnailURL   string `json:"thumbnail_url"`
	LandingPageURL string `json:"landing_page_url"`
}

// MakeSourceID fingerprints a Meta creative by advertiser and the path of its
// CDN content URL. fbcdn URLs carry short-lived signature query params, so
// only the path is stable across scrapes.
func MakeSourceID(advertiserName, contentURL string) string {
	stable := contentURL
	if u, err := url.Parse(contentURL); err == nil {
		stable = u.Path
	}
	return scrape.Fingerprint("meta:" + advertiserName + ":" + stable)
}

// toAd normalizes one extracted section. A poster attribute or a video-ish
// content URL marks the ad as video; video thumbs come from the poster while
// image ads thumb with the content URL itself. A blocked landing URL is
// dropped but the ad is kept.
func toAd(raw rawAd) models.NormalizedAd {
	hasVideo := raw.ThumbnailURL != "" || strings.Contains(strings.ToLower(raw.ContentURL), "video")
	mediaType := models.MediaImage
	if hasVideo {
		mediaType = models.MediaVideo
	}

	thumb := raw.ContentURL
	if hasVideo {
		thumb = raw.ThumbnailURL
	}

	landing := raw.LandingPageURL
	if scrape.IsBlockedLandingURL(landing) {
		landing = ""
	}

	rawJSON, _ := json.Marshal(raw)
	return models.NormalizedAd{
		SourceID:       MakeSourceID(raw.AdvertiserName, raw.ContentURL),
		Platform:       models.PlatformMeta,
		Format:         mediaType,
		AdvertiserName: raw.AdvertiserName,
		ThumbnailURL:   thumb,
		PreviewURL:     raw.ContentURL,
		MediaType:      mediaType,
		LandingPageURL: landing,
		RawData:        rawJSON,
	}
}

// ParsePageID extracts a Facebook page ID from any of the shapes users paste:
// a raw numeric ID, an Ad Library URL (view_all_page_id=), or a profile URL
// (id=). Unrecognized input is returned as-is.
func ParsePageID(input string) string {
	input = strings.TrimSpace(input)
	if input != "" && isDigits(input) {
		return input
	}
	u, err := url.Parse(input)
	if err != nil {
		return input
	}
	q := u.Query()
	if v := q.Get("view_all_page_id"); v != "" {
		return v
	}
	if v := q.Get("id"); v != "" {
		return v
	}
	return input
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
