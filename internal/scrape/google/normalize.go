package google

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/scrape"
)

var (
	creativeIDRe    = regexp.MustCompile(`/creative/(CR\w+)`)
	landingDomainRe = regexp.MustCompile(`(?i)^https?://(?:www\.)?([^/]+)`)
)

// MakeSourceID fingerprints a creative by advertiser and content URL. The
// content URL is the stable part of a transparency-center creative across
// visits, so this survives re-scrapes.
func MakeSourceID(advertiserName, contentURL string) string {
	return scrape.Fingerprint("google:" + advertiserName + ":" + contentURL)
}

// makeTextSourceID fingerprints a text-only creative by advertiser and the
// first 100 characters of its copy, since there is no content URL to key on.
func makeTextSourceID(advertiserName, adCopyText string) string {
	return scrape.Fingerprint("google:text:" + advertiserName + ":" + truncateRunes(adCopyText, 100))
}

// textFingerprint keys a synthetic text_ad: content URL.
func textFingerprint(text string) string {
	return scrape.Fingerprint(truncateRunes(text, 100))
}

// extractCreativeIDFromLink pulls the CR... ID out of a detail-page href.
func extractCreativeIDFromLink(href string) string {
	if m := creativeIDRe.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

// domainFromLandingURL reduces a landing URL to its lowercased host, www.
// stripped. Hosts are case-insensitive, so mixed-case URLs must not mint a
// second identity for the same domain.
func domainFromLandingURL(landingURL string) string {
	if m := landingDomainRe.FindStringSubmatch(landingURL); m != nil {
		host := strings.ToLower(m[1])
		return strings.TrimPrefix(host, "www.")
	}
	return ""
}

// videoURLKeywords classify a content URL as video when the DOM walk could
// not tell. Complements the is_video hint, never overrides it.
var videoURLKeywords = []string{
	"youtube.com", "youtu.be", "ytimg.com",
	"youtube_vertical_player", "youtube_player",
	"video_player",
}

// variantToAd normalizes one variant. Video ads with a known YouTube ID get
// the canonical ytimg thumbnail and watch URL regardless of which embed shape
// the page used, so the same video always produces the same row.
func variantToAd(advertiserName string, v variant, landingURL string) models.NormalizedAd {
	raw, _ := json.Marshal(map[string]interface{}{
		"advertiser_name": advertiserName,
		"variant":         v,
	})

	if v.IsText {
		sourceID := ""
		thumbnail := ""
		if v.ContentURL != "" && !strings.HasPrefix(v.ContentURL, "text_ad:") {
			// Text-format page that still exposed a real content URL.
			sourceID = MakeSourceID(advertiserName, v.ContentURL)
			thumbnail = v.ContentURL
		} else {
			sourceID = makeTextSourceID(advertiserName, v.AdCopyText)
		}
		return models.NormalizedAd{
			SourceID:       sourceID,
			Platform:       models.PlatformGoogle,
			Format:         models.FormatText,
			AdvertiserName: advertiserName,
			ThumbnailURL:   thumbnail,
			MediaType:      models.MediaText,
			AdCopy:         v.AdCopyText,
			LandingPageURL: landingURL,
			Domain:         domainFromLandingURL(landingURL),
			RawData:        raw,
		}
	}

	isVideo := v.IsVideo
	if !isVideo {
		lower := strings.ToLower(v.ContentURL)
		for _, kw := range videoURLKeywords {
			if strings.Contains(lower, kw) {
				isVideo = true
				break
			}
		}
	}

	videoID := v.YouTubeVideoID
	if videoID == "" {
		for _, u := range []string{v.ContentURL, v.ThumbnailURL, v.VideoURL} {
			if videoID = extractYouTubeVideoID(u); videoID != "" {
				break
			}
		}
	}

	var thumbnail, preview string
	switch {
	case isVideo && videoID != "":
		thumbnail = "https://i.ytimg.com/vi/" + videoID + "/maxresdefault.jpg"
		preview = "https://www.youtube.com/watch?v=" + videoID
	case isVideo:
		thumbnail = v.ThumbnailURL
		if thumbnail == "" {
			thumbnail = v.ContentURL
		}
		preview = v.VideoURL
		if preview == "" {
			preview = v.ContentURL
		}
	default:
		thumbnail = v.ContentURL
		preview = v.ContentURL
	}

	mediaType := models.MediaImage
	if isVideo {
		mediaType = models.MediaVideo
	}

	return models.NormalizedAd{
		SourceID:       MakeSourceID(advertiserName, v.ContentURL),
		Platform:       models.PlatformGoogle,
		Format:         mediaType,
		AdvertiserName: advertiserName,
		ThumbnailURL:   thumbnail,
		PreviewURL:     preview,
		MediaType:      mediaType,
		LandingPageURL: landingURL,
		Domain:         domainFromLandingURL(landingURL),
		RawData:        raw,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
