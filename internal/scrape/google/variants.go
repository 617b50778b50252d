package google

import (
	"context"
	"regexp"
	"strings"

	"github.com/adscope/collector/internal/browser"
)

// variant is one renderable alternative of a creative. A single transparency
// detail page holds every size/aspect alternative at once, hidden-class
// toggled, so one page visit yields several variants.
type variant struct {
	ContentURL     string `json:"content_url"`
	AnchorHref     string `json:"anchor_href"`
	IsVideo        bool   `json:"is_video"`
	IsText         bool   `json:"is_text"`
	AdCopyText     string `json:"ad_copy_text"`
	VideoURL       string `json:"video_url"`
	ThumbnailURL   string `json:"thumbnail_url"`
	YouTubeVideoID string `json:"youtube_video_id"`
}

var ytVideoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ytimg\.com/vi/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`[?&]video_id=([a-zA-Z0-9_-]{11})`),
}

// extractYouTubeVideoID pulls an 11-char video ID out of any of the URL
// shapes the transparency center embeds videos with.
func extractYouTubeVideoID(url string) string {
	if url == "" {
		return ""
	}
	for _, re := range ytVideoIDPatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

// isJunkURL filters serving-infrastructure URLs that carry no creative
// content. Text-ad synthetic URLs are exempted by the caller.
func isJunkURL(url string) bool {
	if url == "" {
		return true
	}
	lower := strings.ToLower(url)
	if strings.Contains(lower, "safeframe") {
		return true
	}
	if strings.HasSuffix(strings.TrimRight(lower, "/"), "/adframe") {
		return true
	}
	if strings.HasPrefix(lower, "about:") {
		return true
	}
	return false
}

// collectVariantsJS walks every .creative-sub-container under the detail
// panel in one evaluate. Content URL priority per sub-container: direct
// simgad image, youtube iframe, sadbundle iframe, simgad inside a same-origin
// adframe, then any other non-safeframe iframe. Text-format pages synthesize
// a text_ad: content URL from the container text.
const collectVariantsJS = `(() => {
    const container = document.querySelector('creative-details .ad-container');
    if (!container) return [];

    const results = [];
    const seen = new Set();
    const skipDomains = ['adstransparency.google.com', 'support.google.com',
                          'policies.google.com', 'safety.google', 'about.google'];

    const allBodyText = document.body ? document.body.innerText : '';
    const isTextAd = /형식\s*[:：]\s*텍스트|Format\s*[:：]\s*Text/i.test(allBodyText);

    const subs = container.querySelectorAll('.creative-sub-container');
    const targets = subs.length > 0 ? Array.from(subs) : [container];

    function extractYtVideoId(src) {
        if (!src) return null;
        let m;
        m = src.match(/ytimg\.com\/vi\/([a-zA-Z0-9_-]{11})/);
        if (m) return m[1];
        m = src.match(/youtube\.com\/embed\/([a-zA-Z0-9_-]{11})/);
        if (m) return m[1];
        m = src.match(/youtube\.com\/watch\?v=([a-zA-Z0-9_-]{11})/);
        if (m) return m[1];
        m = src.match(/youtu\.be\/([a-zA-Z0-9_-]{11})/);
        if (m) return m[1];
        m = src.match(/[?&]video_id=([a-zA-Z0-9_-]{11})/);
        if (m) return m[1];
        return null;
    }

    for (const sub of targets) {
        let url = null;
        let is_video = false;
        let video_url = null;
        let thumb_url = null;
        let youtube_video_id = null;

        const ytIframeCheck = sub.querySelector('iframe[src*="youtube"]');
        const ytVerticalCheck = sub.querySelector('iframe[src*="youtube_vertical_player"]');
        const videoTagCheck = sub.querySelector('video');
        if (ytIframeCheck || ytVerticalCheck || videoTagCheck) {
            is_video = true;
        }

        if (is_video) {
            const ytThumb = sub.querySelector('img[src*="ytimg"]');
            if (ytThumb && ytThumb.src) {
                thumb_url = ytThumb.src;
                if (!youtube_video_id) youtube_video_id = extractYtVideoId(ytThumb.src);
            }
            if (!thumb_url) {
                const simgadThumb = sub.querySelector('img[src*="simgad"]');
                if (simgadThumb && simgadThumb.src) thumb_url = simgadThumb.src;
            }

            if (ytVerticalCheck && ytVerticalCheck.src) {
                video_url = ytVerticalCheck.src;
                if (!youtube_video_id) youtube_video_id = extractYtVideoId(ytVerticalCheck.src);
            } else if (ytIframeCheck && ytIframeCheck.src) {
                video_url = ytIframeCheck.src;
                if (!youtube_video_id) youtube_video_id = extractYtVideoId(ytIframeCheck.src);
            }
            if (videoTagCheck && !video_url) {
                const src = videoTagCheck.src ||
                    (videoTagCheck.querySelector('source') && videoTagCheck.querySelector('source').src);
                if (src) video_url = src;
            }
        }

        const img = sub.querySelector('img[src*="simgad"]');
        if (img && img.src) url = img.src;

        const ytIframe = sub.querySelector('iframe[src*="youtube"]');
        if (!url && ytIframe && ytIframe.src) url = ytIframe.src;

        const sbIframe = sub.querySelector('iframe[src*="sadbundle"]');
        if (!url && sbIframe && sbIframe.src) url = sbIframe.src;

        if (!url) {
            const adframeIframe = sub.querySelector('iframe[src*="adframe"]');
            if (adframeIframe) {
                try {
                    const innerDoc = adframeIframe.contentDocument || adframeIframe.contentWindow.document;
                    if (innerDoc) {
                        const innerImg = innerDoc.querySelector('img[src*="simgad"]');
                        if (innerImg && innerImg.src) url = innerImg.src;
                        if (!url) {
                            const innerIframes = innerDoc.querySelectorAll('iframe[src]');
                            for (const f of innerIframes) {
                                if (f.src && (f.src.includes('simgad') || f.src.includes('youtube'))) {
                                    url = f.src;
                                    break;
                                }
                            }
                        }
                        if (!is_video) {
                            const innerYt = innerDoc.querySelector('iframe[src*="youtube"]');
                            const innerVideo = innerDoc.querySelector('video');
                            if (innerYt || innerVideo) {
                                is_video = true;
                                if (innerYt && innerYt.src) {
                                    video_url = innerYt.src;
                                    if (!youtube_video_id) youtube_video_id = extractYtVideoId(innerYt.src);
                                }
                                const innerThumb = innerDoc.querySelector('img[src*="ytimg"]');
                                if (innerThumb && innerThumb.src) {
                                    thumb_url = innerThumb.src;
                                    if (!youtube_video_id) youtube_video_id = extractYtVideoId(innerThumb.src);
                                }
                            }
                        }
                    }
                } catch (e) {
                    // cross-origin frame, handled by the frame walk instead
                }
            }
        }

        if (!url) {
            const allIframes = sub.querySelectorAll('iframe[src]');
            for (const f of allIframes) {
                const s = f.src.toLowerCase();
                if (s && !s.includes('safeframe') && !s.includes('adframe')
                    && !s.startsWith('about:')) {
                    url = f.src;
                    break;
                }
            }
        }

        let anchor_href = null;
        const anchors = sub.querySelectorAll('a[href]');
        for (const a of anchors) {
            const h = a.href;
            if (h && h.startsWith('http') && !skipDomains.some(d => h.includes(d))) {
                anchor_href = h;
                break;
            }
        }

        if (!youtube_video_id && url) youtube_video_id = extractYtVideoId(url);

        if (url && !seen.has(url)) {
            seen.add(url);
            results.push({
                content_url: url,
                anchor_href: anchor_href,
                is_video: is_video,
                is_text: isTextAd && !is_video,
                ad_copy_text: (isTextAd && !is_video) ? sub.innerText.trim() : null,
                video_url: video_url,
                thumbnail_url: thumb_url,
                youtube_video_id: youtube_video_id,
            });
        }

        if (!url && isTextAd) {
            const textContent = sub.innerText.trim();
            if (textContent) {
                const syntheticId = 'text_ad:' + btoa(unescape(encodeURIComponent(textContent.substring(0, 100))));
                if (!seen.has(syntheticId)) {
                    seen.add(syntheticId);
                    results.push({
                        content_url: syntheticId,
                        anchor_href: anchor_href,
                        is_video: false,
                        is_text: true,
                        ad_copy_text: textContent,
                        video_url: null,
                        thumbnail_url: null,
                        youtube_video_id: null,
                    });
                }
            }
        }
    }

    return results;
})()`

// collectVariants gathers every variant from the detail page's main document,
// then drops junk content URLs. Text variants keep their synthetic URLs.
func collectVariants(ctx context.Context, page browser.Page) ([]variant, error) {
	var raw []variant
	if err := page.Evaluate(ctx, collectVariantsJS, &raw); err != nil {
		return nil, err
	}
	out := raw[:0]
	for _, v := range raw {
		if v.IsText || !isJunkURL(v.ContentURL) {
			out = append(out, v)
		}
	}
	return out, nil
}

// frameVariantJS mirrors the per-frame portion of the variant walk for frames
// the main document cannot reach across origins. Runs inside the frame.
const frameVariantJS = `(() => {
    const out = {content_url: null, anchor_href: null, is_video: false,
                 video_url: null, thumbnail_url: null};

    const ytIframes = document.querySelectorAll('iframe[src*="youtube"]');
    const ytVertical = document.querySelectorAll('iframe[src*="youtube_vertical_player"]');
    const videoTags = document.querySelectorAll('video');
    if (ytIframes.length || ytVertical.length || videoTags.length) {
        out.is_video = true;
        for (const f of ytVertical) {
            if (f.src) { out.video_url = f.src; break; }
        }
        if (!out.video_url) {
            for (const f of ytIframes) {
                if (f.src) { out.video_url = f.src; break; }
            }
        }
        if (!out.video_url) {
            for (const v of videoTags) {
                const src = v.src || (v.querySelector('source[src]') && v.querySelector('source[src]').src);
                if (src) { out.video_url = src; break; }
            }
        }
        for (const img of document.querySelectorAll('img[src*="ytimg"]')) {
            if (img.src) { out.thumbnail_url = img.src; break; }
        }
    }

    for (const img of document.querySelectorAll('img[src*="simgad"]')) {
        if (img.src) { out.content_url = img.src; break; }
    }
    if (!out.content_url) {
        for (const f of document.querySelectorAll('iframe[src]')) {
            if (f.src && (f.src.includes('simgad') || f.src.includes('youtube'))) {
                out.content_url = f.src;
                break;
            }
        }
    }
    if (!out.content_url) {
        for (const img of document.querySelectorAll('img[src]')) {
            if (img.src && img.src.startsWith('http') && !img.src.includes('googlesyndication')) {
                out.content_url = img.src;
                break;
            }
        }
    }

    const skipDomains = ['adstransparency.google.com', 'support.google.com',
                         'policies.google.com', 'safety.google', 'about.google',
                         'blog.google', 'googlesyndication.com', 'safeframe'];
    for (const a of document.querySelectorAll('a[href]')) {
        const h = a.href;
        if (h && h.startsWith('http') && !skipDomains.some(d => h.includes(d))) {
            out.anchor_href = h;
            break;
        }
    }

    return out;
})()`

// collectVariantsFromFrames is the fallback for pages whose creatives render
// inside cross-origin frames: each frame is evaluated in its own context.
func collectVariantsFromFrames(ctx context.Context, page browser.Page) ([]variant, error) {
	frames, err := page.Frames(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	var results []variant
	seen := make(map[string]struct{})
	for _, frame := range frames {
		var v variant
		if err := frame.Evaluate(ctx, frameVariantJS, &v); err != nil {
			continue
		}
		if v.ContentURL == "" || isJunkURL(v.ContentURL) {
			continue
		}
		if _, dup := seen[v.ContentURL]; dup {
			continue
		}
		seen[v.ContentURL] = struct{}{}
		if v.YouTubeVideoID == "" {
			for _, u := range []string{v.VideoURL, v.ThumbnailURL, v.ContentURL} {
				if id := extractYouTubeVideoID(u); id != "" {
					v.YouTubeVideoID = id
					break
				}
			}
		}
		results = append(results, v)
	}
	return results, nil
}

// textFormatJS reports whether the page declares the text creative format, in
// either the Korean or English UI.
const textFormatJS = `(() => {
    const bodyText = document.body ? document.body.innerText : '';
    return /형식\s*[:：]\s*텍스트|Format\s*[:：]\s*Text/i.test(bodyText);
})()`

const adContainerTextJS = `(() => {
    const container = document.querySelector('creative-details .ad-container');
    return container ? container.innerText.trim() : '';
})()`

// textAdFallback builds a single text variant from the whole ad container
// when the page declares the text format but no variant was found.
func textAdFallback(ctx context.Context, page browser.Page) ([]variant, error) {
	var isText bool
	if err := page.Evaluate(ctx, textFormatJS, &isText); err != nil || !isText {
		return nil, err
	}
	var adText string
	if err := page.Evaluate(ctx, adContainerTextJS, &adText); err != nil {
		return nil, err
	}
	if adText == "" {
		return nil, nil
	}
	return []variant{{
		ContentURL: "text_ad:" + textFingerprint(adText),
		IsText:     true,
		AdCopyText: adText,
	}}, nil
}
