package scrape

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/adscope/collector/internal/models"
)

// DefaultBatchSize is how many ads accumulate before OnBatch fires.
const DefaultBatchSize = 50

// Mode selects how much of a target's catalog a scrape walks.
type Mode string

const (
	// ModeFull walks the catalog up to MaxResults.
	ModeFull Mode = "full"
	// ModeIncremental stops as soon as only already-known creatives remain.
	ModeIncremental Mode = "incremental"
)

// Options carries the per-scrape knobs shared by every platform.
type Options struct {
	MaxResults int
	Mode       Mode
	// KnownIDs holds creative IDs (or source IDs, platform dependent) already
	// in the store. Incremental scrapes use it to stop early.
	KnownIDs map[string]struct{}
	// OnBatch, when set, receives ads in chunks of DefaultBatchSize as they
	// are discovered, plus a final partial chunk. An error aborts the scrape.
	OnBatch func(ctx context.Context, ads []models.NormalizedAd) error
}

// Scraper is the contract every platform scraper implements. Scrape returns
// all discovered ads even when OnBatch is set.
type Scraper interface {
	Platform() models.Platform
	Scrape(ctx context.Context, target models.Target, opts Options) ([]models.NormalizedAd, error)
}

// Fingerprint derives a short stable identifier from an arbitrary string.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// FingerprintJSON derives a fingerprint from a payload's canonical JSON
// encoding. encoding/json sorts map keys, which is what makes the encoding
// canonical for map payloads.
func FingerprintJSON(prefix string, payload map[string]interface{}) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return Fingerprint(prefix + string(b))
}

// blockedDomains are redirect hosts and portals that are never a real
// advertiser landing page. Matched as substrings of the lowercased URL so
// every subdomain and TLD variant is covered.
var blockedDomains = []string{"naver.", "kakao.", "facebook.", "instagram."}

// IsBlockedLandingURL reports whether the URL points at a blocked domain.
func IsBlockedLandingURL(url string) bool {
	if url == "" {
		return false
	}
	lower := strings.ToLower(url)
	for _, d := range blockedDomains {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// NormalizeDomain reduces a domain-ish input to its bare registrable form:
// lowercased, with scheme, www. prefix, path and trailing slashes stripped.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return d
}

// Batcher accumulates ads, deduplicates them by source ID, and flushes them
// to an OnBatch callback in fixed-size chunks.
type Batcher struct {
	onBatch func(ctx context.Context, ads []models.NormalizedAd) error
	size    int
	seen    map[string]struct{}
	pending []models.NormalizedAd
	all     []models.NormalizedAd
}

// NewBatcher builds a Batcher. onBatch may be nil, in which case ads are only
// accumulated.
func NewBatcher(onBatch func(ctx context.Context, ads []models.NormalizedAd) error) *Batcher {
	return &Batcher{
		onBatch: onBatch,
		size:    DefaultBatchSize,
		seen:    make(map[string]struct{}),
	}
}

// Add appends an ad unless its source ID was already seen. Returns the
// OnBatch error, if any, so scrapers can abort.
func (b *Batcher) Add(ctx context.Context, ad models.NormalizedAd) error {
	if _, dup := b.seen[ad.SourceID]; dup {
		return nil
	}
	b.seen[ad.SourceID] = struct{}{}
	b.all = append(b.all, ad)
	b.pending = append(b.pending, ad)
	if len(b.pending) >= b.size {
		return b.flush(ctx)
	}
	return nil
}

// Seen reports whether a source ID has already been added.
func (b *Batcher) Seen(sourceID string) bool {
	_, ok := b.seen[sourceID]
	return ok
}

// Len returns how many distinct ads have been added.
func (b *Batcher) Len() int { return len(b.all) }

// Finish flushes the final partial chunk and returns everything added.
func (b *Batcher) Finish(ctx context.Context) ([]models.NormalizedAd, error) {
	if err := b.flush(ctx); err != nil {
		return b.all, err
	}
	return b.all, nil
}

func (b *Batcher) flush(ctx context.Context) error {
	if len(b.pending) == 0 || b.onBatch == nil {
		b.pending = nil
		return nil
	}
	batch := b.pending
	b.pending = nil
	return b.onBatch(ctx, batch)
}
