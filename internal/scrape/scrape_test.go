package scrape

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/collector/internal/models"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("google:acme:https://example.com/ad")
	b := Fingerprint("google:acme:https://example.com/ad")
	c := Fingerprint("google:acme:https://example.com/other")

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestFingerprintJSON_KeyOrderIndependent(t *testing.T) {
	a := FingerprintJSON("p:", map[string]interface{}{"x": "1", "y": "2"})
	b := FingerprintJSON("p:", map[string]interface{}{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
}

func TestIsBlockedLandingURL(t *testing.T) {
	cases := []struct {
		url     string
		blocked bool
	}{
		{"https://www.naver.com/shop", true},
		{"https://ad.kakao.com/landing", true},
		{"https://l.facebook.com/l.php?u=x", true},
		{"https://www.instagram.com/acme", true},
		{"https://FACEBOOK.com/x", true},
		{"https://example.com/product", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.blocked, IsBlockedLandingURL(tc.url), tc.url)
	}
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeDomain("https://www.example.com/path/page"))
	assert.Equal(t, "example.com", NormalizeDomain("http://example.com/"))
	assert.Equal(t, "example.co.kr", NormalizeDomain("  example.co.kr "))
	assert.Equal(t, "shop.example.com", NormalizeDomain("shop.example.com"))
	// mixed case collapses to one identity
	assert.Equal(t, "example.com", NormalizeDomain("Example.COM"))
	assert.Equal(t, "example.com", NormalizeDomain("WWW.Example.com"))
	assert.Equal(t, "example.com", NormalizeDomain("HTTPS://WWW.Example.COM/p"))
}

func TestBatcher_DedupAndFlush(t *testing.T) {
	var batches [][]models.NormalizedAd
	b := NewBatcher(func(_ context.Context, ads []models.NormalizedAd) error {
		batches = append(batches, ads)
		return nil
	})
	b.size = 3

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Add(context.Background(), models.NormalizedAd{SourceID: fmt.Sprintf("ad-%d", i)}))
	}
	// duplicate must be dropped
	require.NoError(t, b.Add(context.Background(), models.NormalizedAd{SourceID: "ad-0"}))

	all, err := b.Finish(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 5)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 2)
	assert.True(t, b.Seen("ad-4"))
	assert.False(t, b.Seen("ad-9"))
}

func TestBatcher_CallbackErrorAborts(t *testing.T) {
	b := NewBatcher(func(context.Context, []models.NormalizedAd) error {
		return fmt.Errorf("db down")
	})
	b.size = 1
	err := b.Add(context.Background(), models.NormalizedAd{SourceID: "x"})
	assert.EqualError(t, err, "db down")
}

func TestBatcher_NilCallback(t *testing.T) {
	b := NewBatcher(nil)
	require.NoError(t, b.Add(context.Background(), models.NormalizedAd{SourceID: "x"}))
	all, err := b.Finish(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
