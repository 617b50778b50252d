package models

import "time"

// Brand is a monitored advertiser. Brands are soft-disabled, never deleted,
// so past ads keep their brand binding.
type Brand struct {
	ID        string    `json:"id"`
	BrandName string    `json:"brand_name"`
	IsActive  bool      `json:"is_active"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Source types for a brand source.
const (
	SourceTypeDomain  = "domain"
	SourceTypeKeyword = "keyword"
	SourceTypePageID  = "page_id"
)

// BrandSource is one concrete scrape target belonging to a brand: a platform
// plus a domain, keyword, or page ID. Uniqueness is scoped by
// (brand, platform, source_value).
type BrandSource struct {
	ID          string   `json:"id"`
	BrandID     string   `json:"brand_id"`
	Platform    Platform `json:"platform"`
	SourceType  string   `json:"source_type"`
	SourceValue string   `json:"source_value"`
	IsActive    bool     `json:"is_active"`
}

// MonitoredDomain is the legacy target shape, read only when no active brand
// sources exist. Domain-only, google-only.
type MonitoredDomain struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Platform  Platform  `json:"platform"`
	IsActive  bool      `json:"is_active"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Target is one resolved scrape target. Brand sources and legacy monitored
// domains both resolve to this shape so they share the downstream pipeline.
type Target struct {
	SourceID    string   `json:"source_id,omitempty"`
	BrandID     string   `json:"brand_id,omitempty"`
	BrandName   string   `json:"brand_name,omitempty"`
	Platform    Platform `json:"platform"`
	SourceType  string   `json:"source_type"`
	SourceValue string   `json:"source_value"`
}

// Label is the stable key used for this target in run results and error
// strings: "brand:platform:value" for brand sources, the bare domain for
// legacy targets.
func (t Target) Label() string {
	if t.BrandName == "" {
		return t.SourceValue
	}
	return t.BrandName + ":" + string(t.Platform) + ":" + t.SourceValue
}
