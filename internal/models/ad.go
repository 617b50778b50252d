package models

import (
	"encoding/json"
	"time"
)

// Platform identifies the upstream ad catalog a creative was collected from.
type Platform string

const (
	PlatformMeta      Platform = "meta"
	PlatformGoogle    Platform = "google"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
)

// Media types for normalized ads.
const (
	MediaImage = "image"
	MediaVideo = "video"
	MediaText  = "text"
)

// Ad formats. Formats are a superset of media types: carousel and reels
// creatives still carry an image or video media type.
const (
	FormatImage    = "image"
	FormatVideo    = "video"
	FormatCarousel = "carousel"
	FormatReels    = "reels"
	FormatText     = "text"
)

// NormalizedAd is the single schema every platform scraper produces. The
// (SourceID, Platform) pair is the cross-run identity of a creative: scrapers
// derive SourceID deterministically so repeated runs re-discover the same row.
type NormalizedAd struct {
	SourceID            string          `json:"source_id"`
	Platform            Platform        `json:"platform"`
	Format              string          `json:"format"`
	AdvertiserName      string          `json:"advertiser_name"`
	AdvertiserHandle    string          `json:"advertiser_handle,omitempty"`
	AdvertiserAvatarURL string          `json:"advertiser_avatar_url,omitempty"`
	ThumbnailURL        string          `json:"thumbnail_url"`
	PreviewURL          string          `json:"preview_url,omitempty"`
	MediaType           string          `json:"media_type"`
	AdCopy              string          `json:"ad_copy,omitempty"`
	CTAText             string          `json:"cta_text,omitempty"`
	Likes               *int            `json:"likes,omitempty"`
	Comments            *int            `json:"comments,omitempty"`
	Shares              *int            `json:"shares,omitempty"`
	StartDate           *time.Time      `json:"start_date,omitempty"`
	EndDate             *time.Time      `json:"end_date,omitempty"`
	Tags                []string        `json:"tags,omitempty"`
	LandingPageURL      string          `json:"landing_page_url,omitempty"`
	Domain              string          `json:"domain,omitempty"`
	CreativeID          string          `json:"creative_id,omitempty"`
	BrandID             string          `json:"brand_id,omitempty"`
	RawData             json.RawMessage `json:"raw_data,omitempty"`
}

// IsText reports whether the ad is a pure text creative. Text ads are the one
// case where an empty thumbnail URL is valid.
func (a *NormalizedAd) IsText() bool {
	return a.MediaType == MediaText
}

// UpsertStats summarizes one store upsert batch. New counts inserts, Updated
// counts conflict-updates; rejected rows are counted in neither.
type UpsertStats struct {
	New      int `json:"new"`
	Updated  int `json:"updated"`
	Total    int `json:"total"`
	Rejected int `json:"rejected,omitempty"`
}

// Add accumulates another batch's stats.
func (s *UpsertStats) Add(o UpsertStats) {
	s.New += o.New
	s.Updated += o.Updated
	s.Total += o.Total
	s.Rejected += o.Rejected
}
