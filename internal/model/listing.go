package model

import "time"

// ListingStatus は物件掲載の公開状態を表す。
type ListingStatus string

const (
	// ListingStatusDraft は下書き（非公開）。
	ListingStatusDraft ListingStatus = "draft"
	// ListingStatusActive は公開中。
	ListingStatusActive ListingStatus = "active"
	// ListingStatusArchived は掲載終了。
	ListingStatusArchived ListingStatus = "archived"
)

// Listing は賃貸物件の掲載情報を表す。
type Listing struct {
	ID            string        `json:"id"`
	AgentID       string        `json:"agent_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Address       string        `json:"address"`
	City          string        `json:"city"`
	PricePerMonth float64       `json:"price_per_month"`
	Status        ListingStatus `json:"status"`
	CoverImageURL string        `json:"cover_image_url"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// SavedListing はテナントがブックマークした物件を表す。
type SavedListing struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ListingID string    `json:"listing_id"`
	Listing   *Listing  `json:"listing,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
