package models

import "time"

// Property is one collected listing, deduplicated and upserted over
// successive runs. OlxID is the source-provided natural key.
type Property struct {
	ID             int64      `json:"id" db:"id"`
	OlxID          string     `json:"olx_id" db:"olx_id"`
	Title          string     `json:"title" db:"title"`
	PriceUSD       float64    `json:"price_usd" db:"price_usd"`
	Currency       string     `json:"currency" db:"currency"`
	Area           float64    `json:"area" db:"area"`
	Rooms          int        `json:"rooms" db:"rooms"`
	Floor          int        `json:"floor" db:"floor"`
	TotalFloors    int        `json:"total_floors" db:"total_floors"`
	District       string     `json:"district" db:"district"`
	Street         string     `json:"street" db:"street"`
	FullLocation   string     `json:"full_location" db:"full_location"`
	Description    string     `json:"description" db:"description"`
	SellerType     string     `json:"seller_type" db:"seller_type"` // owner, agency, unknown
	ListingType    string     `json:"listing_type" db:"listing_type"`
	ListingURL     string     `json:"listing_url" db:"listing_url"`
	ImageURL       string     `json:"image_url" db:"image_url"`
	DistrictSource string     `json:"district_source" db:"district_source"` // street_mapping, text_heuristic, unknown
	IsPromoted     bool       `json:"is_promoted" db:"is_promoted"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	FirstSeenAt    time.Time  `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt     time.Time  `json:"last_seen_at" db:"last_seen_at"`
	ScrapedAt      *time.Time `json:"scraped_at" db:"scraped_at"`
}

// PricePoint is one append-only price observation. A row is written when a
// property is first stored and again on every observed price change.
type PricePoint struct {
	ID         int64     `json:"id" db:"id"`
	PropertyID int64     `json:"property_id" db:"property_id"`
	OlxID      string    `json:"olx_id" db:"olx_id"`
	PriceUSD   float64   `json:"price_usd" db:"price_usd"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// StreetMapping resolves a street name to its district. Streets are unique.
type StreetMapping struct {
	Street   string `json:"street" db:"street" yaml:"street"`
	District string `json:"district" db:"district" yaml:"district"`
}

// PropertyStats is the on-read aggregate over active properties.
type PropertyStats struct {
	TotalActive int     `json:"total_active"`
	OwnerCount  int     `json:"owner_count"`
	AgencyCount int     `json:"agency_count"`
	AvgPriceUSD float64 `json:"avg_price_usd"`
	LastUpdate  string  `json:"last_update,omitempty"`
}
