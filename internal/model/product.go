package model

import "time"

// Category is a named partition of the marketplace catalog. Categories are
// immutable once created and looked up by name or external code.
type Category struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	ExternalCode string    `json:"external_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Snapshot is one discrete observation of a category's product listing at a
// point in time. A snapshot becomes visible to readers only once finalized;
// until then its observations are still being written.
type Snapshot struct {
	ID          string     `json:"id"`
	CategoryID  int64      `json:"category_id"`
	CapturedAt  time.Time  `json:"captured_at"`
	SourceRef   string     `json:"source_ref,omitempty"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Finalized reports whether the snapshot is complete and readable.
func (s *Snapshot) Finalized() bool {
	return s.FinalizedAt != nil
}

// ProductObservation is one product's recorded attributes within a single
// snapshot. Missing upstream values stay nil rather than defaulting to zero,
// so downstream comparisons can tell "absent" from "zero".
type ProductObservation struct {
	SnapshotID    string   `json:"snapshot_id"`
	VendorItemID  string   `json:"vendor_item_id"`
	Name          string   `json:"name"`
	Rank          *int     `json:"rank,omitempty"`
	CurrentPrice  *int64   `json:"current_price,omitempty"`
	OriginalPrice *int64   `json:"original_price,omitempty"`
	DiscountRate  *float64 `json:"discount_rate,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	ReviewCount   *int     `json:"review_count,omitempty"`
	InStock       *bool    `json:"in_stock,omitempty"`
	URL           string   `json:"url,omitempty"`
}

// ListingRecord is one scraped product row as delivered by the scraping
// collaborator. Rank is positional within the scraped page.
type ListingRecord struct {
	VendorItemID  string   `json:"vendor_item_id" yaml:"vendor_item_id"`
	Name          string   `json:"name" yaml:"name"`
	Rank          int      `json:"rank" yaml:"rank"`
	CurrentPrice  *int64   `json:"current_price,omitempty" yaml:"current_price,omitempty"`
	OriginalPrice *int64   `json:"original_price,omitempty" yaml:"original_price,omitempty"`
	DiscountRate  *float64 `json:"discount_rate,omitempty" yaml:"discount_rate,omitempty"`
	Rating        *float64 `json:"rating,omitempty" yaml:"rating,omitempty"`
	ReviewCount   *int     `json:"review_count,omitempty" yaml:"review_count,omitempty"`
	InStock       *bool    `json:"in_stock,omitempty" yaml:"in_stock,omitempty"`
	URL           string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// Observation converts a listing record into the observation stored under the
// given snapshot.
func (r ListingRecord) Observation(snapshotID string) ProductObservation {
	rank := r.Rank
	var rankPtr *int
	if rank > 0 {
		rankPtr = &rank
	}
	return ProductObservation{
		SnapshotID:    snapshotID,
		VendorItemID:  r.VendorItemID,
		Name:          r.Name,
		Rank:          rankPtr,
		CurrentPrice:  r.CurrentPrice,
		OriginalPrice: r.OriginalPrice,
		DiscountRate:  r.DiscountRate,
		Rating:        r.Rating,
		ReviewCount:   r.ReviewCount,
		InStock:       r.InStock,
		URL:           r.URL,
	}
}
