package model

import "time"

// MatchTier is the strength of evidence behind a matching reference's
// canonical key.
type MatchTier string

const (
	TierUnverified MatchTier = "unverified"
	TierLow        MatchTier = "low"
	TierMedium     MatchTier = "medium"
	TierHigh       MatchTier = "high"
)

// tierRanks orders tiers from weakest to strongest.
var tierRanks = map[MatchTier]int{
	TierUnverified: 0,
	TierLow:        1,
	TierMedium:     2,
	TierHigh:       3,
}

// Rank returns the tier's position in the monotonic ordering. Unknown tiers
// rank below unverified so malformed input can never win a comparison.
func (t MatchTier) Rank() int {
	if r, ok := tierRanks[t]; ok {
		return r
	}
	return -1
}

// Valid reports whether t is one of the four known tiers.
func (t MatchTier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// AtLeast reports whether t is at least as strong as other.
func (t MatchTier) AtLeast(other MatchTier) bool {
	return t.Rank() >= other.Rank()
}

// MatchingReference is the durable cross-marketplace identity record for one
// vendor item id. References are created on first encounter and never
// deleted; identity must stay addressable after a product is delisted.
type MatchingReference struct {
	VendorItemID     string    `json:"vendor_item_id"`
	FirstCategory    string    `json:"first_category,omitempty"`
	FirstName        string    `json:"first_name,omitempty"`
	FirstSeenAt      time.Time `json:"first_seen_at"`
	Barcode          *string   `json:"barcode,omitempty"`
	PartNumber       *string   `json:"part_number,omitempty"`
	Tier             MatchTier `json:"tier"`
	ManuallyVerified bool      `json:"manually_verified"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Matched reports whether the reference carries a usable canonical key.
func (r *MatchingReference) Matched() bool {
	return r.Barcode != nil || r.PartNumber != nil
}
