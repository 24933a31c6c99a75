package model

import (
	"fmt"
	"time"
)

// ChangeEventType classifies what changed between two consecutive snapshots.
type ChangeEventType string

const (
	EventRankChange  ChangeEventType = "rank_change"
	EventPriceChange ChangeEventType = "price_change"
	EventNewProduct  ChangeEventType = "new_product"
	EventDelisted    ChangeEventType = "delisted"
)

// ChangeEvent is an immutable fact derived by comparing two consecutive
// snapshots of the same category. The change_events table is append-only and
// serves as the audit log of everything that ever changed.
type ChangeEvent struct {
	ID           string          `json:"id"`
	CategoryID   int64           `json:"category_id"`
	VendorItemID string          `json:"vendor_item_id"`
	Type         ChangeEventType `json:"type"`
	OldValue     *int64          `json:"old_value,omitempty"`
	NewValue     *int64          `json:"new_value,omitempty"`
	Magnitude    int64           `json:"magnitude"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Description  string          `json:"description"`
}

// Describe renders the human-readable description for an event. Rank
// magnitude is positive when the item rose in the ranking; price magnitude is
// positive on a price increase.
func Describe(typ ChangeEventType, name string, oldVal, newVal *int64) string {
	switch typ {
	case EventRankChange:
		return fmt.Sprintf("%s moved from rank %s to %s", name, formatVal(oldVal), formatVal(newVal))
	case EventPriceChange:
		return fmt.Sprintf("%s price changed from %s to %s", name, formatVal(oldVal), formatVal(newVal))
	case EventNewProduct:
		if newVal == nil {
			return fmt.Sprintf("%s entered the listing", name)
		}
		return fmt.Sprintf("%s entered the listing at rank %d", name, *newVal)
	case EventDelisted:
		if oldVal == nil {
			return fmt.Sprintf("%s left the listing", name)
		}
		return fmt.Sprintf("%s left the listing (was rank %d)", name, *oldVal)
	}
	return name
}

func formatVal(v *int64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *v)
}
