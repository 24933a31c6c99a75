// Package detect compares consecutive snapshots of a category and emits typed
// change events: rank shifts, price shifts, new entrants, and delistings.
package detect

import (
	"sort"
	"time"

	"github.com/brich-labs/marketwatch/internal/model"
)

// Diff computes the change events between two consecutive snapshots of the
// same category. prev may be older in capture time than curr; occurredAt is
// stamped on every event (callers pass curr's capture time).
//
// The comparison is pure and deterministic: the same pair of observation sets
// always yields the same events. Missing rank or price on either side
// suppresses that event type for the item without blocking the other.
func Diff(categoryID int64, prev, curr []model.ProductObservation, occurredAt time.Time) []model.ChangeEvent {
	prevByID := indexByVendor(prev)
	currByID := indexByVendor(curr)

	var events []model.ChangeEvent

	for _, c := range curr {
		p, existed := prevByID[c.VendorItemID]
		if !existed {
			var newVal *int64
			if c.Rank != nil {
				v := int64(*c.Rank)
				newVal = &v
			}
			events = append(events, model.ChangeEvent{
				CategoryID:   categoryID,
				VendorItemID: c.VendorItemID,
				Type:         model.EventNewProduct,
				NewValue:     newVal,
				OccurredAt:   occurredAt,
				Description:  model.Describe(model.EventNewProduct, c.Name, nil, newVal),
			})
			continue
		}

		if c.Rank != nil && p.Rank != nil && *c.Rank != *p.Rank {
			oldVal, newVal := int64(*p.Rank), int64(*c.Rank)
			events = append(events, model.ChangeEvent{
				CategoryID:   categoryID,
				VendorItemID: c.VendorItemID,
				Type:         model.EventRankChange,
				OldValue:     &oldVal,
				NewValue:     &newVal,
				// Positive magnitude means the item rose in the ranking.
				Magnitude:   oldVal - newVal,
				OccurredAt:  occurredAt,
				Description: model.Describe(model.EventRankChange, c.Name, &oldVal, &newVal),
			})
		}

		if c.CurrentPrice != nil && p.CurrentPrice != nil && *c.CurrentPrice != *p.CurrentPrice {
			oldVal, newVal := *p.CurrentPrice, *c.CurrentPrice
			events = append(events, model.ChangeEvent{
				CategoryID:   categoryID,
				VendorItemID: c.VendorItemID,
				Type:         model.EventPriceChange,
				OldValue:     &oldVal,
				NewValue:     &newVal,
				// Positive magnitude means a price increase.
				Magnitude:   newVal - oldVal,
				OccurredAt:  occurredAt,
				Description: model.Describe(model.EventPriceChange, c.Name, &oldVal, &newVal),
			})
		}
	}

	// Delistings, in a stable order independent of map iteration.
	var gone []model.ProductObservation
	for _, p := range prev {
		if _, still := currByID[p.VendorItemID]; !still {
			gone = append(gone, p)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i].VendorItemID < gone[j].VendorItemID })
	for _, p := range gone {
		var oldVal *int64
		if p.Rank != nil {
			v := int64(*p.Rank)
			oldVal = &v
		}
		events = append(events, model.ChangeEvent{
			CategoryID:   categoryID,
			VendorItemID: p.VendorItemID,
			Type:         model.EventDelisted,
			OldValue:     oldVal,
			OccurredAt:   occurredAt,
			Description:  model.Describe(model.EventDelisted, p.Name, oldVal, nil),
		})
	}

	return events
}

func indexByVendor(obs []model.ProductObservation) map[string]model.ProductObservation {
	m := make(map[string]model.ProductObservation, len(obs))
	for _, o := range obs {
		m[o.VendorItemID] = o
	}
	return m
}
