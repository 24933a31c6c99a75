package backfill

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/model"
)

// Result is the outcome of one backfill selection run.
type Result struct {
	Items     []model.CatalogItem
	Threshold float64
	Note      string
}

// Selector applies the dynamic percentile filter to a full catalog.
type Selector struct {
	percentile float64
	log        *zap.Logger
}

func NewSelector() *Selector {
	return NewSelectorAt(DefaultPercentile)
}

// NewSelectorAt builds a selector with a non-default percentile. Values
// outside (0, 100] fall back to the default.
func NewSelectorAt(percentile float64) *Selector {
	if percentile <= 0 || percentile > 100 {
		percentile = DefaultPercentile
	}
	return &Selector{
		percentile: percentile,
		log:        zap.L().With(zap.String("component", "backfill")),
	}
}

// Threshold computes the sales-quantity cutoff over the catalog. Only items
// with a positive sales quantity take part in the distribution; an empty
// distribution falls back to the fixed floor.
func (s *Selector) Threshold(catalog []model.CatalogItem) float64 {
	var quantities []float64
	for _, item := range catalog {
		if item.SalesQuantity > 0 {
			quantities = append(quantities, float64(item.SalesQuantity))
		}
	}
	return Percentile(quantities, s.percentile)
}

// Select returns the catalog items worth including despite having no
// marketplace counterpart: not already matched, selling at or above the
// threshold, currently sellable, and in stock. matchedKeys holds the
// canonical keys (barcodes and part numbers) of the already-matched set.
// Output is sorted by descending sales quantity.
func (s *Selector) Select(matchedKeys map[string]bool, catalog []model.CatalogItem) Result {
	threshold := s.Threshold(catalog)

	var picked []model.CatalogItem
	for _, item := range catalog {
		if isMatched(matchedKeys, item) {
			continue
		}
		if float64(item.SalesQuantity) < threshold {
			continue
		}
		if !item.Sellable() || item.Stock <= 0 {
			continue
		}
		picked = append(picked, item)
	}

	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].SalesQuantity > picked[j].SalesQuantity
	})

	note := fmt.Sprintf("backfill threshold %.1f (p%.0f of sales quantity)", threshold, s.percentile)
	s.log.Info("backfill selection complete",
		zap.Float64("threshold", threshold),
		zap.Int("catalog_size", len(catalog)),
		zap.Int("selected", len(picked)),
	)
	return Result{Items: picked, Threshold: threshold, Note: note}
}

func isMatched(matchedKeys map[string]bool, item model.CatalogItem) bool {
	if item.Barcode != nil && matchedKeys[*item.Barcode] {
		return true
	}
	if item.PartNumber != nil && matchedKeys[*item.PartNumber] {
		return true
	}
	return false
}
