// Package backfill selects high-performing but unmatched catalog items for
// inclusion in derived reports, gated by a dynamic sales-volume threshold.
package backfill

import (
	"math"
	"sort"
)

// DefaultPercentile is the sales-quantity percentile a candidate must clear.
const DefaultPercentile = 80.0

// FloorThreshold is used when the reference distribution is empty.
const FloorThreshold = 5.0

// Percentile computes the pth percentile of values using linear
// interpolation between closest ranks. Returns FloorThreshold for an empty
// input. The input slice is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return FloorThreshold
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	pos := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
