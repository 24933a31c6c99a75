// Package quality audits the stored data for integrity problems that the
// write path cannot prevent on its own: half-written snapshots, observations
// whose snapshot is gone, and identifiers that no longer pass normalization.
// All checks are read-only.
package quality

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/resolve"
	"github.com/brich-labs/marketwatch/internal/store"
)

// Severity classifies how urgent an issue is.
type Severity string

const (
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Issue is one finding from an audit run.
type Issue struct {
	Severity Severity `json:"severity"`
	Kind     string   `json:"kind"`
	Subject  string   `json:"subject"`
	Detail   string   `json:"detail"`
}

// CategoryMatchRate reports how many references first seen in a category
// carry a usable canonical key.
type CategoryMatchRate struct {
	Category string  `json:"category"`
	Total    int     `json:"total"`
	Matched  int     `json:"matched"`
	Rate     float64 `json:"rate"`
}

// Report is the outcome of one audit run.
type Report struct {
	CheckedAt          time.Time           `json:"checked_at"`
	OrphanObservations int64               `json:"orphan_observations"`
	StaleSnapshots     int                 `json:"stale_snapshots"`
	MalformedIDs       int                 `json:"malformed_identifiers"`
	MatchRates         []CategoryMatchRate `json:"match_rates"`
	Issues             []Issue             `json:"issues,omitempty"`
}

// Healthy reports whether the run found no error-level issues.
func (r *Report) Healthy() bool {
	for _, iss := range r.Issues {
		if iss.Severity == SeverityError {
			return false
		}
	}
	return true
}

// DefaultStaleAfter is how old an unfinalized snapshot must be before it is
// flagged. Fresh ones may still be mid-ingest.
const DefaultStaleAfter = time.Hour

// Checker runs the audit against a store.
type Checker struct {
	store      store.Store
	staleAfter time.Duration
	log        *zap.Logger
}

func NewChecker(st store.Store, staleAfter time.Duration) *Checker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Checker{
		store:      st,
		staleAfter: staleAfter,
		log:        zap.L().With(zap.String("component", "quality")),
	}
}

// Run executes every check and returns the combined report.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	report := &Report{CheckedAt: time.Now().UTC()}

	if err := c.checkOrphans(ctx, report); err != nil {
		return nil, err
	}
	if err := c.checkStaleSnapshots(ctx, report); err != nil {
		return nil, err
	}
	if err := c.checkIdentifiers(ctx, report); err != nil {
		return nil, err
	}

	c.log.Info("audit complete",
		zap.Int("issues", len(report.Issues)),
		zap.Bool("healthy", report.Healthy()),
	)
	return report, nil
}

func (c *Checker) checkOrphans(ctx context.Context, report *Report) error {
	n, err := c.store.OrphanObservationCount(ctx)
	if err != nil {
		return err
	}
	report.OrphanObservations = n
	if n > 0 {
		report.Issues = append(report.Issues, Issue{
			Severity: SeverityError,
			Kind:     "orphan_observations",
			Subject:  "product_observations",
			Detail:   fmt.Sprintf("%d observations reference a missing snapshot", n),
		})
	}
	return nil
}

func (c *Checker) checkStaleSnapshots(ctx context.Context, report *Report) error {
	cutoff := time.Now().UTC().Add(-c.staleAfter)
	snaps, err := c.store.StaleSnapshots(ctx, cutoff)
	if err != nil {
		return err
	}
	report.StaleSnapshots = len(snaps)
	for _, snap := range snaps {
		report.Issues = append(report.Issues, Issue{
			Severity: SeverityWarn,
			Kind:     "stale_snapshot",
			Subject:  snap.ID,
			Detail:   fmt.Sprintf("never finalized, created %s", snap.CreatedAt.Format(time.RFC3339)),
		})
	}
	return nil
}

// checkIdentifiers re-normalizes every stored barcode and part number. A
// stored value the normalizer would reject or rewrite means it was written
// by a path that skipped normalization.
func (c *Checker) checkIdentifiers(ctx context.Context, report *Report) error {
	refs, err := c.store.ListReferences(ctx, false)
	if err != nil {
		return err
	}

	rates := make(map[string]*CategoryMatchRate)
	for _, ref := range refs {
		cat := ref.FirstCategory
		if cat == "" {
			cat = "(unknown)"
		}
		rate, ok := rates[cat]
		if !ok {
			rate = &CategoryMatchRate{Category: cat}
			rates[cat] = rate
		}
		rate.Total++
		if ref.Matched() {
			rate.Matched++
		}

		if bad := malformed(ref); bad != "" {
			report.MalformedIDs++
			report.Issues = append(report.Issues, Issue{
				Severity: SeverityError,
				Kind:     "malformed_identifier",
				Subject:  ref.VendorItemID,
				Detail:   bad,
			})
		}
	}

	for _, rate := range rates {
		if rate.Total > 0 {
			rate.Rate = float64(rate.Matched) / float64(rate.Total)
		}
		report.MatchRates = append(report.MatchRates, *rate)
	}
	sort.Slice(report.MatchRates, func(i, j int) bool {
		return report.MatchRates[i].Category < report.MatchRates[j].Category
	})
	return nil
}

func malformed(ref model.MatchingReference) string {
	if ref.Barcode != nil {
		norm := resolve.NormalizeBarcode(*ref.Barcode)
		if norm == nil || *norm != *ref.Barcode {
			return fmt.Sprintf("stored barcode %q fails normalization", *ref.Barcode)
		}
	}
	if ref.PartNumber != nil {
		norm := resolve.NormalizePartNumber(*ref.PartNumber)
		if norm == nil || *norm != *ref.PartNumber {
			return fmt.Sprintf("stored part number %q fails normalization", *ref.PartNumber)
		}
	}
	return ""
}
