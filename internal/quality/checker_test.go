package quality

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/store"
)

func newTestChecker(t *testing.T, staleAfter time.Duration) (*Checker, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "quality.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return NewChecker(st, staleAfter), st
}

func putRef(t *testing.T, st store.Store, ref model.MatchingReference) {
	t.Helper()
	now := time.Now().UTC()
	if ref.FirstSeenAt.IsZero() {
		ref.FirstSeenAt = now
	}
	ref.CreatedAt = now
	ref.UpdatedAt = now
	if ref.Tier == "" {
		ref.Tier = model.TierUnverified
	}
	require.NoError(t, st.PutReference(context.Background(), &ref))
}

func TestRun_CleanStore(t *testing.T) {
	checker, _ := newTestChecker(t, time.Hour)

	report, err := checker.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Empty(t, report.Issues)
	assert.Zero(t, report.OrphanObservations)
	assert.Zero(t, report.StaleSnapshots)
}

func TestRun_StaleSnapshotFlagged(t *testing.T) {
	checker, st := newTestChecker(t, time.Nanosecond)
	ctx := context.Background()

	cat, err := st.EnsureCategory(ctx, "health", "")
	require.NoError(t, err)

	// One unfinalized snapshot and one finalized. With a nanosecond cutoff
	// only the unfinalized one should be flagged.
	stale, err := st.CreateSnapshot(ctx, cat.ID, time.Now().UTC().Add(-time.Hour), "", false)
	require.NoError(t, err)
	done, err := st.CreateSnapshot(ctx, cat.ID, time.Now().UTC(), "", false)
	require.NoError(t, err)
	require.NoError(t, st.FinalizeSnapshot(ctx, done.ID))

	time.Sleep(10 * time.Millisecond)

	report, err := checker.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleSnapshots)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "stale_snapshot", report.Issues[0].Kind)
	assert.Equal(t, stale.ID, report.Issues[0].Subject)
	assert.Equal(t, SeverityWarn, report.Issues[0].Severity)
	assert.True(t, report.Healthy(), "warnings alone keep the store healthy")
}

func TestRun_MalformedIdentifiers(t *testing.T) {
	checker, st := newTestChecker(t, time.Hour)

	short := "12345"
	good := "8801234567890"
	putRef(t, st, model.MatchingReference{
		VendorItemID:  "bad-barcode",
		FirstCategory: "health",
		Barcode:       &short,
		Tier:          model.TierLow,
	})
	putRef(t, st, model.MatchingReference{
		VendorItemID:  "fine",
		FirstCategory: "health",
		Barcode:       &good,
		Tier:          model.TierMedium,
	})

	lower := "now-01648"
	putRef(t, st, model.MatchingReference{
		VendorItemID:  "bad-part",
		FirstCategory: "beauty",
		PartNumber:    &lower,
		Tier:          model.TierLow,
	})

	report, err := checker.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	assert.Equal(t, 2, report.MalformedIDs)

	subjects := make([]string, 0, len(report.Issues))
	for _, iss := range report.Issues {
		assert.Equal(t, "malformed_identifier", iss.Kind)
		assert.Equal(t, SeverityError, iss.Severity)
		subjects = append(subjects, iss.Subject)
	}
	assert.ElementsMatch(t, []string{"bad-barcode", "bad-part"}, subjects)
}

func TestRun_MatchRates(t *testing.T) {
	checker, st := newTestChecker(t, time.Hour)

	bc := "8801234567890"
	putRef(t, st, model.MatchingReference{VendorItemID: "h-1", FirstCategory: "health", Barcode: &bc, Tier: model.TierMedium})
	putRef(t, st, model.MatchingReference{VendorItemID: "h-2", FirstCategory: "health"})
	putRef(t, st, model.MatchingReference{VendorItemID: "b-1", FirstCategory: "beauty"})

	report, err := checker.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.MatchRates, 2)

	// Sorted by category name.
	assert.Equal(t, "beauty", report.MatchRates[0].Category)
	assert.Zero(t, report.MatchRates[0].Matched)
	assert.Equal(t, "health", report.MatchRates[1].Category)
	assert.Equal(t, 2, report.MatchRates[1].Total)
	assert.Equal(t, 1, report.MatchRates[1].Matched)
	assert.InDelta(t, 0.5, report.MatchRates[1].Rate, 1e-9)
}
