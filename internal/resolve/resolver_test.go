package resolve

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/store"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "resolve.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return NewResolver(st)
}

func TestProposeMatch_CreatesFreshReference(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	ref, err := r.ProposeMatch(ctx, "V1", Proposal{
		PartNumber: "now-01648",
		Tier:       model.TierMedium,
		Note:       "catalog part number join",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TierMedium, ref.Tier)
	require.NotNil(t, ref.PartNumber)
	assert.Equal(t, "NOW-01648", *ref.PartNumber)
	assert.Nil(t, ref.Barcode)
	assert.True(t, ref.Matched())
}

func TestProposeMatch_WeakerConflictRecordedNotApplied(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.ProposeMatch(ctx, "V1", Proposal{PartNumber: "NOW-01648", Tier: model.TierMedium})
	require.NoError(t, err)

	ref, err := r.ProposeMatch(ctx, "V1", Proposal{PartNumber: "NOW-99999", Tier: model.TierLow})
	require.NoError(t, err)

	assert.Equal(t, model.TierMedium, ref.Tier)
	require.NotNil(t, ref.PartNumber)
	assert.Equal(t, "NOW-01648", *ref.PartNumber)
	assert.Contains(t, ref.Notes, "NOW-99999")
	assert.Contains(t, ref.Notes, "conflicting")

	stored, err := r.Resolve(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "NOW-01648", *stored.PartNumber)
}

func TestProposeMatch_StrongerEvidenceUpgrades(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.ProposeMatch(ctx, "V1", Proposal{Barcode: "8801234567890", Tier: model.TierLow})
	require.NoError(t, err)

	ref, err := r.ProposeMatch(ctx, "V1", Proposal{
		Barcode: "8809876543210",
		Tier:    model.TierHigh,
		Note:    "image verification",
	})
	require.NoError(t, err)

	assert.Equal(t, model.TierHigh, ref.Tier)
	require.NotNil(t, ref.Barcode)
	assert.Equal(t, "8809876543210", *ref.Barcode)
	// The displaced value survives in notes.
	assert.Contains(t, ref.Notes, "8801234567890")
}

func TestProposeMatch_EqualTierOverwrites(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.ProposeMatch(ctx, "V1", Proposal{PartNumber: "ABC-1", Tier: model.TierMedium})
	require.NoError(t, err)

	ref, err := r.ProposeMatch(ctx, "V1", Proposal{PartNumber: "ABC-2", Tier: model.TierMedium})
	require.NoError(t, err)
	assert.Equal(t, "ABC-2", *ref.PartNumber)
	assert.Equal(t, model.TierMedium, ref.Tier)
}

func TestProposeMatch_MalformedIdentifiersStoreNull(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	// Malformed inputs are a successful "no usable identifier", not an error.
	ref, err := r.ProposeMatch(ctx, "V1", Proposal{
		Barcode:    "N/A",
		PartNumber: "see description",
		Tier:       model.TierLow,
	})
	require.NoError(t, err)
	assert.Nil(t, ref.Barcode)
	assert.Nil(t, ref.PartNumber)
	assert.False(t, ref.Matched())
}

func TestProposeMatch_AdditiveWeakerEvidenceNoted(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.ProposeMatch(ctx, "V1", Proposal{Barcode: "8801234567890", Tier: model.TierMedium})
	require.NoError(t, err)

	// A weaker proposal adding a part number is not applied, but it is
	// not lost either.
	ref, err := r.ProposeMatch(ctx, "V1", Proposal{PartNumber: "NOW-01648", Tier: model.TierLow})
	require.NoError(t, err)
	assert.Nil(t, ref.PartNumber)
	assert.Equal(t, model.TierMedium, ref.Tier)
	assert.Contains(t, ref.Notes, "unapplied")
	assert.Contains(t, ref.Notes, "NOW-01648")
}

func TestProposeMatch_IdentifierFreeEvidenceKeepsTier(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.ProposeMatch(ctx, "V1", Proposal{Barcode: "8801234567890", Tier: model.TierMedium})
	require.NoError(t, err)

	ref, err := r.ProposeMatch(ctx, "V1", Proposal{Barcode: "N/A", Tier: model.TierHigh})
	require.NoError(t, err)
	assert.Equal(t, model.TierMedium, ref.Tier)
	require.NotNil(t, ref.Barcode)
	assert.Equal(t, "8801234567890", *ref.Barcode)
}

func TestProposeMatch_ConcurrentMixedTiers(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.ProposeMatch(ctx, "V1", Proposal{Barcode: "8801234567890", Tier: model.TierMedium})
	require.NoError(t, err)

	const perTier = 4
	var g errgroup.Group
	for i := 0; i < perTier; i++ {
		g.Go(func() error {
			// Confirming high-tier evidence.
			_, err := r.ProposeMatch(ctx, "V1", Proposal{Barcode: "8801234567890", Tier: model.TierHigh})
			return err
		})
		g.Go(func() error {
			// Conflicting low-tier evidence.
			_, err := r.ProposeMatch(ctx, "V1", Proposal{Barcode: "8809876543210", Tier: model.TierLow})
			return err
		})
	}
	require.NoError(t, g.Wait())

	ref, err := r.Resolve(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, model.TierHigh, ref.Tier)
	require.NotNil(t, ref.Barcode)
	assert.Equal(t, "8801234567890", *ref.Barcode)
	// Every rejected proposal left its audit note.
	assert.Equal(t, perTier, strings.Count(ref.Notes, "conflicting low evidence"))
}

func TestProposeMatch_ManualVerificationIsTerminal(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.ProposeMatch(ctx, "V1", Proposal{Barcode: "8801234567890", Tier: model.TierMedium})
	require.NoError(t, err)
	_, err = r.Verify(ctx, "V1", "checked against supplier invoice")
	require.NoError(t, err)

	_, err = r.ProposeMatch(ctx, "V1", Proposal{Barcode: "8809999999999", Tier: model.TierHigh})
	assert.ErrorIs(t, err, ErrNeedsHumanReview)

	ref, err := r.Resolve(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "8801234567890", *ref.Barcode)
	assert.Equal(t, model.TierHigh, ref.Tier)
	assert.True(t, ref.ManuallyVerified)
}

func TestRecordFirstSight(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	seen := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, r.RecordFirstSight(ctx, "V1", "vitamins", "Omega 3", seen))

	ref, err := r.Resolve(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "vitamins", ref.FirstCategory)
	assert.Equal(t, model.TierUnverified, ref.Tier)
	assert.False(t, ref.Matched())

	// A second sighting never rewrites first-discovery facts.
	require.NoError(t, r.RecordFirstSight(ctx, "V1", "supplements", "renamed", seen.Add(time.Hour)))
	ref, err = r.Resolve(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "vitamins", ref.FirstCategory)
	assert.Equal(t, "Omega 3", ref.FirstName)
}

func TestResolve_NeverSeen(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrReferenceNotFound)
}

func TestAppendNote_PipeSeparated(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	notes := appendNote("", at, "first")
	notes = appendNote(notes, at.Add(time.Minute), "second")

	parts := strings.Split(notes, " | ")
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "first")
	assert.Contains(t, parts[1], "second")
	assert.Contains(t, parts[0], "2026-03-14T10:00:00Z")
}
