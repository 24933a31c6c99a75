package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/resolve"
	"github.com/brich-labs/marketwatch/internal/store"
)

func newTestService(t *testing.T, opts Options) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return NewService(st, resolve.NewResolver(st), opts), st
}

func price(v int64) *int64 { return &v }

func sampleListing(at time.Time) CategoryListing {
	return CategoryListing{
		Category:     "vitamins",
		ExternalCode: "194176",
		CapturedAt:   at,
		SourceRef:    "page-1",
		Records: []model.ListingRecord{
			{VendorItemID: "v-1", Name: "Omega 3", Rank: 1, CurrentPrice: price(12900)},
			{VendorItemID: "v-2", Name: "Vitamin C", Rank: 2, CurrentPrice: price(8900)},
			{VendorItemID: "", Name: "broken row", Rank: 3},
		},
	}
}

func TestIngestListing(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	n, err := svc.IngestListing(ctx, sampleListing(at))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cat, err := st.GetCategory(ctx, "vitamins")
	require.NoError(t, err)

	snaps, err := st.LatestSnapshots(ctx, cat.ID, 1)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Finalized())

	obs, err := st.Observations(ctx, snaps[0].ID)
	require.NoError(t, err)
	// The record without a vendor item id is dropped.
	assert.Len(t, obs, 2)

	// First sightings become unverified references.
	ref, err := st.GetReference(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, "vitamins", ref.FirstCategory)
	assert.Equal(t, model.TierUnverified, ref.Tier)

	// The checkpoint advanced.
	last, err := st.LastIngestSuccess(ctx, "listing", "vitamins")
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestIngestListing_DuplicateRejectedAndLogged(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	_, err := svc.IngestListing(ctx, sampleListing(at))
	require.NoError(t, err)

	_, err = svc.IngestListing(ctx, sampleListing(at))
	assert.ErrorIs(t, err, store.ErrDuplicateSnapshot)

	// The failed run does not move the checkpoint forward as a success twice;
	// history still records both attempts.
	last, err := st.LastIngestSuccess(ctx, "listing", "vitamins")
	require.NoError(t, err)
	require.NotNil(t, last)
}

func TestIngestListing_OverwriteReplaces(t *testing.T) {
	svc, st := newTestService(t, Options{Overwrite: true})
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	_, err := svc.IngestListing(ctx, sampleListing(at))
	require.NoError(t, err)

	redo := sampleListing(at)
	redo.Records = redo.Records[:1]
	n, err := svc.IngestListing(ctx, redo)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cat, err := st.GetCategory(ctx, "vitamins")
	require.NoError(t, err)
	snaps, err := st.LatestSnapshots(ctx, cat.ID, 5)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}

func TestIngestAll_DuplicateDoesNotHaltOthers(t *testing.T) {
	svc, st := newTestService(t, Options{Concurrency: 2})
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	_, err := svc.IngestListing(ctx, sampleListing(at))
	require.NoError(t, err)

	other := CategoryListing{
		Category:   "beauty",
		CapturedAt: at,
		Records:    []model.ListingRecord{{VendorItemID: "b-1", Name: "Serum", Rank: 1}},
	}
	total, err := svc.IngestAll(ctx, []CategoryListing{sampleListing(at), other})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, err = st.GetCategory(ctx, "beauty")
	assert.NoError(t, err)
}

func TestIngestListing_Validation(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.IngestListing(ctx, CategoryListing{CapturedAt: time.Now()})
	assert.Error(t, err)

	_, err = svc.IngestListing(ctx, CategoryListing{Category: "vitamins"})
	assert.Error(t, err)
}

func TestLoadListings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrape.yaml")
	content := `listings:
  - category: vitamins
    external_code: "194176"
    captured_at: 2026-03-14T09:00:00Z
    source_ref: page-1
    records:
      - vendor_item_id: v-1
        name: Omega 3
        rank: 1
        current_price: 12900
      - vendor_item_id: v-2
        name: Vitamin C
        rank: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	listings, err := LoadListings(path)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "vitamins", listings[0].Category)
	require.Len(t, listings[0].Records, 2)
	assert.Equal(t, 1, listings[0].Records[0].Rank)
	require.NotNil(t, listings[0].Records[0].CurrentPrice)
	assert.Equal(t, int64(12900), *listings[0].Records[0].CurrentPrice)

	_, err = LoadListings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
