package detect

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

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "detect.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return NewService(st), st
}

func ingestSnapshot(t *testing.T, st store.Store, categoryID int64, at time.Time, listing []model.ProductObservation) {
	t.Helper()
	ctx := context.Background()
	snap, err := st.CreateSnapshot(ctx, categoryID, at, "test", false)
	require.NoError(t, err)
	require.NoError(t, st.AppendObservations(ctx, snap.ID, listing))
	require.NoError(t, st.FinalizeSnapshot(ctx, snap.ID))
}

func TestService_NotEnoughHistory(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	cat, err := st.EnsureCategory(ctx, "health", "")
	require.NoError(t, err)
	ingestSnapshot(t, st, cat.ID, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), []model.ProductObservation{
		obs("A", "Omega 3", 1, 10000),
	})

	events, err := svc.RunCategory(ctx, *cat)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestService_UnfinalizedSnapshotInvisible(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	cat, err := st.EnsureCategory(ctx, "health", "")
	require.NoError(t, err)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ingestSnapshot(t, st, cat.ID, base, []model.ProductObservation{obs("A", "Omega 3", 1, 10000)})
	ingestSnapshot(t, st, cat.ID, base.Add(24*time.Hour), []model.ProductObservation{obs("A", "Omega 3", 2, 10000)})

	// A third snapshot still being written must not take part in detection.
	open, err := st.CreateSnapshot(ctx, cat.ID, base.Add(48*time.Hour), "", false)
	require.NoError(t, err)
	require.NoError(t, st.AppendObservations(ctx, open.ID, []model.ProductObservation{obs("A", "Omega 3", 9, 10000)}))

	events, err := svc.RunCategory(ctx, *cat)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventRankChange, events[0].Type)
	assert.Equal(t, int64(2), *events[0].NewValue)
}

func TestService_RunPersistsAcrossCategories(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	health, err := st.EnsureCategory(ctx, "health", "")
	require.NoError(t, err)
	ingestSnapshot(t, st, health.ID, base, []model.ProductObservation{
		obs("A", "Omega 3", 1, 10000), obs("B", "Vitamin C", 2, 8000),
	})
	ingestSnapshot(t, st, health.ID, base.Add(24*time.Hour), []model.ProductObservation{
		obs("C", "Collagen", 1, 15000), obs("A", "Omega 3", 2, 10000),
	})

	// Single-snapshot category stays silent without failing the run.
	beauty, err := st.EnsureCategory(ctx, "beauty", "")
	require.NoError(t, err)
	ingestSnapshot(t, st, beauty.ID, base, []model.ProductObservation{obs("X", "Serum", 1, 30000)})

	total, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	stored, err := st.ListEvents(ctx, store.EventFilter{CategoryID: health.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	quiet, err := st.ListEvents(ctx, store.EventFilter{CategoryID: beauty.ID})
	require.NoError(t, err)
	assert.Empty(t, quiet)
}

func TestService_AdvancesCheckpoint(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	cat, err := st.EnsureCategory(ctx, "health", "")
	require.NoError(t, err)

	before, err := st.LastIngestSuccess(ctx, "detect", "health")
	require.NoError(t, err)
	assert.Nil(t, before)

	_, err = svc.RunCategory(ctx, *cat)
	require.NoError(t, err)

	after, err := st.LastIngestSuccess(ctx, "detect", "health")
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.WithinDuration(t, time.Now().UTC(), *after, time.Minute)
}
