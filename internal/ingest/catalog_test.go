package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/brich-labs/marketwatch/internal/fetcher"
	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/resolve"
)

func writeFeed(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Products")
	require.NoError(t, err)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, c := range row {
			r.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "feed.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestParseFeed(t *testing.T) {
	path := writeFeed(t, [][]string{
		{"Product_ID", "Name", "Barcode", "Part_Number", "Price", "Stock", "Stock_Status", "Sales_Quantity", "Revenue"},
		{"c-1", "NOW Omega 3", "'8801234567890'", "now-01648", "15900", "42", "Selling", "120", "1908000"},
		{"c-2", "Bad Identifiers", "N/A", "see notes", "9900", "0", "sold_out", "5", "49500"},
		{"", "no id row", "", "", "", "", "", "", ""},
	})

	items, err := ParseFeed(path, fetcher.XLSXOptions{SheetName: "Products"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "c-1", first.VendorItemID)
	require.NotNil(t, first.Barcode)
	assert.Equal(t, "8801234567890", *first.Barcode)
	require.NotNil(t, first.PartNumber)
	assert.Equal(t, "NOW-01648", *first.PartNumber)
	assert.Equal(t, int64(15900), first.Price)
	assert.Equal(t, 42, first.Stock)
	assert.Equal(t, model.StockStatusSelling, first.StockStatus)
	assert.Equal(t, int64(120), first.SalesQuantity)

	second := items[1]
	assert.Nil(t, second.Barcode)
	assert.Nil(t, second.PartNumber)
	assert.Equal(t, model.StockStatusSoldOut, second.StockStatus)
}

func TestParseFeed_NoVendorColumn(t *testing.T) {
	path := writeFeed(t, [][]string{
		{"Something", "Else"},
		{"a", "b"},
	})

	_, err := ParseFeed(path, fetcher.XLSXOptions{SheetName: "Products"})
	assert.Error(t, err)
}

func TestImportCatalogAndAutoMatch(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// Three marketplace items: one exact name match, one barcode join, one
	// with nothing in common.
	listing := CategoryListing{
		Category:   "vitamins",
		CapturedAt: at,
		Records: []model.ListingRecord{
			{VendorItemID: "v-name", Name: "NOW Foods Omega 3 200 softgels", Rank: 1},
			{VendorItemID: "v-code", Name: "unrelated title", Rank: 2},
			{VendorItemID: "v-none", Name: "completely different product", Rank: 3},
		},
	}
	_, err := svc.IngestListing(ctx, listing)
	require.NoError(t, err)

	// v-code already carries a barcode from earlier evidence.
	resolver := resolve.NewResolver(st)
	_, err = resolver.ProposeMatch(ctx, "v-code", resolve.Proposal{
		Barcode: "8809999999999", Tier: model.TierUnverified,
	})
	require.NoError(t, err)

	barcode := "8801234567890"
	feedBarcode := "8809999999999"
	_, err = svc.ImportCatalog(ctx, []model.CatalogItem{
		{VendorItemID: "c-1", Name: "NOW Foods Omega 3 200 softgels", Barcode: &barcode, SalesQuantity: 10, RefreshedAt: at},
		{VendorItemID: "c-2", Name: "some partner listing", Barcode: &feedBarcode, SalesQuantity: 5, RefreshedAt: at},
	})
	require.NoError(t, err)

	applied, err := svc.AutoMatch(ctx, 0.6)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	byName, err := st.GetReference(ctx, "v-name")
	require.NoError(t, err)
	assert.Equal(t, model.TierMedium, byName.Tier)
	require.NotNil(t, byName.Barcode)
	assert.Equal(t, barcode, *byName.Barcode)

	byCode, err := st.GetReference(ctx, "v-code")
	require.NoError(t, err)
	assert.Equal(t, model.TierLow, byCode.Tier)
	assert.Contains(t, byCode.Notes, "c-2")

	untouched, err := st.GetReference(ctx, "v-none")
	require.NoError(t, err)
	assert.Equal(t, model.TierUnverified, untouched.Tier)
	assert.Nil(t, untouched.Barcode)

	// The feed import advanced its own checkpoint.
	last, err := st.LastIngestSuccess(ctx, "catalog", "feed")
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestAutoMatch_SkipsManuallyVerified(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	_, err := svc.IngestListing(ctx, CategoryListing{
		Category:   "vitamins",
		CapturedAt: at,
		Records:    []model.ListingRecord{{VendorItemID: "v-1", Name: "Omega 3", Rank: 1}},
	})
	require.NoError(t, err)

	resolver := resolve.NewResolver(st)
	_, err = resolver.ProposeMatch(ctx, "v-1", resolve.Proposal{Barcode: "8801111111111", Tier: model.TierMedium})
	require.NoError(t, err)
	_, err = resolver.Verify(ctx, "v-1", "supplier confirmed")
	require.NoError(t, err)

	otherBarcode := "8802222222222"
	_, err = svc.ImportCatalog(ctx, []model.CatalogItem{
		{VendorItemID: "c-1", Name: "Omega 3", Barcode: &otherBarcode, RefreshedAt: at},
	})
	require.NoError(t, err)

	applied, err := svc.AutoMatch(ctx, 0.6)
	require.NoError(t, err)
	assert.Zero(t, applied)

	ref, err := st.GetReference(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, "8801111111111", *ref.Barcode)
}
