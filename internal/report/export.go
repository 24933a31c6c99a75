package report

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/brich-labs/marketwatch/internal/model"
)

var combinedHeader = []string{
	"status", "category", "market_item_id", "market_name", "market_rank",
	"market_price", "catalog_item_id", "catalog_name", "catalog_price",
	"sales_quantity", "price_diff", "price_diff_pct", "cheaper_side", "note",
}

// ExportCombined writes the combined listing to an XLSX workbook.
func ExportCombined(path string, rows []model.ReportRow) error {
	f := xlsx.NewFile()
	if err := addCombinedSheet(f, rows); err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

// ExportWorkbook writes the full report workbook: the combined listing plus
// recent change events and the per-category summary.
func ExportWorkbook(path string, rows []model.ReportRow, events []model.ChangeEvent, perfs []CategoryPerformance) error {
	f := xlsx.NewFile()
	if err := addCombinedSheet(f, rows); err != nil {
		return err
	}
	if err := addEventsSheet(f, events); err != nil {
		return err
	}
	if err := addCategoriesSheet(f, perfs); err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func addCombinedSheet(f *xlsx.File, rows []model.ReportRow) error {
	sheet, err := f.AddSheet("combined")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range combinedHeader {
		hr.AddCell().SetString(h)
	}

	for _, row := range rows {
		r := sheet.AddRow()
		r.AddCell().SetString(string(row.Status))
		r.AddCell().SetString(row.CategoryName)
		r.AddCell().SetString(row.MarketItemID)
		r.AddCell().SetString(row.MarketName)
		r.AddCell().SetString(intPtrString(row.MarketRank))
		r.AddCell().SetString(int64PtrString(row.MarketPrice))
		if row.Catalog != nil {
			r.AddCell().SetString(row.Catalog.VendorItemID)
			r.AddCell().SetString(row.Catalog.Name)
			r.AddCell().SetString(strconv.FormatInt(row.Catalog.Price, 10))
			r.AddCell().SetString(strconv.FormatInt(row.Catalog.SalesQuantity, 10))
		} else {
			for range 4 {
				r.AddCell()
			}
		}
		r.AddCell().SetString(int64PtrString(row.PriceDiff))
		r.AddCell().SetString(floatPtrString(row.PriceDiffPct))
		r.AddCell().SetString(row.CheaperSide)
		r.AddCell().SetString(row.Note)
	}
	return nil
}

func addEventsSheet(f *xlsx.File, events []model.ChangeEvent) error {
	sheet, err := f.AddSheet("events")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range []string{"occurred_at", "category_id", "vendor_item_id", "type", "old_value", "new_value", "magnitude", "description"} {
		hr.AddCell().SetString(h)
	}
	for _, e := range events {
		r := sheet.AddRow()
		r.AddCell().SetString(e.OccurredAt.Format("2006-01-02 15:04:05"))
		r.AddCell().SetString(strconv.FormatInt(e.CategoryID, 10))
		r.AddCell().SetString(e.VendorItemID)
		r.AddCell().SetString(string(e.Type))
		r.AddCell().SetString(int64PtrString(e.OldValue))
		r.AddCell().SetString(int64PtrString(e.NewValue))
		r.AddCell().SetString(strconv.FormatInt(e.Magnitude, 10))
		r.AddCell().SetString(e.Description)
	}
	return nil
}

func addCategoriesSheet(f *xlsx.File, perfs []CategoryPerformance) error {
	sheet, err := f.AddSheet("categories")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range []string{"category", "snapshots", "items", "avg_price", "new_products", "delistings"} {
		hr.AddCell().SetString(h)
	}
	for _, p := range perfs {
		r := sheet.AddRow()
		r.AddCell().SetString(p.Category.Name)
		r.AddCell().SetString(strconv.Itoa(p.SnapshotCount))
		r.AddCell().SetString(strconv.Itoa(p.ItemCount))
		r.AddCell().SetString(strconv.FormatFloat(p.AvgPrice, 'f', 2, 64))
		r.AddCell().SetString(strconv.Itoa(p.NewProducts))
		r.AddCell().SetString(strconv.Itoa(p.Delistings))
	}
	return nil
}

// ExportTrending writes trending items to an XLSX workbook.
func ExportTrending(path string, items []TrendingItem) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("trending")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range []string{"vendor_item_id", "category_id", "rank_changes", "net_climb", "last_seen"} {
		hr.AddCell().SetString(h)
	}
	for _, item := range items {
		r := sheet.AddRow()
		r.AddCell().SetString(item.VendorItemID)
		r.AddCell().SetString(strconv.FormatInt(item.CategoryID, 10))
		r.AddCell().SetString(strconv.Itoa(item.RankChanges))
		r.AddCell().SetString(strconv.FormatInt(item.NetClimb, 10))
		r.AddCell().SetString(item.LastSeen)
	}

	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func intPtrString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func int64PtrString(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func floatPtrString(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
