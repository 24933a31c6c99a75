package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/fetcher"
	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/resolve"
)

// catalog feed column names, matched case-insensitively against the header
// row. The feed export has shipped under several slightly different headers.
var feedColumns = map[string][]string{
	"vendor_item_id": {"vendor_item_id", "product_id", "item_id"},
	"name":           {"name", "product_name", "title"},
	"barcode":        {"barcode", "upc", "ean"},
	"part_number":    {"part_number", "part_no", "sku"},
	"price":          {"price", "sale_price"},
	"stock":          {"stock", "quantity", "qty"},
	"stock_status":   {"stock_status", "status"},
	"sales_quantity": {"sales_quantity", "sales_qty", "units_sold"},
	"revenue":        {"revenue", "sales_amount"},
}

// ParseFeed reads a partner catalog feed export into catalog items.
// Identifiers are normalized at the boundary: a malformed barcode or part
// number stores as null, never as a partial value.
func ParseFeed(path string, opts fetcher.XLSXOptions) ([]model.CatalogItem, error) {
	header, err := fetcher.Header(path, opts)
	if err != nil {
		return nil, err
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	opts.SkipRows = 1
	rows, err := fetcher.ReadXLSX(path, opts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	items := make([]model.CatalogItem, 0, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(cell(row, cols["vendor_item_id"]))
		if id == "" {
			continue
		}
		item := model.CatalogItem{
			VendorItemID:  id,
			Name:          strings.TrimSpace(cell(row, cols["name"])),
			Barcode:       resolve.NormalizeBarcode(cell(row, cols["barcode"])),
			PartNumber:    resolve.NormalizePartNumber(cell(row, cols["part_number"])),
			Price:         parseInt(cell(row, cols["price"])),
			Stock:         int(parseInt(cell(row, cols["stock"]))),
			StockStatus:   parseStockStatus(cell(row, cols["stock_status"])),
			SalesQuantity: parseInt(cell(row, cols["sales_quantity"])),
			Revenue:       parseInt(cell(row, cols["revenue"])),
			RefreshedAt:   now,
		}
		items = append(items, item)
	}
	return items, nil
}

// ImportCatalog replaces the stored catalog with a freshly parsed feed.
func (s *Service) ImportCatalog(ctx context.Context, items []model.CatalogItem) (int64, error) {
	logID, err := s.store.StartIngest(ctx, "catalog", "feed")
	if err != nil {
		return 0, err
	}

	n, err := s.store.ReplaceCatalog(ctx, items)
	if cerr := s.store.CompleteIngest(ctx, logID, n, err); cerr != nil {
		s.log.Warn("checkpoint update failed", zap.Error(cerr))
	}
	if err != nil {
		return 0, err
	}

	s.log.Info("catalog replaced", zap.Int64("items", n))
	return n, nil
}

// AutoMatch proposes identity matches by joining stored references against
// the catalog: a shared barcode confirms at low tier, exact normalized name
// equality proposes medium, and fuzzy name similarity above the threshold
// proposes low with the similarity recorded. The resolver's tier policy
// decides what actually applies.
func (s *Service) AutoMatch(ctx context.Context, similarityThreshold float64) (int, error) {
	refs, err := s.store.ListReferences(ctx, false)
	if err != nil {
		return 0, err
	}
	catalog, err := s.store.ListCatalog(ctx)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 || len(catalog) == 0 {
		return 0, nil
	}

	byBarcode := make(map[string]model.CatalogItem, len(catalog))
	byName := make(map[string]model.CatalogItem, len(catalog))
	for _, item := range catalog {
		if item.Barcode != nil {
			byBarcode[*item.Barcode] = item
		}
		if key := resolve.NormalizeName(item.Name); key != "" {
			byName[key] = item
		}
	}

	applied := 0
	for _, ref := range refs {
		if ref.ManuallyVerified {
			continue
		}

		proposal, ok := s.matchReference(ref, byBarcode, byName, catalog, similarityThreshold)
		if !ok {
			continue
		}

		_, err := s.resolver.ProposeMatch(ctx, ref.VendorItemID, proposal)
		if eris.Is(err, resolve.ErrNeedsHumanReview) {
			continue
		}
		if err != nil {
			return applied, eris.Wrapf(err, "ingest: auto match %s", ref.VendorItemID)
		}
		applied++
	}

	s.log.Info("auto matching complete",
		zap.Int("references", len(refs)),
		zap.Int("proposals_applied", applied),
	)
	return applied, nil
}

func (s *Service) matchReference(
	ref model.MatchingReference,
	byBarcode, byName map[string]model.CatalogItem,
	catalog []model.CatalogItem,
	threshold float64,
) (resolve.Proposal, bool) {
	// Exact normalized name equality is the strongest automatic signal.
	if key := resolve.NormalizeName(ref.FirstName); key != "" {
		if item, ok := byName[key]; ok {
			return resolve.Proposal{
				Barcode:    deref(item.Barcode),
				PartNumber: deref(item.PartNumber),
				Tier:       model.TierMedium,
				Note:       "exact name match with catalog item " + item.VendorItemID,
			}, true
		}
	}

	// A stored barcode present in the catalog confirms the identity.
	if ref.Barcode != nil {
		if item, ok := byBarcode[*ref.Barcode]; ok {
			return resolve.Proposal{
				Barcode:    *ref.Barcode,
				PartNumber: deref(item.PartNumber),
				Tier:       model.TierLow,
				Note:       "barcode present in catalog as " + item.VendorItemID,
			}, true
		}
	}

	// Fuzzy fallback: best Jaccard similarity over the whole catalog.
	var best model.CatalogItem
	bestSim := 0.0
	for _, item := range catalog {
		if sim := resolve.NameSimilarity(ref.FirstName, item.Name); sim > bestSim {
			bestSim, best = sim, item
		}
	}
	if bestSim >= threshold {
		return resolve.Proposal{
			Barcode:    deref(best.Barcode),
			PartNumber: deref(best.PartNumber),
			Tier:       model.TierLow,
			Note: fmt.Sprintf("name similarity %.2f with catalog item %s",
				bestSim, best.VendorItemID),
		}, true
	}
	return resolve.Proposal{}, false
}

func mapColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols := make(map[string]int, len(feedColumns))
	for field, aliases := range feedColumns {
		cols[field] = -1
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				cols[field] = i
				break
			}
		}
	}
	if cols["vendor_item_id"] < 0 {
		return nil, eris.Errorf("ingest: feed header has no vendor item id column: %v", header)
	}
	return cols, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func parseInt(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	// Numeric cells sometimes render as floats.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseStockStatus(s string) model.StockStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "selling", "in_stock", "instock", "available", "판매중":
		return model.StockStatusSelling
	default:
		return model.StockStatusSoldOut
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
