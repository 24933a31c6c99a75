// Package report is the read-only query layer: trending items, category
// performance, and the combined marketplace/catalog price comparison with
// percentile backfill.
package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/backfill"
	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/store"
)

// TrendingItem aggregates rank movement for one vendor item over a window.
type TrendingItem struct {
	VendorItemID string `json:"vendor_item_id"`
	CategoryID   int64  `json:"category_id"`
	RankChanges  int    `json:"rank_changes"`
	NetClimb     int64  `json:"net_climb"`
	LastSeen     string `json:"last_seen"`
}

// CategoryPerformance summarizes one category's recent activity.
type CategoryPerformance struct {
	Category      model.Category `json:"category"`
	SnapshotCount int            `json:"snapshot_count"`
	ItemCount     int            `json:"item_count"`
	AvgPrice      float64        `json:"avg_price"`
	NewProducts   int            `json:"new_products"`
	Delistings    int            `json:"delistings"`
}

// Service answers read-only queries over the store.
type Service struct {
	store    store.Store
	selector *backfill.Selector
	log      *zap.Logger
}

func NewService(st store.Store) *Service {
	return NewServiceWithSelector(st, backfill.NewSelector())
}

// NewServiceWithSelector overrides the backfill selector, used when the
// percentile comes from configuration.
func NewServiceWithSelector(st store.Store, sel *backfill.Selector) *Service {
	return &Service{
		store:    st,
		selector: sel,
		log:      zap.L().With(zap.String("component", "report")),
	}
}

// Trending returns the items with the most upward rank movement since the
// given time, strongest climbers first.
func (s *Service) Trending(ctx context.Context, categoryID int64, since time.Time, limit int) ([]TrendingItem, error) {
	events, err := s.store.ListEvents(ctx, store.EventFilter{
		CategoryID: categoryID,
		Type:       model.EventRankChange,
		Since:      since,
		Limit:      10000,
	})
	if err != nil {
		return nil, err
	}

	byItem := make(map[string]*TrendingItem)
	for _, e := range events {
		item, ok := byItem[e.VendorItemID]
		if !ok {
			item = &TrendingItem{VendorItemID: e.VendorItemID, CategoryID: e.CategoryID}
			byItem[e.VendorItemID] = item
		}
		item.RankChanges++
		item.NetClimb += e.Magnitude
		if ts := e.OccurredAt.Format(time.RFC3339); ts > item.LastSeen {
			item.LastSeen = ts
		}
	}

	items := make([]TrendingItem, 0, len(byItem))
	for _, item := range byItem {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].NetClimb != items[j].NetClimb {
			return items[i].NetClimb > items[j].NetClimb
		}
		return items[i].VendorItemID < items[j].VendorItemID
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Performance summarizes every category: history depth, current listing size
// and average price, and churn since the given time.
func (s *Service) Performance(ctx context.Context, since time.Time) ([]CategoryPerformance, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]CategoryPerformance, 0, len(cats))
	for _, cat := range cats {
		perf := CategoryPerformance{Category: cat}

		snaps, err := s.store.LatestSnapshots(ctx, cat.ID, 1000)
		if err != nil {
			return nil, err
		}
		perf.SnapshotCount = len(snaps)

		if len(snaps) > 0 {
			obs, err := s.store.Observations(ctx, snaps[0].ID)
			if err != nil {
				return nil, err
			}
			perf.ItemCount = len(obs)
			perf.AvgPrice = avgPrice(obs)
		}

		for _, typ := range []model.ChangeEventType{model.EventNewProduct, model.EventDelisted} {
			events, err := s.store.ListEvents(ctx, store.EventFilter{
				CategoryID: cat.ID, Type: typ, Since: since, Limit: 10000,
			})
			if err != nil {
				return nil, err
			}
			if typ == model.EventNewProduct {
				perf.NewProducts = len(events)
			} else {
				perf.Delistings = len(events)
			}
		}

		out = append(out, perf)
	}
	return out, nil
}

// Combined builds the full price-comparison listing: matched marketplace
// items joined to their catalog counterparts, followed by unmatched catalog
// items admitted by the percentile backfill. Matched rows are never displaced
// by backfilled ones.
func (s *Service) Combined(ctx context.Context) ([]model.ReportRow, error) {
	refs, err := s.store.ListReferences(ctx, true)
	if err != nil {
		return nil, err
	}
	catalog, err := s.store.ListCatalog(ctx)
	if err != nil {
		return nil, err
	}
	observed, err := s.latestObservations(ctx)
	if err != nil {
		return nil, err
	}

	byBarcode := make(map[string]model.CatalogItem, len(catalog))
	byPart := make(map[string]model.CatalogItem, len(catalog))
	for _, item := range catalog {
		if item.Barcode != nil {
			byBarcode[*item.Barcode] = item
		}
		if item.PartNumber != nil {
			byPart[*item.PartNumber] = item
		}
	}

	matchedKeys := make(map[string]bool, len(refs)*2)
	var matched []model.ReportRow
	for _, ref := range refs {
		if ref.Barcode != nil {
			matchedKeys[*ref.Barcode] = true
		}
		if ref.PartNumber != nil {
			matchedKeys[*ref.PartNumber] = true
		}

		row := model.ReportRow{
			Status:       model.MatchStatusMatched,
			MarketItemID: ref.VendorItemID,
			MarketName:   ref.FirstName,
			CategoryName: ref.FirstCategory,
		}
		if o, ok := observed[ref.VendorItemID]; ok {
			row.MarketRank = o.Rank
			row.MarketPrice = o.CurrentPrice
			if o.Name != "" {
				row.MarketName = o.Name
			}
		}

		if item, ok := lookupCatalog(ref, byBarcode, byPart); ok {
			row.Catalog = &item
			fillPriceComparison(&row)
		}
		matched = append(matched, row)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return catalogQty(matched[i]) > catalogQty(matched[j])
	})

	result := s.selector.Select(matchedKeys, catalog)
	for _, item := range result.Items {
		row := model.ReportRow{
			Status:  model.MatchStatusBackfill,
			Note:    result.Note,
			Catalog: &item,
		}
		matched = append(matched, row)
	}

	s.log.Info("combined listing built",
		zap.Int("matched", len(refs)),
		zap.Int("backfilled", len(result.Items)),
		zap.Float64("threshold", result.Threshold),
	)
	return matched, nil
}

// latestObservations maps vendor item id to its observation in the newest
// finalized snapshot of each category.
func (s *Service) latestObservations(ctx context.Context) (map[string]model.ProductObservation, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	observed := make(map[string]model.ProductObservation)
	for _, cat := range cats {
		snaps, err := s.store.LatestSnapshots(ctx, cat.ID, 1)
		if err != nil {
			return nil, err
		}
		if len(snaps) == 0 {
			continue
		}
		obs, err := s.store.Observations(ctx, snaps[0].ID)
		if err != nil {
			return nil, err
		}
		for _, o := range obs {
			observed[o.VendorItemID] = o
		}
	}
	return observed, nil
}

func lookupCatalog(ref model.MatchingReference, byBarcode, byPart map[string]model.CatalogItem) (model.CatalogItem, bool) {
	if ref.Barcode != nil {
		if item, ok := byBarcode[*ref.Barcode]; ok {
			return item, true
		}
	}
	if ref.PartNumber != nil {
		if item, ok := byPart[*ref.PartNumber]; ok {
			return item, true
		}
	}
	return model.CatalogItem{}, false
}

func fillPriceComparison(row *model.ReportRow) {
	if row.MarketPrice == nil || row.Catalog == nil || row.Catalog.Price <= 0 {
		return
	}
	diff := *row.MarketPrice - row.Catalog.Price
	row.PriceDiff = &diff
	pct := math.Round(float64(diff)/float64(row.Catalog.Price)*10000) / 100
	row.PriceDiffPct = &pct
	switch {
	case diff > 0:
		row.CheaperSide = "catalog"
	case diff < 0:
		row.CheaperSide = "market"
	default:
		row.CheaperSide = "equal"
	}
	if row.Note == "" {
		row.Note = fmt.Sprintf("price diff %+d (%.2f%%)", diff, pct)
	}
}

func catalogQty(row model.ReportRow) int64 {
	if row.Catalog == nil {
		return 0
	}
	return row.Catalog.SalesQuantity
}

func avgPrice(obs []model.ProductObservation) float64 {
	var sum int64
	var n int
	for _, o := range obs {
		if o.CurrentPrice != nil {
			sum += *o.CurrentPrice
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}
