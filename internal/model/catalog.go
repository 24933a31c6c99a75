package model

import "time"

// StockStatus is the sellability state reported by the partner catalog feed.
type StockStatus string

const (
	StockStatusSelling StockStatus = "selling"
	StockStatusSoldOut StockStatus = "sold_out"
)

// CatalogItem is one product row from the partner marketplace's full catalog
// feed, refreshed wholesale on each import.
type CatalogItem struct {
	VendorItemID  string      `json:"vendor_item_id"`
	Name          string      `json:"name"`
	Barcode       *string     `json:"barcode,omitempty"`
	PartNumber    *string     `json:"part_number,omitempty"`
	Price         int64       `json:"price"`
	Stock         int         `json:"stock"`
	StockStatus   StockStatus `json:"stock_status"`
	SalesQuantity int64       `json:"sales_quantity"`
	Revenue       int64       `json:"revenue"`
	RefreshedAt   time.Time   `json:"refreshed_at"`
}

// Sellable reports whether the item can currently be sold.
func (c CatalogItem) Sellable() bool {
	return c.StockStatus == StockStatusSelling && c.Stock > 0
}

// MatchStatus tags how a report row entered the combined listing.
type MatchStatus string

const (
	MatchStatusMatched  MatchStatus = "matched"
	MatchStatusBackfill MatchStatus = "unmatched-backfill"
)

// ReportRow is one line of the combined marketplace/catalog listing. Matched
// rows carry both sides; backfill rows carry only the catalog side plus a
// provenance note recording the threshold that admitted them.
type ReportRow struct {
	Status       MatchStatus  `json:"status"`
	Note         string       `json:"note,omitempty"`
	CategoryName string       `json:"category_name,omitempty"`
	MarketItemID string       `json:"market_item_id,omitempty"`
	MarketName   string       `json:"market_name,omitempty"`
	MarketRank   *int         `json:"market_rank,omitempty"`
	MarketPrice  *int64       `json:"market_price,omitempty"`
	Catalog      *CatalogItem `json:"catalog,omitempty"`
	PriceDiff    *int64       `json:"price_diff,omitempty"`
	PriceDiffPct *float64     `json:"price_diff_pct,omitempty"`
	CheaperSide  string       `json:"cheaper_side,omitempty"`
}
