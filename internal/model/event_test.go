package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func i64(v int64) *int64 { return &v }

func TestDescribe_RankChange(t *testing.T) {
	got := Describe(EventRankChange, "Vitamin C 1000mg", i64(5), i64(2))
	assert.Equal(t, "Vitamin C 1000mg moved from rank 5 to 2", got)
}

func TestDescribe_PriceChange(t *testing.T) {
	got := Describe(EventPriceChange, "Omega-3", i64(21900), i64(19900))
	assert.Equal(t, "Omega-3 price changed from 21900 to 19900", got)
}

func TestDescribe_NewProduct(t *testing.T) {
	assert.Equal(t, "Zinc entered the listing at rank 7", Describe(EventNewProduct, "Zinc", nil, i64(7)))
	assert.Equal(t, "Zinc entered the listing", Describe(EventNewProduct, "Zinc", nil, nil))
}

func TestDescribe_Delisted(t *testing.T) {
	assert.Equal(t, "Zinc left the listing (was rank 3)", Describe(EventDelisted, "Zinc", i64(3), nil))
	assert.Equal(t, "Zinc left the listing", Describe(EventDelisted, "Zinc", nil, nil))
}

func TestListingRecord_Observation(t *testing.T) {
	price := int64(9900)
	rec := ListingRecord{
		VendorItemID: "V100",
		Name:         "Magnesium",
		Rank:         4,
		CurrentPrice: &price,
	}
	obs := rec.Observation("snap-1")
	assert.Equal(t, "snap-1", obs.SnapshotID)
	assert.Equal(t, "V100", obs.VendorItemID)
	if assert.NotNil(t, obs.Rank) {
		assert.Equal(t, 4, *obs.Rank)
	}
	assert.Equal(t, &price, obs.CurrentPrice)

	// Rank 0 means the scraper could not read a position.
	obs = ListingRecord{VendorItemID: "V101"}.Observation("snap-1")
	assert.Nil(t, obs.Rank)
}
