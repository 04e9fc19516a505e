package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchMinScore(t *testing.T) {
	// Short queries keep the popularity floor.
	assert.EqualValues(t, 10, SearchMinScore(""))
	assert.EqualValues(t, 10, SearchMinScore("usdt"))
	assert.EqualValues(t, 10, SearchMinScore("0123456789")) // exactly 10
	// Longer than 10: pasted addresses, floor drops.
	assert.EqualValues(t, -100, SearchMinScore("0123456789a"))
	assert.EqualValues(t, -100, SearchMinScore("0xdAC17F958D2ee523a2206206994597C13D831ec7"))
}

func TestPriceColumnsKeepZeroValues(t *testing.T) {
	// A price of 0 or a flat 24h change must overwrite a stale non-zero
	// row; a struct-based update would silently skip the columns.
	cols := priceColumns(PriceRow{AssetId: "bitcoin"})
	assert.Equal(t, 0.0, cols["price"])
	assert.Equal(t, 0.0, cols["price_change24h"])
	assert.Equal(t, 0.0, cols["market_cap"])
	assert.NotContains(t, cols, "asset_id", "the key column is the where clause, not an update target")
}
