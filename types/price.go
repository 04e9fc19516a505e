package types

import "time"

// Price is the market snapshot for one asset. LastUpdatedAt is
// monotonically non-decreasing per asset; stale updates are ignored by
// the store.
type Price struct {
	AssetId        AssetId   `json:"asset_id"`
	Price          float64   `json:"price"`
	PriceChange24h float64   `json:"price_change_24h"`
	MarketCap      float64   `json:"market_cap"`
	MarketCapRank  int32     `json:"market_cap_rank"`
	Volume24h      float64   `json:"volume_24h"`
	Circulating    float64   `json:"circulating_supply"`
	TotalSupply    float64   `json:"total_supply"`
	MaxSupply      float64   `json:"max_supply"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
}

// Chart is a single price observation, one point appended per updater run.
type Chart struct {
	AssetId   AssetId   `json:"asset_id"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// AssetPrice is the client-facing subset delivered on the price stream.
type AssetPrice struct {
	AssetId        AssetId `json:"assetId"`
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"priceChangePercentage24h"`
}

// AssetPriceInfo is the pub/sub payload published on each per-asset cache
// channel when a price is stored.
type AssetPriceInfo struct {
	AssetId        AssetId `json:"asset_id"`
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"price_change_24h"`
	MarketCap      float64 `json:"market_cap"`
	LastUpdatedAt  int64   `json:"last_updated_at"`
}

func (i AssetPriceInfo) AsPrice() AssetPrice {
	return AssetPrice{
		AssetId:        i.AssetId,
		Price:          i.Price,
		PriceChange24h: i.PriceChange24h,
	}
}

// FiatRate is a fiat currency rate against USD.
type FiatRate struct {
	Symbol string  `json:"symbol"`
	Rate   float64 `json:"rate"`
}

// PricesPayload is the store_prices queue message body.
type PricesPayload struct {
	Prices []Price    `json:"prices"`
	Rates  []FiatRate `json:"rates,omitempty"`
}

// ChartsPayload is the store_charts queue message body.
type ChartsPayload struct {
	Charts []Chart `json:"charts"`
}
