package consumer

import (
	"context"
	"encoding/json"

	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

// PricesStore is the persistence surface of the price consumers.
type PricesStore interface {
	UpsertPrices(prices []types.Price) error
	UpsertFiatRates(rates []types.FiatRate) error
	AddCharts(charts []types.Chart) error
}

// PriceCache is the publish surface of the prices consumer.
type PriceCache interface {
	Set(key cache.CacheKey, value interface{}) error
	SetAndPublish(key cache.CacheKey, value interface{}) error
}

// PricesConsumer persists price rows and publishes each asset's snapshot
// on its cache channel, which feeds the stream server.
type PricesConsumer struct {
	db     PricesStore
	cacher PriceCache
}

func NewPricesConsumer(db PricesStore, cacher PriceCache) *PricesConsumer {
	return &PricesConsumer{db: db, cacher: cacher}
}

func (c *PricesConsumer) Name() string { return "store_prices" }

func (c *PricesConsumer) ShouldProcess(payload json.RawMessage) bool {
	var p types.PricesPayload
	return json.Unmarshal(payload, &p) == nil && (len(p.Prices) > 0 || len(p.Rates) > 0)
}

func (c *PricesConsumer) Process(ctx context.Context, payload json.RawMessage) (int, error) {
	var p types.PricesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, walleterrors.Invariant("malformed prices payload: %v", err)
	}
	if err := c.db.UpsertPrices(p.Prices); err != nil {
		return 0, err
	}
	if len(p.Rates) > 0 {
		if err := c.db.UpsertFiatRates(p.Rates); err != nil {
			return 0, err
		}
		if err := c.cacher.Set(cache.FiatRates(), p.Rates); err != nil {
			logger.Warnw("fiat rates cache write failed", "err", err)
		}
	}
	for _, price := range p.Prices {
		info := types.AssetPriceInfo{
			AssetId:        price.AssetId,
			Price:          price.Price,
			PriceChange24h: price.PriceChange24h,
			MarketCap:      price.MarketCap,
			LastUpdatedAt:  price.LastUpdatedAt.Unix(),
		}
		if err := c.cacher.SetAndPublish(cache.PriceAsset(price.AssetId), info); err != nil {
			// Persisted already; the stream just misses one tick.
			logger.Warnw("price publish failed", "asset", price.AssetId, "err", err)
		}
	}
	return len(p.Prices), nil
}

// ChartsConsumer appends chart points.
type ChartsConsumer struct {
	db PricesStore
}

func NewChartsConsumer(db PricesStore) *ChartsConsumer {
	return &ChartsConsumer{db: db}
}

func (c *ChartsConsumer) Name() string { return "store_charts" }

func (c *ChartsConsumer) ShouldProcess(payload json.RawMessage) bool {
	var p types.ChartsPayload
	return json.Unmarshal(payload, &p) == nil && len(p.Charts) > 0
}

func (c *ChartsConsumer) Process(ctx context.Context, payload json.RawMessage) (int, error) {
	var p types.ChartsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, walleterrors.Invariant("malformed charts payload: %v", err)
	}
	if err := c.db.AddCharts(p.Charts); err != nil {
		return 0, err
	}
	return len(p.Charts), nil
}
