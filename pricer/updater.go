// Package pricer runs the periodic market-data updater. It pulls market
// snapshots in bounded chunks, normalizes them to Price and Chart rows
// and publishes the payloads for the store consumers to persist.
package pricer

import (
	"context"
	"time"

	"github.com/walletbase/walletd/bus"
	"github.com/walletbase/walletd/log"
	"github.com/walletbase/walletd/metrics"
	"github.com/walletbase/walletd/types"
)

var logger = log.NewModuleLogger("pricer")

// maxMarketChunk is the provider's per-request id ceiling.
const maxMarketChunk = 250

// AssetSource lists the asset ids the updater keeps priced.
type AssetSource interface {
	PricedAssetIds(limit int) ([]types.AssetId, error)
}

type Updater struct {
	client    MarketClient
	assets    AssetSource
	publisher bus.Publisher
	jobs      *metrics.JobMetrics
	interval  time.Duration
	now       func() time.Time
}

func NewUpdater(client MarketClient, assets AssetSource, publisher bus.Publisher, jobs *metrics.JobMetrics, interval time.Duration) *Updater {
	return &Updater{
		client:    client,
		assets:    assets,
		publisher: publisher,
		jobs:      jobs,
		interval:  interval,
		now:       time.Now,
	}
}

// Run updates once immediately, then on every interval tick until ctx is
// cancelled.
func (u *Updater) Run(ctx context.Context) error {
	u.jobs.SetInterval("pricer", "update_prices", u.interval)
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		start := u.now()
		if err := u.Update(ctx); err != nil {
			u.jobs.ReportError("pricer", "update_prices", err)
			logger.Errorw("price update failed", "err", err)
		} else {
			u.jobs.ReportSuccess("pricer", "update_prices", u.now().Sub(start))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Update runs one full pass: fiat rates once, then market data chunk by
// chunk. Rates ride only the first prices payload so the store upserts
// them once per pass.
func (u *Updater) Update(ctx context.Context) error {
	ids, err := u.assets.PricedAssetIds(0)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	rates, err := u.client.Rates(ctx)
	if err != nil {
		logger.Warnw("fiat rates fetch failed, continuing without", "err", err)
		rates = nil
	}

	for _, chunk := range chunkAssetIds(ids, maxMarketChunk) {
		strIds := make([]string, len(chunk))
		byId := make(map[string]types.AssetId, len(chunk))
		for i, id := range chunk {
			strIds[i] = id.String()
			byId[id.String()] = id
		}
		markets, err := u.client.Markets(ctx, strIds)
		if err != nil {
			return err
		}

		prices := make([]types.Price, 0, len(markets))
		charts := make([]types.Chart, 0, len(markets))
		observedAt := u.now()
		for _, m := range markets {
			assetId, ok := byId[m.Id]
			if !ok {
				continue
			}
			prices = append(prices, types.Price{
				AssetId:        assetId,
				Price:          m.CurrentPrice,
				PriceChange24h: m.PriceChange24h,
				MarketCap:      m.MarketCap,
				MarketCapRank:  m.MarketCapRank,
				Volume24h:      m.TotalVolume,
				Circulating:    m.CirculatingSupply,
				TotalSupply:    m.TotalSupply,
				MaxSupply:      m.MaxSupply,
				LastUpdatedAt:  m.LastUpdated,
			})
			charts = append(charts, types.Chart{
				AssetId:   assetId,
				Price:     m.CurrentPrice,
				CreatedAt: observedAt,
			})
		}
		if len(prices) == 0 {
			continue
		}

		if err := u.publisher.Publish(bus.QueueStorePrices, types.PricesPayload{Prices: prices, Rates: rates}, nil); err != nil {
			return err
		}
		rates = nil
		if err := u.publisher.Publish(bus.QueueStoreCharts, types.ChartsPayload{Charts: charts}, nil); err != nil {
			return err
		}
	}
	return nil
}

func chunkAssetIds(ids []types.AssetId, size int) [][]types.AssetId {
	var out [][]types.AssetId
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
