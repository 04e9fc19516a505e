package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletbase/walletd/bus"
	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/parser"
	"github.com/walletbase/walletd/types"
)

type fakeProvider struct {
	chain    types.Chain
	txs      map[int64][]types.Transaction
	token    map[string]types.Asset
	balances map[string][]types.AssetBalance
}

func (p *fakeProvider) Chain() types.Chain                            { return p.chain }
func (p *fakeProvider) GetLatestBlock(context.Context) (int64, error) { return 0, nil }

func (p *fakeProvider) GetTransactions(_ context.Context, block int64) ([]types.Transaction, error) {
	return p.txs[block], nil
}

func (p *fakeProvider) GetTokenData(_ context.Context, tokenId string) (types.Asset, error) {
	return p.token[tokenId], nil
}

func (p *fakeProvider) GetAssetsBalances(_ context.Context, address string) ([]types.AssetBalance, error) {
	return p.balances[address], nil
}

func rawPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestBlocksConsumerRepublishesPerBlock(t *testing.T) {
	chain := types.ChainPolygon
	provider := &fakeProvider{
		chain: chain,
		txs: map[int64][]types.Transaction{
			10: {{Id: types.NewTransactionId(chain, "a")}},
			11: {{Id: types.NewTransactionId(chain, "b")}, {Id: types.NewTransactionId(chain, "c")}},
		},
	}
	pub := &fakePublisher{}
	c := NewBlocksConsumer(parser.NewRegistry(provider), pub, time.Second)

	count, err := c.Process(context.Background(), rawPayload(t, types.BlockRangePayload{
		Chain:  chain,
		Blocks: []int64{10, 11},
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	msgs := pub.byQueue(bus.QueueStoreTransactions.ForChain(chain))
	require.Len(t, msgs, 2)
	first := msgs[0].payload.(types.TransactionsPayload)
	assert.EqualValues(t, 10, first.Block)
	assert.Len(t, first.Transactions, 1)
}

type fakePricesStore struct {
	prices []types.Price
	rates  []types.FiatRate
	charts []types.Chart
}

func (s *fakePricesStore) UpsertPrices(prices []types.Price) error {
	s.prices = append(s.prices, prices...)
	return nil
}

func (s *fakePricesStore) UpsertFiatRates(rates []types.FiatRate) error {
	s.rates = append(s.rates, rates...)
	return nil
}

func (s *fakePricesStore) AddCharts(charts []types.Chart) error {
	s.charts = append(s.charts, charts...)
	return nil
}

type fakePriceCache struct {
	stored    map[string]interface{}
	published map[string]interface{}
}

func (c *fakePriceCache) Set(key cache.CacheKey, value interface{}) error {
	if c.stored == nil {
		c.stored = map[string]interface{}{}
	}
	c.stored[key.String()] = value
	return nil
}

func (c *fakePriceCache) SetAndPublish(key cache.CacheKey, value interface{}) error {
	if c.published == nil {
		c.published = map[string]interface{}{}
	}
	c.published[key.String()] = value
	return nil
}

func TestPricesConsumerPersistsAndPublishes(t *testing.T) {
	db := &fakePricesStore{}
	cc := &fakePriceCache{}
	c := NewPricesConsumer(db, cc)

	btc := types.NewAssetId(types.ChainBitcoin)
	now := time.Now()
	count, err := c.Process(context.Background(), rawPayload(t, types.PricesPayload{
		Prices: []types.Price{{AssetId: btc, Price: 64000, PriceChange24h: 2.5, LastUpdatedAt: now}},
		Rates:  []types.FiatRate{{Symbol: "EUR", Rate: 0.92}},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, db.prices, 1)
	assert.Len(t, db.rates, 1)

	rates, ok := cc.stored["fiat:rates"].([]types.FiatRate)
	require.True(t, ok)
	assert.Equal(t, "EUR", rates[0].Symbol)

	info, ok := cc.published["prices:asset:bitcoin"].(types.AssetPriceInfo)
	require.True(t, ok)
	assert.Equal(t, 64000.0, info.Price)
	assert.Equal(t, now.Unix(), info.LastUpdatedAt)
}

func TestChartsConsumer(t *testing.T) {
	db := &fakePricesStore{}
	c := NewChartsConsumer(db)
	count, err := c.Process(context.Background(), rawPayload(t, types.ChartsPayload{
		Charts: []types.Chart{{AssetId: types.NewAssetId(types.ChainBitcoin), Price: 64000}},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, db.charts, 1)
}

type fakeAssetsStore struct {
	assets []types.Asset
}

func (s *fakeAssetsStore) UpsertAssets(assets []types.Asset) error {
	s.assets = append(s.assets, assets...)
	return nil
}

type fakeAssociationsStore struct {
	associations map[string][]types.AssetBalance
}

func (s *fakeAssociationsStore) AddAssetAssociations(address string, balances []types.AssetBalance) error {
	if s.associations == nil {
		s.associations = map[string][]types.AssetBalance{}
	}
	s.associations[address] = append(s.associations[address], balances...)
	return nil
}

func TestAssociationsConsumerRecordsHoldings(t *testing.T) {
	chain := types.ChainEthereum
	token := types.NewTokenAssetId(chain, "0xusdc")
	provider := &fakeProvider{
		chain: chain,
		balances: map[string][]types.AssetBalance{
			"0xholder": {
				{AssetId: types.NewAssetId(chain), Balance: "1000"},
				{AssetId: token, Balance: "42"},
			},
		},
	}
	db := &fakeAssociationsStore{}
	c := NewAssociationsConsumer(bus.QueueFetchCoinAssoc.String(), parser.NewRegistry(provider), db)

	count, err := c.Process(context.Background(), rawPayload(t, types.NewAddressesPayload{
		Chain:     chain,
		Addresses: []string{"0xholder", "0xempty"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, db.associations["0xholder"], 2)
	assert.Equal(t, token, db.associations["0xholder"][1].AssetId)
	assert.NotContains(t, db.associations, "0xempty")
}

func TestAssetsConsumerResolvesTokens(t *testing.T) {
	token := types.NewTokenAssetId(types.ChainEthereum, "0xabc")
	provider := &fakeProvider{
		chain: types.ChainEthereum,
		token: map[string]types.Asset{
			"0xabc": {Id: token, Name: "Token", Symbol: "TKN", Decimals: 18, Type: types.AssetTypeERC20},
		},
	}
	db := &fakeAssetsStore{}
	c := NewAssetsConsumer(db, parser.NewRegistry(provider))

	count, err := c.Process(context.Background(), rawPayload(t, types.FetchAssetsPayload{
		AssetIds: []string{token.String(), "ethereum"},
	}))
	require.NoError(t, err)
	// The native id is skipped.
	assert.Equal(t, 1, count)
	require.Len(t, db.assets, 1)
	assert.Equal(t, "TKN", db.assets[0].Symbol)
}
