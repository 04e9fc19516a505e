package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/walletbase/walletd/types"
)

func TestCacheKeys(t *testing.T) {
	cases := []struct {
		key  CacheKey
		want string
		ttl  time.Duration
	}{
		{ParserLatestBlock(types.ChainEthereum), "parser:latest_block:ethereum", 7 * 24 * time.Hour},
		{PriceAsset(types.NewAssetId(types.ChainBitcoin)), "prices:asset:bitcoin", 12 * time.Hour},
		{FiatQuote("order-1"), "fiat:quote:order-1", 15 * time.Minute},
		{FiatRates(), "fiat:rates", time.Hour},
		{ConsumerStatus("transactions"), "consumers:status:transactions", 24 * time.Hour},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.key.String())
		assert.Equal(t, tc.ttl, tc.key.TTL())
	}
}

func TestTokenAssetPriceKey(t *testing.T) {
	id := types.NewTokenAssetId(types.ChainEthereum, "0xdAC17F958D2ee523a2206206994597C13D831ec7")
	assert.Equal(t, "prices:asset:ethereum_0xdAC17F958D2ee523a2206206994597C13D831ec7", PriceAsset(id).String())
}
