package cache

import (
	"fmt"
	"time"

	"github.com/walletbase/walletd/types"
)

// CacheKey is the closed family of cache keys. Every key carries its TTL
// so that expiration policy lives with the key definition, not the caller.
// The pub/sub channel for a key equals its string form.
type CacheKey struct {
	key string
	ttl time.Duration
}

func (k CacheKey) String() string     { return k.key }
func (k CacheKey) TTL() time.Duration { return k.ttl }

func ParserLatestBlock(chain types.Chain) CacheKey {
	return CacheKey{fmt.Sprintf("parser:latest_block:%s", chain), 7 * 24 * time.Hour}
}

func PriceAsset(id types.AssetId) CacheKey {
	return CacheKey{fmt.Sprintf("prices:asset:%s", id), 12 * time.Hour}
}

func FiatRates() CacheKey {
	return CacheKey{"fiat:rates", time.Hour}
}

func FiatQuote(id string) CacheKey {
	return CacheKey{fmt.Sprintf("fiat:quote:%s", id), 15 * time.Minute}
}

func ConsumerStatus(name string) CacheKey {
	return CacheKey{fmt.Sprintf("consumers:status:%s", name), 24 * time.Hour}
}

func DynodeResponse(key string) CacheKey {
	// TTL is decided per cache rule; this family carries the ceiling.
	return CacheKey{fmt.Sprintf("dynode:response:%s", key), time.Hour}
}

// WalletEvents is a pub/sub-only channel; nothing is stored under it.
func WalletEvents(walletId int64) CacheKey {
	return CacheKey{fmt.Sprintf("events:wallet:%d", walletId), time.Minute}
}

func NftImagePreview(id string) CacheKey {
	return CacheKey{fmt.Sprintf("nft:image_preview:%s", id), 7 * 24 * time.Hour}
}

func AssetsSearchCounter(deviceId string) CacheKey {
	return CacheKey{fmt.Sprintf("counters:assets_search:%s", deviceId), time.Hour}
}
