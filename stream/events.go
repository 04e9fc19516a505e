package stream

import (
	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/types"
)

// EventPublisher fans wallet-scoped stream events out over cache pub/sub
// so any connected client of that wallet receives them.
type EventPublisher struct {
	cache *cache.Cacher
}

func NewEventPublisher(cacher *cache.Cacher) *EventPublisher {
	return &EventPublisher{cache: cacher}
}

func (p *EventPublisher) PublishWalletEvent(walletId int64, event types.StreamEvent) error {
	return p.cache.Publish(cache.WalletEvents(walletId), event)
}
