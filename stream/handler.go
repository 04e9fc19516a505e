// Package stream serves the price/event WebSocket. Each connection owns
// one PriceHandler task; all of its state is confined to that task.
package stream

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/log"
	"github.com/walletbase/walletd/types"
)

var logger = log.NewModuleLogger("stream")

// flushEvery bounds price emissions to one frame per tick per client.
const flushEvery = 5 * time.Second

// PriceStore reads price snapshots for subscribe-time responses.
type PriceStore interface {
	GetPrice(id types.AssetId) (types.Price, error)
	GetFiatRates() ([]types.FiatRate, error)
}

// Sender delivers one event frame to the client.
type Sender interface {
	Send(event types.StreamEvent) error
}

// PriceHandler is the per-connection state machine. It is single-owner:
// only its Run goroutine touches the sets below.
type PriceHandler struct {
	store PriceStore
	feed  Feed
	send  Sender

	walletIds []int64

	assets   map[types.AssetId]struct{}
	realtime map[types.AssetId]struct{}
	pending  map[types.AssetId]types.AssetPrice

	flushEvery time.Duration
}

func NewPriceHandler(store PriceStore, feed Feed, send Sender, walletIds []int64) *PriceHandler {
	return &PriceHandler{
		store:      store,
		feed:       feed,
		send:       send,
		walletIds:  walletIds,
		assets:     map[types.AssetId]struct{}{},
		realtime:   map[types.AssetId]struct{}{},
		pending:    map[types.AssetId]types.AssetPrice{},
		flushEvery: flushEvery,
	}
}

// Run consumes inbound messages and pub/sub pushes until ctx is done or
// the inbound channel closes. Wallet event channels stay subscribed for
// the lifetime of the connection.
func (h *PriceHandler) Run(ctx context.Context, inbound <-chan types.StreamMessage) error {
	sub, err := h.feed.Subscribe(h.walletChannels()...)
	if err != nil {
		return err
	}
	defer sub.Close()

	ticker := time.NewTicker(h.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final coalesced frame: prices buffered since the last
			// tick must not be lost to shutdown.
			if err := h.flush(); err != nil {
				logger.Debugw("final flush failed", "err", err)
			}
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			if err := h.handleMessage(sub, msg); err != nil {
				return err
			}
		case push, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			if err := h.handlePush(push); err != nil {
				return err
			}
		case <-ticker.C:
			if err := h.flush(); err != nil {
				return err
			}
		}
	}
}

func (h *PriceHandler) handleMessage(sub Subscription, msg types.StreamMessage) error {
	switch msg.Type {
	case types.StreamMsgSubscribePrices:
		if err := sub.Remove(priceChannels(setKeys(h.assets))...); err != nil {
			return err
		}
		h.assets = map[types.AssetId]struct{}{}
		for _, id := range msg.Assets {
			h.assets[id] = struct{}{}
		}
		h.pending = map[types.AssetId]types.AssetPrice{}
		if err := sub.Add(priceChannels(msg.Assets)...); err != nil {
			return err
		}
		rates, err := h.store.GetFiatRates()
		if err != nil {
			logger.Warnw("fiat rates unavailable on subscribe", "err", err)
		}
		return h.send.Send(types.NewPricesStreamEvent(h.snapshot(msg.Assets), rates))

	case types.StreamMsgAddPrices:
		var added []types.AssetId
		for _, id := range msg.Assets {
			if _, ok := h.assets[id]; !ok {
				h.assets[id] = struct{}{}
				added = append(added, id)
			}
		}
		if err := sub.Add(priceChannels(added)...); err != nil {
			return err
		}
		return h.send.Send(types.NewPricesStreamEvent(h.snapshot(added), nil))

	case types.StreamMsgUnsubscribePrices:
		var removed []types.AssetId
		for _, id := range msg.Assets {
			if _, ok := h.assets[id]; ok {
				delete(h.assets, id)
				delete(h.pending, id)
				delete(h.realtime, id)
				removed = append(removed, id)
			}
		}
		if err := sub.Remove(priceChannels(removed)...); err != nil {
			return err
		}
		return h.send.Send(types.NewPricesStreamEvent(h.snapshot(setKeys(h.assets)), nil))

	case types.StreamMsgSubscribeRealtimePrices:
		var added []types.AssetId
		for _, id := range msg.Assets {
			h.realtime[id] = struct{}{}
			if _, ok := h.assets[id]; !ok {
				h.assets[id] = struct{}{}
				added = append(added, id)
			}
		}
		return sub.Add(priceChannels(added)...)

	case types.StreamMsgUnsubscribeRealtimePrices:
		for _, id := range msg.Assets {
			delete(h.realtime, id)
		}
		return nil
	}
	return nil
}

func (h *PriceHandler) handlePush(push FeedMessage) error {
	var info types.AssetPriceInfo
	if err := json.Unmarshal(push.Data, &info); err == nil && info.AssetId.Chain != "" {
		if _, ok := h.assets[info.AssetId]; !ok {
			return nil
		}
		// Realtime subscriptions bypass tick coalescing.
		if _, ok := h.realtime[info.AssetId]; ok {
			return h.send.Send(types.NewPricesStreamEvent([]types.AssetPrice{info.AsPrice()}, nil))
		}
		h.pending[info.AssetId] = info.AsPrice()
		return nil
	}

	// Anything else on a wallet channel is a ready-made stream event.
	event, err := types.DecodeStreamEvent(push.Data)
	if err != nil {
		logger.Warnw("dropping undecodable push", "channel", push.Channel, "err", err)
		return nil
	}
	return h.send.Send(event)
}

func (h *PriceHandler) flush() error {
	if len(h.pending) == 0 {
		return nil
	}
	prices := make([]types.AssetPrice, 0, len(h.pending))
	for _, p := range h.pending {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].AssetId.String() < prices[j].AssetId.String()
	})
	h.pending = map[types.AssetId]types.AssetPrice{}
	return h.send.Send(types.NewPricesStreamEvent(prices, nil))
}

func (h *PriceHandler) snapshot(ids []types.AssetId) []types.AssetPrice {
	prices := make([]types.AssetPrice, 0, len(ids))
	for _, id := range ids {
		price, err := h.store.GetPrice(id)
		if err != nil {
			continue
		}
		prices = append(prices, types.AssetPrice{
			AssetId:        id,
			Price:          price.Price,
			PriceChange24h: price.PriceChange24h,
		})
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].AssetId.String() < prices[j].AssetId.String()
	})
	return prices
}

func (h *PriceHandler) walletChannels() []string {
	channels := make([]string, len(h.walletIds))
	for i, id := range h.walletIds {
		channels[i] = cache.WalletEvents(id).String()
	}
	return channels
}

func priceChannels(ids []types.AssetId) []string {
	channels := make([]string, len(ids))
	for i, id := range ids {
		channels[i] = cache.PriceAsset(id).String()
	}
	return channels
}

func setKeys(set map[types.AssetId]struct{}) []types.AssetId {
	out := make([]types.AssetId, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
