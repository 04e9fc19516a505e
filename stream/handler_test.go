package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

var (
	btc = types.NewAssetId(types.ChainBitcoin)
	eth = types.NewAssetId(types.ChainEthereum)
)

type fakeStore struct {
	prices map[types.AssetId]types.Price
	rates  []types.FiatRate
}

func (s *fakeStore) GetPrice(id types.AssetId) (types.Price, error) {
	p, ok := s.prices[id]
	if !ok {
		return types.Price{}, walleterrors.NotFound("price")
	}
	return p, nil
}

func (s *fakeStore) GetFiatRates() ([]types.FiatRate, error) { return s.rates, nil }

type fakeSub struct {
	updates chan FeedMessage
	added   [][]string
	removed [][]string
}

func (s *fakeSub) Updates() <-chan FeedMessage { return s.updates }
func (s *fakeSub) Add(channels ...string) error {
	if len(channels) > 0 {
		s.added = append(s.added, channels)
	}
	return nil
}
func (s *fakeSub) Remove(channels ...string) error {
	if len(channels) > 0 {
		s.removed = append(s.removed, channels)
	}
	return nil
}
func (s *fakeSub) Close() error { return nil }

type fakeFeed struct{ sub *fakeSub }

func (f *fakeFeed) Subscribe(...string) (Subscription, error) { return f.sub, nil }

type fakeSender struct{ events []types.StreamEvent }

func (s *fakeSender) Send(event types.StreamEvent) error {
	s.events = append(s.events, event)
	return nil
}

func newTestHandler(t *testing.T) (*PriceHandler, *fakeSub, *fakeSender) {
	t.Helper()
	store := &fakeStore{
		prices: map[types.AssetId]types.Price{
			btc: {AssetId: btc, Price: 65000, PriceChange24h: 1.2},
			eth: {AssetId: eth, Price: 3200, PriceChange24h: -0.4},
		},
		rates: []types.FiatRate{{Symbol: "EUR", Rate: 0.92}},
	}
	sub := &fakeSub{updates: make(chan FeedMessage, 64)}
	sender := &fakeSender{}
	return NewPriceHandler(store, &fakeFeed{sub: sub}, sender, nil), sub, sender
}

func pricePush(t *testing.T, id types.AssetId, price float64) FeedMessage {
	t.Helper()
	data, err := json.Marshal(types.AssetPriceInfo{AssetId: id, Price: price})
	require.NoError(t, err)
	return FeedMessage{Channel: cache.PriceAsset(id).String(), Data: data}
}

func TestSubscribeSendsSnapshotWithRates(t *testing.T) {
	h, sub, sender := newTestHandler(t)

	err := h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgSubscribePrices, Assets: []types.AssetId{btc, eth}})
	require.NoError(t, err)

	require.Len(t, sub.added, 1)
	assert.ElementsMatch(t, []string{"prices:asset:bitcoin", "prices:asset:ethereum"}, sub.added[0])

	require.Len(t, sender.events, 1)
	frame := sender.events[0]
	assert.Equal(t, types.StreamEventPrices, frame.Type)
	require.NotNil(t, frame.Prices)
	assert.Len(t, frame.Prices.Prices, 2)
	assert.Len(t, frame.Prices.Rates, 1)
}

func TestSubscribeReplacesPreviousSet(t *testing.T) {
	h, sub, _ := newTestHandler(t)

	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgSubscribePrices, Assets: []types.AssetId{btc}}))
	require.NoError(t, h.handlePush(pricePush(t, btc, 65001)))
	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgSubscribePrices, Assets: []types.AssetId{eth}}))

	require.Len(t, sub.removed, 1)
	assert.Equal(t, []string{"prices:asset:bitcoin"}, sub.removed[0])
	assert.Empty(t, h.pending, "subscribe resets pending prices")
	_, tracked := h.assets[btc]
	assert.False(t, tracked)
}

func TestAddPricesSendsOnlyNewWithoutRates(t *testing.T) {
	h, sub, sender := newTestHandler(t)

	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgSubscribePrices, Assets: []types.AssetId{btc}}))
	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgAddPrices, Assets: []types.AssetId{btc, eth}}))

	require.Len(t, sub.added, 2)
	assert.Equal(t, []string{"prices:asset:ethereum"}, sub.added[1])

	frame := sender.events[1]
	require.NotNil(t, frame.Prices)
	assert.Empty(t, frame.Prices.Rates)
	require.Len(t, frame.Prices.Prices, 1)
	assert.Equal(t, eth, frame.Prices.Prices[0].AssetId)
}

func TestUnsubscribeSendsRemaining(t *testing.T) {
	h, sub, sender := newTestHandler(t)

	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgSubscribePrices, Assets: []types.AssetId{btc, eth}}))
	require.NoError(t, h.handlePush(pricePush(t, btc, 65001)))
	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgUnsubscribePrices, Assets: []types.AssetId{btc}}))

	require.Len(t, sub.removed, 1)
	assert.Equal(t, []string{"prices:asset:bitcoin"}, sub.removed[0])
	assert.Empty(t, h.pending, "pending entries for removed assets are dropped")

	frame := sender.events[len(sender.events)-1]
	require.NotNil(t, frame.Prices)
	require.Len(t, frame.Prices.Prices, 1)
	assert.Equal(t, eth, frame.Prices.Prices[0].AssetId)
}

func TestTickCoalescesToOneFrame(t *testing.T) {
	h, sub, sender := newTestHandler(t)
	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgSubscribePrices, Assets: []types.AssetId{btc, eth}}))
	sent := len(sender.events)

	for i := 0; i < 50; i++ {
		require.NoError(t, h.handlePush(pricePush(t, btc, 65000+float64(i))))
	}
	require.NoError(t, h.handlePush(pricePush(t, eth, 3201)))
	assert.Len(t, sender.events, sent, "pushes alone emit nothing")

	require.NoError(t, h.flush())
	require.Len(t, sender.events, sent+1)
	frame := sender.events[sent]
	require.NotNil(t, frame.Prices)
	require.Len(t, frame.Prices.Prices, 2)
	byId := map[types.AssetId]float64{}
	for _, p := range frame.Prices.Prices {
		byId[p.AssetId] = p.Price
	}
	assert.Equal(t, 65049.0, byId[btc], "latest push wins")
	assert.Equal(t, 3201.0, byId[eth])

	require.NoError(t, h.flush())
	assert.Len(t, sender.events, sent+1, "empty pending emits nothing")
}

func TestPushForUntrackedAssetIgnored(t *testing.T) {
	h, sub, sender := newTestHandler(t)
	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgSubscribePrices, Assets: []types.AssetId{eth}}))

	require.NoError(t, h.handlePush(pricePush(t, btc, 65001)))
	assert.Empty(t, h.pending)
	require.NoError(t, h.flush())
	assert.Len(t, sender.events, 1, "only the subscribe snapshot was sent")
}

func TestRealtimeBypassesTick(t *testing.T) {
	h, sub, sender := newTestHandler(t)
	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgSubscribeRealtimePrices, Assets: []types.AssetId{btc}}))
	sent := len(sender.events)

	require.NoError(t, h.handlePush(pricePush(t, btc, 65001)))
	require.Len(t, sender.events, sent+1)
	assert.Empty(t, h.pending)

	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgUnsubscribeRealtimePrices, Assets: []types.AssetId{btc}}))
	require.NoError(t, h.handlePush(pricePush(t, btc, 65002)))
	assert.Len(t, sender.events, sent+1, "back to coalescing")
	assert.Len(t, h.pending, 1)
}

func TestWalletEventForwardedVerbatim(t *testing.T) {
	h, _, sender := newTestHandler(t)
	event := types.NewTransactionsStreamEvent(7, []types.TransactionId{types.NewTransactionId(types.ChainEthereum, "abc")})
	data, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, h.handlePush(FeedMessage{Channel: cache.WalletEvents(7).String(), Data: data}))
	require.Len(t, sender.events, 1)
	assert.Equal(t, types.StreamEventTransactions, sender.events[0].Type)
	require.NotNil(t, sender.events[0].Transactions)
	assert.Equal(t, int64(7), sender.events[0].Transactions.WalletId)
}

func TestRunStopsOnCancel(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.flushEvery = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	inbound := make(chan types.StreamMessage)
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, inbound) }()

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("handler did not stop on cancel")
	}
}

func TestShutdownFlushesPendingPrices(t *testing.T) {
	h, sub, sender := newTestHandler(t)
	h.flushEvery = time.Hour // no tick fires before cancel

	require.NoError(t, h.handleMessage(sub, types.StreamMessage{Type: types.StreamMsgSubscribePrices, Assets: []types.AssetId{btc}}))
	sent := len(sender.events)
	require.NoError(t, h.handlePush(pricePush(t, btc, 65049)))
	require.Len(t, h.pending, 1)

	ctx, cancel := context.WithCancel(context.Background())
	inbound := make(chan types.StreamMessage)
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, inbound) }()

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("handler did not stop on cancel")
	}

	// The price buffered between ticks goes out in one final frame.
	require.Len(t, sender.events, sent+1)
	frame := sender.events[len(sender.events)-1]
	require.NotNil(t, frame.Prices)
	require.Len(t, frame.Prices.Prices, 1)
	assert.Equal(t, 65049.0, frame.Prices.Prices[0].Price)
	assert.Empty(t, h.pending)
}

func TestRunStopsWhenInboundCloses(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.flushEvery = 10 * time.Millisecond

	inbound := make(chan types.StreamMessage)
	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background(), inbound) }()

	close(inbound)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("handler did not stop on inbound close")
	}
}
