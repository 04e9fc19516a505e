package parser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletbase/walletd/bus"
	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/metrics"
	"github.com/walletbase/walletd/store"
	"github.com/walletbase/walletd/types"
)

type fakeProvider struct {
	chain  types.Chain
	latest int64
	txs    map[int64][]types.Transaction
}

func (p *fakeProvider) Chain() types.Chain { return p.chain }

func (p *fakeProvider) GetLatestBlock(context.Context) (int64, error) {
	return p.latest, nil
}

func (p *fakeProvider) GetTransactions(_ context.Context, block int64) ([]types.Transaction, error) {
	return p.txs[block], nil
}

type fakeStateStore struct {
	mu      sync.Mutex
	state   store.ParserState
	current []int64
}

func (s *fakeStateStore) GetParserState(types.Chain) (store.ParserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *fakeStateStore) SetParserCurrentBlock(_ types.Chain, block int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentBlock = block
	s.current = append(s.current, block)
	return nil
}

func (s *fakeStateStore) SetParserLatestBlock(_ types.Chain, block int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LatestBlock = block
	return nil
}

type fakeCache struct{}

func (fakeCache) Set(cache.CacheKey, interface{}) error { return nil }

type published struct {
	queue    bus.QueueName
	exchange bus.ExchangeName
	payload  interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(queue bus.QueueName, payload interface{}, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{queue: queue, payload: payload})
	return nil
}

func (p *fakePublisher) PublishExchange(exchange bus.ExchangeName, payload interface{}, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{exchange: exchange, payload: payload})
	return nil
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func newTestParser(state store.ParserState, provider ChainProvider, pub *fakePublisher) (*Parser, *fakeStateStore) {
	db := &fakeStateStore{state: state}
	p := New(state.Chain, db, fakeCache{}, pub, NewRegistry(provider), metrics.NewJobMetrics(), 10*time.Millisecond)
	return p, db
}

func TestParserParsesNearTip(t *testing.T) {
	chain := types.ChainEthereum
	provider := &fakeProvider{
		chain:  chain,
		latest: 10,
		txs: map[int64][]types.Transaction{
			6: {{Id: types.NewTransactionId(chain, "a")}},
			7: {},
			8: {{Id: types.NewTransactionId(chain, "b")}},
		},
	}
	queueBehind := int32(100)
	state := store.ParserState{
		Chain:             chain,
		IsEnabled:         true,
		CurrentBlock:      5,
		ParallelBlocks:    3,
		AwaitBlocks:       1,
		QueueBehindBlocks: &queueBehind,
	}
	pub := &fakePublisher{}
	p, db := newTestParser(state, provider, pub)

	require.NoError(t, p.iterate(context.Background(), state))

	msgs := pub.all()
	require.Len(t, msgs, 3)
	wantQueue := bus.QueueStoreTransactions.ForChain(chain)
	for i, msg := range msgs {
		assert.Equal(t, wantQueue, msg.queue)
		payload := msg.payload.(types.TransactionsPayload)
		assert.Equal(t, int64(6+i), payload.Block)
	}
	assert.Equal(t, []int64{8}, db.current)
}

func TestParserEnqueuesWhenFarBehind(t *testing.T) {
	chain := types.ChainEthereum
	provider := &fakeProvider{chain: chain, latest: 20}
	queueBehind := int32(2)
	state := store.ParserState{
		Chain:             chain,
		IsEnabled:         true,
		CurrentBlock:      5,
		ParallelBlocks:    3,
		AwaitBlocks:       1,
		QueueBehindBlocks: &queueBehind,
	}
	pub := &fakePublisher{}
	p, db := newTestParser(state, provider, pub)

	require.NoError(t, p.iterate(context.Background(), state))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, bus.QueueFetchBlocks, msgs[0].queue)
	payload := msgs[0].payload.(types.BlockRangePayload)
	assert.Equal(t, []int64{6, 7, 8}, payload.Blocks)
	assert.Equal(t, []int64{8}, db.current)
}

func TestParserNoPlanSleepsOnly(t *testing.T) {
	chain := types.ChainEthereum
	provider := &fakeProvider{chain: chain, latest: 5}
	state := store.ParserState{
		Chain:          chain,
		IsEnabled:      true,
		CurrentBlock:   5,
		ParallelBlocks: 3,
	}
	pub := &fakePublisher{}
	p, db := newTestParser(state, provider, pub)

	require.NoError(t, p.iterate(context.Background(), state))
	assert.Empty(t, pub.all())
	assert.Empty(t, db.current)
	// latest block is still persisted.
	assert.EqualValues(t, 5, db.state.LatestBlock)
}

func TestRegistryCapabilities(t *testing.T) {
	provider := &fakeProvider{chain: types.ChainSolana}
	reg := NewRegistry(provider)

	got, err := reg.Provider(types.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, provider, got)

	_, err = reg.Provider(types.ChainBitcoin)
	assert.Error(t, err)

	// fakeProvider implements neither optional capability.
	_, ok := reg.TokenData(types.ChainSolana)
	assert.False(t, ok)
	_, ok = reg.Balances(types.ChainSolana)
	assert.False(t, ok)
}

func TestParserRunStopsOnCancel(t *testing.T) {
	chain := types.ChainEthereum
	provider := &fakeProvider{chain: chain, latest: 5}
	state := store.ParserState{Chain: chain, IsEnabled: false}
	pub := &fakePublisher{}
	p, _ := newTestParser(state, provider, pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("parser did not stop on cancel")
	}
}
