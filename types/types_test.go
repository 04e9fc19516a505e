package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChain(t *testing.T) {
	chain, err := ParseChain("Ethereum")
	require.NoError(t, err)
	assert.Equal(t, ChainEthereum, chain)
	assert.Equal(t, ChainTypeEVM, chain.Type())

	_, err = ParseChain("dogecoin2")
	assert.Error(t, err)
}

func TestChainOutdatedLimit(t *testing.T) {
	assert.Equal(t, 2*time.Hour, ChainBitcoin.OutdatedLimit())
	assert.Equal(t, 30*time.Minute, ChainLitecoin.OutdatedLimit())
	assert.Equal(t, 30*time.Minute, ChainDoge.OutdatedLimit())
	assert.Equal(t, 15*time.Minute, ChainEthereum.OutdatedLimit())
	assert.Equal(t, 15*time.Minute, ChainSolana.OutdatedLimit())
}

func TestAssetIdRoundTrip(t *testing.T) {
	for _, s := range []string{
		"ethereum",
		"ethereum_0xdAC17F958D2ee523a2206206994597C13D831ec7",
		"solana_EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"ton_EQCxE6mUtQJKFnGfaROTKOt1lZbDiiX1kCixRv7Nw2Id_sDs",
	} {
		id, err := ParseAssetId(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, id.String())
	}
}

func TestParseAssetIdRejects(t *testing.T) {
	for _, s := range []string{"", "unknown", "ethereum_", "_0xabc"} {
		_, err := ParseAssetId(s)
		assert.Error(t, err, s)
	}
}

func TestTransactionIdRoundTrip(t *testing.T) {
	id := NewTransactionId(ChainBitcoin, "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b")
	parsed, err := ParseTransactionId(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestTransactionStateTransitions(t *testing.T) {
	assert.True(t, TransactionStatePending.CanTransitionTo(TransactionStateConfirmed))
	assert.True(t, TransactionStatePending.CanTransitionTo(TransactionStateFailed))
	assert.True(t, TransactionStateConfirmed.CanTransitionTo(TransactionStateConfirmed))
	assert.False(t, TransactionStateConfirmed.CanTransitionTo(TransactionStatePending))
	assert.False(t, TransactionStateReverted.CanTransitionTo(TransactionStateConfirmed))
}

func TestTransactionAddresses(t *testing.T) {
	tx := Transaction{
		From: "addr1",
		To:   "addr2",
		UtxoInputs: []UTXO{
			{Address: "addr1", Value: "100"},
			{Address: "addr3", Value: "50"},
		},
		UtxoOutputs: []UTXO{
			{Address: "addr2", Value: "149"},
			{Address: "", Value: "1"},
		},
	}
	assert.Equal(t, []string{"addr1", "addr2", "addr3"}, tx.Addresses())
}

func TestTransactionIsOutdated(t *testing.T) {
	now := time.Now()
	tx := Transaction{Id: NewTransactionId(ChainBitcoin, "h")}

	tx.CreatedAt = now.Add(-2*time.Hour - time.Second)
	assert.True(t, tx.IsOutdated(now))

	tx.CreatedAt = now.Add(-2*time.Hour + time.Second)
	assert.False(t, tx.IsOutdated(now))
}

func TestStreamMessageRoundTrip(t *testing.T) {
	msgs := []StreamMessage{
		{Type: StreamMsgSubscribePrices, Assets: []AssetId{NewAssetId(ChainBitcoin), NewAssetId(ChainEthereum)}},
		{Type: StreamMsgAddPrices, Assets: []AssetId{NewTokenAssetId(ChainEthereum, "0xabc")}},
		{Type: StreamMsgUnsubscribePrices},
	}
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		decoded, err := DecodeStreamMessage(data)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	}
}

func TestDecodeStreamMessageRejectsUnknown(t *testing.T) {
	_, err := DecodeStreamMessage([]byte(`{"type":"bogus"}`))
	assert.Error(t, err)
}

func TestStreamEventRoundTrip(t *testing.T) {
	ev := NewPricesStreamEvent(
		[]AssetPrice{{AssetId: NewAssetId(ChainBitcoin), Price: 64000.5, PriceChange24h: -1.2}},
		[]FiatRate{{Symbol: "EUR", Rate: 0.92}},
	)
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	decoded, err := DecodeStreamEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}
