package types

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Chain identifies a supported blockchain network. The set is closed:
// adding a chain is a code change, not configuration.
type Chain string

const (
	ChainBitcoin     Chain = "bitcoin"
	ChainBitcoinCash Chain = "bitcoincash"
	ChainLitecoin    Chain = "litecoin"
	ChainDoge        Chain = "doge"
	ChainEthereum    Chain = "ethereum"
	ChainSmartChain  Chain = "smartchain"
	ChainPolygon     Chain = "polygon"
	ChainArbitrum    Chain = "arbitrum"
	ChainOptimism    Chain = "optimism"
	ChainBase        Chain = "base"
	ChainAvalancheC  Chain = "avalanchec"
	ChainOpBNB       Chain = "opbnb"
	ChainFantom      Chain = "fantom"
	ChainGnosis      Chain = "gnosis"
	ChainManta       Chain = "manta"
	ChainBlast       Chain = "blast"
	ChainZkSync      Chain = "zksync"
	ChainLinea       Chain = "linea"
	ChainMantle      Chain = "mantle"
	ChainCelo        Chain = "celo"
	ChainSolana      Chain = "solana"
	ChainCosmos      Chain = "cosmos"
	ChainOsmosis     Chain = "osmosis"
	ChainCelestia    Chain = "celestia"
	ChainInjective   Chain = "injective"
	ChainSei         Chain = "sei"
	ChainNoble       Chain = "noble"
	ChainThorchain   Chain = "thorchain"
	ChainSui         Chain = "sui"
	ChainTon         Chain = "ton"
	ChainTron        Chain = "tron"
	ChainXrp         Chain = "xrp"
	ChainNear        Chain = "near"
	ChainAptos       Chain = "aptos"
	ChainStellar     Chain = "stellar"
	ChainCardano     Chain = "cardano"
	ChainPolkadot    Chain = "polkadot"
	ChainAlgorand    Chain = "algorand"
)

// ChainType groups chains by their transaction model.
type ChainType string

const (
	ChainTypeEVM      ChainType = "evm"
	ChainTypeUTXO     ChainType = "utxo"
	ChainTypeSolana   ChainType = "solana"
	ChainTypeCosmos   ChainType = "cosmos"
	ChainTypeSui      ChainType = "sui"
	ChainTypeTon      ChainType = "ton"
	ChainTypeTron     ChainType = "tron"
	ChainTypeXrp      ChainType = "xrp"
	ChainTypeNear     ChainType = "near"
	ChainTypeAptos    ChainType = "aptos"
	ChainTypeStellar  ChainType = "stellar"
	ChainTypeCardano  ChainType = "cardano"
	ChainTypePolkadot ChainType = "polkadot"
	ChainTypeAlgorand ChainType = "algorand"
)

type chainParams struct {
	Type        ChainType
	BlockTimeMs int64
}

var chainTable = map[Chain]chainParams{
	ChainBitcoin:     {ChainTypeUTXO, 600_000},
	ChainBitcoinCash: {ChainTypeUTXO, 600_000},
	ChainLitecoin:    {ChainTypeUTXO, 150_000},
	ChainDoge:        {ChainTypeUTXO, 60_000},
	ChainEthereum:    {ChainTypeEVM, 12_000},
	ChainSmartChain:  {ChainTypeEVM, 3_000},
	ChainPolygon:     {ChainTypeEVM, 3_000},
	ChainArbitrum:    {ChainTypeEVM, 1_000},
	ChainOptimism:    {ChainTypeEVM, 2_000},
	ChainBase:        {ChainTypeEVM, 2_000},
	ChainAvalancheC:  {ChainTypeEVM, 2_000},
	ChainOpBNB:       {ChainTypeEVM, 1_000},
	ChainFantom:      {ChainTypeEVM, 1_000},
	ChainGnosis:      {ChainTypeEVM, 5_000},
	ChainManta:       {ChainTypeEVM, 10_000},
	ChainBlast:       {ChainTypeEVM, 2_000},
	ChainZkSync:      {ChainTypeEVM, 1_000},
	ChainLinea:       {ChainTypeEVM, 12_000},
	ChainMantle:      {ChainTypeEVM, 2_000},
	ChainCelo:        {ChainTypeEVM, 5_000},
	ChainSolana:      {ChainTypeSolana, 500},
	ChainCosmos:      {ChainTypeCosmos, 6_000},
	ChainOsmosis:     {ChainTypeCosmos, 6_000},
	ChainCelestia:    {ChainTypeCosmos, 12_000},
	ChainInjective:   {ChainTypeCosmos, 3_000},
	ChainSei:         {ChainTypeCosmos, 1_000},
	ChainNoble:       {ChainTypeCosmos, 6_000},
	ChainThorchain:   {ChainTypeCosmos, 6_000},
	ChainSui:         {ChainTypeSui, 500},
	ChainTon:         {ChainTypeTon, 5_000},
	ChainTron:        {ChainTypeTron, 3_000},
	ChainXrp:         {ChainTypeXrp, 4_000},
	ChainNear:        {ChainTypeNear, 1_000},
	ChainAptos:       {ChainTypeAptos, 500},
	ChainStellar:     {ChainTypeStellar, 5_000},
	ChainCardano:     {ChainTypeCardano, 20_000},
	ChainPolkadot:    {ChainTypePolkadot, 6_000},
	ChainAlgorand:    {ChainTypeAlgorand, 3_000},
}

// AllChains returns every supported chain in stable order.
func AllChains() []Chain {
	chains := make([]Chain, 0, len(chainTable))
	for c := range chainTable {
		chains = append(chains, c)
	}
	sortChains(chains)
	return chains
}

func sortChains(chains []Chain) {
	for i := 1; i < len(chains); i++ {
		for j := i; j > 0 && chains[j] < chains[j-1]; j-- {
			chains[j], chains[j-1] = chains[j-1], chains[j]
		}
	}
}

// ParseChain converts a chain identifier string into a Chain.
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToLower(s))
	if _, ok := chainTable[c]; !ok {
		return "", errors.Errorf("unknown chain %q", s)
	}
	return c, nil
}

func (c Chain) String() string { return string(c) }

func (c Chain) Type() ChainType { return chainTable[c].Type }

func (c Chain) BlockTime() time.Duration {
	return time.Duration(chainTable[c].BlockTimeMs) * time.Millisecond
}

// OutdatedLimit is how old a transaction may be at first observation
// before the transactions consumer drops it.
func (c Chain) OutdatedLimit() time.Duration {
	switch c {
	case ChainBitcoin:
		return 2 * time.Hour
	case ChainLitecoin, ChainDoge:
		return 30 * time.Minute
	default:
		return 15 * time.Minute
	}
}
