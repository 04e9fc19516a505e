package provider

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

// ERC-20 read selectors.
const (
	selectorName     = "0x06fdde03"
	selectorSymbol   = "0x95d89b41"
	selectorDecimals = "0x313ce567"
)

// EvmProvider adapts any account-model chain speaking standard JSON-RPC.
// It implements the full capability set: blocks, token metadata and
// balances.
type EvmProvider struct {
	chain types.Chain
	rpc   *rpcClient
}

func NewEvmProvider(chain types.Chain, nodeURL string, timeout time.Duration) *EvmProvider {
	return &EvmProvider{chain: chain, rpc: newRPCClient(nodeURL, timeout)}
}

func (p *EvmProvider) Chain() types.Chain { return p.chain }

func (p *EvmProvider) GetLatestBlock(ctx context.Context) (int64, error) {
	var raw string
	if err := p.rpc.Call(ctx, &raw, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return parseHexInt64(raw)
}

type evmBlock struct {
	Number       string  `json:"number"`
	Timestamp    string  `json:"timestamp"`
	Transactions []evmTx `json:"transactions"`
}

type evmTx struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
	Input    string `json:"input"`
}

// GetTransactions returns the block's native value transfers. Contract
// deployments and zero-value calls are skipped; token transfers surface
// later through the association fetchers.
func (p *EvmProvider) GetTransactions(ctx context.Context, block int64) ([]types.Transaction, error) {
	var blk *evmBlock
	number := "0x" + big.NewInt(block).Text(16)
	if err := p.rpc.Call(ctx, &blk, "eth_getBlockByNumber", number, true); err != nil {
		return nil, err
	}
	if blk == nil {
		return nil, walleterrors.E(walleterrors.KindTransient, errors.Errorf("block %d not available yet", block))
	}

	ts, err := parseHexInt64(blk.Timestamp)
	if err != nil {
		return nil, err
	}
	createdAt := time.Unix(ts, 0).UTC()
	nativeAsset := types.NewAssetId(p.chain)

	out := make([]types.Transaction, 0, len(blk.Transactions))
	for _, tx := range blk.Transactions {
		if tx.To == "" {
			continue
		}
		value, ok := parseHexBig(tx.Value)
		if !ok || value.Sign() == 0 {
			continue
		}
		out = append(out, types.Transaction{
			Id:          types.NewTransactionId(p.chain, tx.Hash),
			AssetId:     nativeAsset,
			From:        strings.ToLower(tx.From),
			To:          strings.ToLower(tx.To),
			Type:        types.TransactionTypeTransfer,
			State:       types.TransactionStateConfirmed,
			BlockNumber: block,
			Fee:         feeOf(tx),
			FeeAssetId:  nativeAsset,
			Value:       value.String(),
			CreatedAt:   createdAt,
		})
	}
	return out, nil
}

// GetTokenData reads ERC-20 metadata via eth_call.
func (p *EvmProvider) GetTokenData(ctx context.Context, tokenId string) (types.Asset, error) {
	name, err := p.callString(ctx, tokenId, selectorName)
	if err != nil {
		return types.Asset{}, err
	}
	symbol, err := p.callString(ctx, tokenId, selectorSymbol)
	if err != nil {
		return types.Asset{}, err
	}
	raw, err := p.ethCall(ctx, tokenId, selectorDecimals)
	if err != nil {
		return types.Asset{}, err
	}
	decimals, ok := parseHexBig(raw)
	if !ok || !decimals.IsInt64() || decimals.Int64() < 0 || decimals.Int64() > 36 {
		return types.Asset{}, walleterrors.E(walleterrors.KindUpstream, errors.Errorf("token %s bad decimals %q", tokenId, raw))
	}

	return types.Asset{
		Id:       types.NewTokenAssetId(p.chain, strings.ToLower(tokenId)),
		Name:     name,
		Symbol:   symbol,
		Decimals: int32(decimals.Int64()),
		Type:     types.AssetTypeToken,
	}, nil
}

// GetAssetsBalances reports the address's native balance.
func (p *EvmProvider) GetAssetsBalances(ctx context.Context, address string) ([]types.AssetBalance, error) {
	var raw string
	if err := p.rpc.Call(ctx, &raw, "eth_getBalance", address, "latest"); err != nil {
		return nil, err
	}
	balance, ok := parseHexBig(raw)
	if !ok {
		return nil, errors.Errorf("bad balance %q for %s", raw, address)
	}
	return []types.AssetBalance{{
		AssetId: types.NewAssetId(p.chain),
		Balance: balance.String(),
	}}, nil
}

func (p *EvmProvider) ethCall(ctx context.Context, to, data string) (string, error) {
	var raw string
	call := map[string]string{"to": to, "data": data}
	if err := p.rpc.Call(ctx, &raw, "eth_call", call, "latest"); err != nil {
		return "", err
	}
	return raw, nil
}

func (p *EvmProvider) callString(ctx context.Context, to, selector string) (string, error) {
	raw, err := p.ethCall(ctx, to, selector)
	if err != nil {
		return "", err
	}
	s, err := decodeAbiString(raw)
	if err != nil {
		return "", walleterrors.E(walleterrors.KindUpstream, errors.Wrapf(err, "token %s", to))
	}
	return s, nil
}

func feeOf(tx evmTx) string {
	gas, ok1 := parseHexBig(tx.Gas)
	price, ok2 := parseHexBig(tx.GasPrice)
	if !ok1 || !ok2 {
		return "0"
	}
	return new(big.Int).Mul(gas, price).String()
}

// decodeAbiString decodes an ABI-encoded dynamic string return value:
// 32-byte offset, 32-byte length, then the bytes.
func decodeAbiString(raw string) (string, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return "", errors.Wrap(err, "bad abi hex")
	}
	if len(data) < 64 {
		return "", errors.New("abi string too short")
	}
	offset := new(big.Int).SetBytes(data[:32])
	if !offset.IsInt64() || offset.Int64()+32 > int64(len(data)) {
		return "", errors.New("abi offset out of range")
	}
	start := offset.Int64()
	length := new(big.Int).SetBytes(data[start : start+32])
	if !length.IsInt64() || start+32+length.Int64() > int64(len(data)) {
		return "", errors.New("abi length out of range")
	}
	return string(data[start+32 : start+32+length.Int64()]), nil
}
