package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// AssetId identifies a coin or token: "<chain>" for the native coin,
// "<chain>_<token_id>" for tokens. Token ids are canonicalized per chain
// by the chain adapters before they reach this layer.
type AssetId struct {
	Chain   Chain
	TokenId string
}

func NewAssetId(chain Chain) AssetId {
	return AssetId{Chain: chain}
}

func NewTokenAssetId(chain Chain, tokenId string) AssetId {
	return AssetId{Chain: chain, TokenId: tokenId}
}

// ParseAssetId parses the canonical string form. Token ids may themselves
// contain underscores, so only the first separator is significant.
func ParseAssetId(s string) (AssetId, error) {
	if s == "" {
		return AssetId{}, errors.New("empty asset id")
	}
	parts := strings.SplitN(s, "_", 2)
	chain, err := ParseChain(parts[0])
	if err != nil {
		return AssetId{}, errors.Wrapf(err, "asset id %q", s)
	}
	if len(parts) == 1 {
		return AssetId{Chain: chain}, nil
	}
	if parts[1] == "" {
		return AssetId{}, errors.Errorf("asset id %q has empty token id", s)
	}
	return AssetId{Chain: chain, TokenId: parts[1]}, nil
}

func (a AssetId) IsNative() bool { return a.TokenId == "" }

func (a AssetId) String() string {
	if a.TokenId == "" {
		return string(a.Chain)
	}
	return fmt.Sprintf("%s_%s", a.Chain, a.TokenId)
}

func (a AssetId) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AssetId) UnmarshalText(b []byte) error {
	id, err := ParseAssetId(string(b))
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// AssetType is the token standard of an asset.
type AssetType string

const (
	AssetTypeNative AssetType = "NATIVE"
	AssetTypeERC20  AssetType = "ERC20"
	AssetTypeBEP20  AssetType = "BEP20"
	AssetTypeSPL    AssetType = "SPL"
	AssetTypeTRC20  AssetType = "TRC20"
	AssetTypeIBC    AssetType = "IBC"
	AssetTypeJetton AssetType = "JETTON"
	AssetTypeToken  AssetType = "TOKEN"
)

const (
	AssetDecimalsMin = 0
	AssetDecimalsMax = 36
)

type Asset struct {
	Id       AssetId   `json:"id"`
	Name     string    `json:"name"`
	Symbol   string    `json:"symbol"`
	Decimals int32     `json:"decimals"`
	Type     AssetType `json:"type"`
	Rank     int32     `json:"rank"`
}

func (a Asset) Validate() error {
	if a.Decimals < AssetDecimalsMin || a.Decimals > AssetDecimalsMax {
		return errors.Errorf("asset %s: decimals %d out of range", a.Id, a.Decimals)
	}
	if a.Symbol == "" {
		return errors.Errorf("asset %s: empty symbol", a.Id)
	}
	return nil
}

// AssetBalance is a provider-reported balance for one address.
type AssetBalance struct {
	AssetId AssetId `json:"asset_id"`
	Balance string  `json:"balance"`
}
