package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TransactionId is "<chain>_<hash>", globally unique.
type TransactionId struct {
	Chain Chain
	Hash  string
}

func NewTransactionId(chain Chain, hash string) TransactionId {
	return TransactionId{Chain: chain, Hash: hash}
}

func ParseTransactionId(s string) (TransactionId, error) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return TransactionId{}, errors.Errorf("malformed transaction id %q", s)
	}
	chain, err := ParseChain(parts[0])
	if err != nil {
		return TransactionId{}, errors.Wrapf(err, "transaction id %q", s)
	}
	return TransactionId{Chain: chain, Hash: parts[1]}, nil
}

func (t TransactionId) String() string {
	return fmt.Sprintf("%s_%s", t.Chain, t.Hash)
}

func (t TransactionId) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TransactionId) UnmarshalText(b []byte) error {
	id, err := ParseTransactionId(string(b))
	if err != nil {
		return err
	}
	*t = id
	return nil
}

type TransactionType string

const (
	TransactionTypeTransfer        TransactionType = "transfer"
	TransactionTypeSwap            TransactionType = "swap"
	TransactionTypeTokenApproval   TransactionType = "tokenApproval"
	TransactionTypeStakeDelegate   TransactionType = "stakeDelegate"
	TransactionTypeStakeUndelegate TransactionType = "stakeUndelegate"
	TransactionTypeStakeRedelegate TransactionType = "stakeRedelegate"
	TransactionTypeStakeRewards    TransactionType = "stakeRewards"
)

type TransactionState string

const (
	TransactionStatePending   TransactionState = "pending"
	TransactionStateConfirmed TransactionState = "confirmed"
	TransactionStateReverted  TransactionState = "reverted"
	TransactionStateFailed    TransactionState = "failed"
)

// IsTerminal reports whether the state admits no further transition.
func (s TransactionState) IsTerminal() bool {
	return s == TransactionStateConfirmed || s == TransactionStateReverted || s == TransactionStateFailed
}

// CanTransitionTo enforces Pending -> {Confirmed, Reverted, Failed}.
func (s TransactionState) CanTransitionTo(next TransactionState) bool {
	if s == next {
		return true
	}
	return s == TransactionStatePending
}

// UTXO is one input or output leg of a UTXO-chain transaction.
type UTXO struct {
	Address string `json:"address"`
	Value   string `json:"value"`
}

type Transaction struct {
	Id          TransactionId    `json:"id"`
	AssetId     AssetId          `json:"asset_id"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Memo        string           `json:"memo,omitempty"`
	Type        TransactionType  `json:"type"`
	State       TransactionState `json:"state"`
	BlockNumber int64            `json:"block_number"`
	Sequence    int64            `json:"sequence"`
	Fee         string           `json:"fee"`
	FeeAssetId  AssetId          `json:"fee_asset_id"`
	Value       string           `json:"value"`
	CreatedAt   time.Time        `json:"created_at"`
	UtxoInputs  []UTXO           `json:"utxo_inputs,omitempty"`
	UtxoOutputs []UTXO           `json:"utxo_outputs,omitempty"`
}

// Addresses returns every distinct address the transaction touches:
// from, to, and all UTXO legs, in first-seen order.
func (t Transaction) Addresses() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	add(t.From)
	add(t.To)
	for _, in := range t.UtxoInputs {
		add(in.Address)
	}
	for _, o := range t.UtxoOutputs {
		add(o.Address)
	}
	return out
}

// IsOutdated reports whether the transaction was already older than the
// chain's limit at observation time now.
func (t Transaction) IsOutdated(now time.Time) bool {
	return now.Sub(t.CreatedAt) > t.Id.Chain.OutdatedLimit()
}

// TransactionsPayload is the store_transactions queue message body.
type TransactionsPayload struct {
	Chain        Chain         `json:"chain"`
	Block        int64         `json:"block"`
	Transactions []Transaction `json:"transactions"`
}

// BlockRangePayload is the fetch_blocks queue message body: a range the
// parser was too far behind to process inline.
type BlockRangePayload struct {
	Chain  Chain   `json:"chain"`
	Blocks []int64 `json:"blocks"`
}

// FetchAssetsPayload asks the asset fetcher to resolve unseen tokens.
type FetchAssetsPayload struct {
	AssetIds []string `json:"asset_ids"`
}

// NewAddressesPayload is published on the new_addresses exchange for each
// first-seen address.
type NewAddressesPayload struct {
	Chain     Chain    `json:"chain"`
	Addresses []string `json:"addresses"`
}
