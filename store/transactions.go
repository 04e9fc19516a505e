package store

import (
	"encoding/json"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

func rowFromTransaction(tx types.Transaction) (TransactionRow, error) {
	inputs, err := json.Marshal(tx.UtxoInputs)
	if err != nil {
		return TransactionRow{}, errors.Wrap(err, "marshal utxo inputs")
	}
	outputs, err := json.Marshal(tx.UtxoOutputs)
	if err != nil {
		return TransactionRow{}, errors.Wrap(err, "marshal utxo outputs")
	}
	return TransactionRow{
		Id:          tx.Id.String(),
		Chain:       tx.Id.Chain.String(),
		Hash:        tx.Id.Hash,
		AssetId:     tx.AssetId.String(),
		FromAddress: tx.From,
		ToAddress:   tx.To,
		Memo:        tx.Memo,
		Type:        string(tx.Type),
		State:       string(tx.State),
		BlockNumber: tx.BlockNumber,
		Sequence:    tx.Sequence,
		Fee:         tx.Fee,
		FeeAssetId:  tx.FeeAssetId.String(),
		Value:       tx.Value,
		UtxoInputs:  string(inputs),
		UtxoOutputs: string(outputs),
		CreatedAt:   tx.CreatedAt,
	}, nil
}

// UpsertTransaction inserts the transaction or updates the existing row.
// created_at is set once at first observation; a terminal state never
// regresses to pending (Invariant error, the delivery is dropped).
// Applying the same transaction twice is a no-op.
func (d *Database) UpsertTransaction(tx types.Transaction) error {
	row, err := rowFromTransaction(tx)
	if err != nil {
		return err
	}
	var existing TransactionRow
	err = d.db.Where("id = ?", row.Id).First(&existing).Error
	if gorm.IsRecordNotFoundError(err) {
		row.UpdatedAt = time.Now()
		return errors.Wrapf(d.db.Create(&row).Error, "insert transaction %s", row.Id)
	}
	if err != nil {
		return errors.Wrap(err, "lookup transaction")
	}

	current := types.TransactionState(existing.State)
	next := types.TransactionState(row.State)
	if !current.CanTransitionTo(next) {
		return walleterrors.Invariant("transaction %s: state %s cannot transition to %s", row.Id, current, next)
	}
	updates := map[string]interface{}{
		"state":        row.State,
		"block_number": row.BlockNumber,
		"fee":          row.Fee,
		"updated_at":   time.Now(),
	}
	return errors.Wrapf(d.db.Model(&TransactionRow{}).Where("id = ?", row.Id).
		Updates(updates).Error, "update transaction %s", row.Id)
}

func (d *Database) GetTransaction(id types.TransactionId) (types.Transaction, error) {
	var row TransactionRow
	err := d.db.Where("id = ?", id.String()).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return types.Transaction{}, walleterrors.NotFound("transaction " + id.String())
	}
	if err != nil {
		return types.Transaction{}, errors.Wrap(err, "get transaction")
	}
	return transactionFromRow(row)
}

func transactionFromRow(row TransactionRow) (types.Transaction, error) {
	txId, err := types.ParseTransactionId(row.Id)
	if err != nil {
		return types.Transaction{}, err
	}
	assetId, err := types.ParseAssetId(row.AssetId)
	if err != nil {
		return types.Transaction{}, err
	}
	feeAssetId, err := types.ParseAssetId(row.FeeAssetId)
	if err != nil {
		return types.Transaction{}, err
	}
	tx := types.Transaction{
		Id:          txId,
		AssetId:     assetId,
		From:        row.FromAddress,
		To:          row.ToAddress,
		Memo:        row.Memo,
		Type:        types.TransactionType(row.Type),
		State:       types.TransactionState(row.State),
		BlockNumber: row.BlockNumber,
		Sequence:    row.Sequence,
		Fee:         row.Fee,
		FeeAssetId:  feeAssetId,
		Value:       row.Value,
		CreatedAt:   row.CreatedAt,
	}
	if row.UtxoInputs != "" {
		if err := json.Unmarshal([]byte(row.UtxoInputs), &tx.UtxoInputs); err != nil {
			return types.Transaction{}, errors.Wrap(err, "unmarshal utxo inputs")
		}
	}
	if row.UtxoOutputs != "" {
		if err := json.Unmarshal([]byte(row.UtxoOutputs), &tx.UtxoOutputs); err != nil {
			return types.Transaction{}, errors.Wrap(err, "unmarshal utxo outputs")
		}
	}
	return tx, nil
}
