package store

import (
	"time"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/types"
	"github.com/walletbase/walletd/walleterrors"
)

// ParserState is the authoritative per-chain parser position. The in-memory
// copy is read-modify-write each loop iteration.
type ParserState struct {
	Chain                types.Chain
	CurrentBlock         int64
	LatestBlock          int64
	IsEnabled            bool
	ParallelBlocks       int32
	AwaitBlocks          int32
	TimeoutBetweenBlocks time.Duration
	TimeoutLatestBlock   time.Duration
	QueueBehindBlocks    *int32
	UpdatedAt            time.Time
}

func stateFromRow(row ParserStateRow) (ParserState, error) {
	chain, err := types.ParseChain(row.Chain)
	if err != nil {
		return ParserState{}, err
	}
	return ParserState{
		Chain:                chain,
		CurrentBlock:         row.CurrentBlock,
		LatestBlock:          row.LatestBlock,
		IsEnabled:            row.IsEnabled,
		ParallelBlocks:       row.ParallelBlocks,
		AwaitBlocks:          row.AwaitBlocks,
		TimeoutBetweenBlocks: time.Duration(row.TimeoutBetweenBlocks) * time.Millisecond,
		TimeoutLatestBlock:   time.Duration(row.TimeoutLatestBlock) * time.Millisecond,
		QueueBehindBlocks:    row.QueueBehindBlocks,
		UpdatedAt:            row.UpdatedAt,
	}, nil
}

func (d *Database) GetParserState(chain types.Chain) (ParserState, error) {
	var row ParserStateRow
	err := d.db.Where("chain = ?", chain.String()).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return ParserState{}, walleterrors.NotFound("parser state " + chain.String())
	}
	if err != nil {
		return ParserState{}, errors.Wrap(err, "get parser state")
	}
	return stateFromRow(row)
}

// EnabledParserStates returns the states of every enabled chain.
func (d *Database) EnabledParserStates() ([]ParserState, error) {
	var rows []ParserStateRow
	if err := d.db.Where("is_enabled = ?", true).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "enabled parser states")
	}
	out := make([]ParserState, 0, len(rows))
	for _, row := range rows {
		state, err := stateFromRow(row)
		if err != nil {
			logger.Warnw("skipping parser state for unknown chain", "chain", row.Chain)
			continue
		}
		out = append(out, state)
	}
	return out, nil
}

// EnsureParserState seeds a disabled default row if the chain has none.
func (d *Database) EnsureParserState(chain types.Chain) error {
	row := ParserStateRow{
		Chain:                chain.String(),
		ParallelBlocks:       1,
		AwaitBlocks:          0,
		TimeoutBetweenBlocks: chain.BlockTime().Milliseconds(),
		TimeoutLatestBlock:   chain.BlockTime().Milliseconds(),
	}
	return errors.Wrap(d.db.Where("chain = ?", chain.String()).
		FirstOrCreate(&row).Error, "ensure parser state")
}

func (d *Database) SetParserCurrentBlock(chain types.Chain, block int64) error {
	return errors.Wrap(d.db.Model(&ParserStateRow{}).
		Where("chain = ?", chain.String()).
		Updates(map[string]interface{}{"current_block": block, "updated_at": time.Now()}).Error,
		"set current block")
}

func (d *Database) SetParserLatestBlock(chain types.Chain, block int64) error {
	return errors.Wrap(d.db.Model(&ParserStateRow{}).
		Where("chain = ?", chain.String()).
		Updates(map[string]interface{}{"latest_block": block, "updated_at": time.Now()}).Error,
		"set latest block")
}
