package mempool

import (
	"context"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// BlockUpdate reports what a connected block did to the pool.
type BlockUpdate struct {
	// Confirmed holds pool entries included in the block.
	Confirmed []*TxEntry
	// Conflicts holds entries that spent an input the block spent, and their descendants.
	Conflicts []*TxEntry
	// AcceptedOrphans holds orphans that became valid because of the block.
	AcceptedOrphans []chainhash.Hash
}

// RemoveForBlock moves the pool to tip, the block just connected, removing the
// transactions it confirmed and everything that conflicts with them.
func (m *Mempool) RemoveForBlock(ctx context.Context, block *model.Block, tip Tip) *BlockUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tip = tip

	update := &BlockUpdate{}

	if len(block.Transactions) == 0 {
		return update
	}

	// block order is topological, so a confirmed entry's pool parents are already gone
	for _, tx := range block.Transactions[1:] {
		txID := *tx.TxIDChainHash()

		m.orphans.remove(txID)

		if h, ok := m.byTxID[txID]; ok {
			update.Confirmed = append(update.Confirmed, m.removeEntry(h, ReasonBlock))
		}
	}

	var conflicts []Handle

	for _, tx := range block.Transactions[1:] {
		for _, input := range tx.Inputs {
			if h, ok := m.spentBy[utxo.OutpointFromInput(input)]; ok {
				conflicts = append(conflicts, h)
			}
		}
	}

	if len(conflicts) > 0 {
		update.Conflicts = m.removeWithDescendants(conflicts, ReasonConflict)
	}

	m.rejects.reset()

	parents := make([]chainhash.Hash, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		parents = append(parents, *tx.TxIDChainHash())
	}

	update.AcceptedOrphans = m.processOrphans(ctx, parents, m.now())

	m.updateGauges()

	m.logger.Debugf("[Mempool][%s] block at height %d confirmed %d, removed %d conflicts", tip.Hash, tip.Height, len(update.Confirmed), len(update.Conflicts))

	return update
}

// ReinsertDisconnected puts the transactions of disconnected blocks back in
// the pool. txs are given in block order, oldest block first. The package
// limits and the relay fee do not apply; transactions that no longer resolve
// against the active tip, or that conflict with the pool, are dropped.
// It returns the number of transactions reinserted.
func (m *Mempool) ReinsertDisconnected(ctx context.Context, txs []*bt.Tx) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	height := m.tip.Height + 1
	reinserted := 0

	for _, tx := range txs {
		if tx.IsCoinbase() {
			continue
		}

		txID := *tx.TxIDChainHash()

		if _, exists := m.byTxID[txID]; exists {
			continue
		}

		entry, parents, err := m.resolveDisconnected(ctx, tx, txID, height, now)
		if err != nil {
			m.logger.Debugf("[Mempool][%s] not reinserted: %v", txID, err)

			if m.feeTracker != nil {
				m.feeTracker.RemoveTransaction(txID)
			}

			continue
		}

		m.addEntry(entry, parents)
		m.linkChildren(entry)

		reinserted++
	}

	if reinserted > 0 {
		m.rebuildAggregates()
		m.trimToSize()
	}

	m.updateGauges()

	return reinserted
}

func (m *Mempool) resolveDisconnected(ctx context.Context, tx *bt.Tx, txID chainhash.Hash, height uint32, now time.Time) (*TxEntry, map[Handle]struct{}, error) {
	if err := m.checkNotConfirmed(ctx, tx, txID); err != nil {
		return nil, nil, err
	}

	if conflicts := m.directConflicts(tx); len(conflicts) > 0 {
		return nil, nil, errors.New(errors.ERR_TX_MEMPOOL_CONFLICT, "conflicts with pool transaction %s", m.entries[conflicts[0]].TxID)
	}

	coins, err := m.validator.ResolveInputs(ctx, tx, &poolCoinReader{pool: m, height: height})
	if err != nil {
		return nil, nil, err
	}

	fee, err := m.validator.CheckInputs(tx, coins, height)
	if err != nil {
		return nil, nil, err
	}

	sigOps, err := m.validator.CheckSigOps(tx, coins)
	if err != nil {
		return nil, nil, err
	}

	entry := &TxEntry{
		Tx:     tx,
		TxID:   txID,
		Fee:    fee,
		Size:   tx.Size(),
		Time:   now,
		Height: m.tip.Height,
		SigOps: sigOps,
	}

	for _, coin := range coins {
		if coin.Coinbase {
			entry.SpendsCoinbase = true
			break
		}
	}

	return entry, m.inPoolParents(tx), nil
}

// RemoveForReorg moves the pool to tip after a reorganization and removes
// every entry that is no longer valid in the next block: inputs that vanished
// from the UTXO set, coinbase spends that became immature and lock times that
// are no longer final. Descendants of removed entries go with them.
func (m *Mempool) RemoveForReorg(ctx context.Context, tip Tip) []*TxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tip = tip
	m.rejects.reset()

	bc := validator.BlockContext{
		Height:         tip.Height + 1,
		Time:           m.now().Unix(),
		MedianTimePast: tip.MedianTimePast,
	}

	maturity := m.settings.ChainCfgParams.CoinbaseMaturity

	var invalid []Handle

	for h, e := range m.entries {
		if e == nil {
			continue
		}

		if err := m.stillValid(ctx, e, bc, maturity); err != nil {
			m.logger.Debugf("[Mempool][%s] invalid after reorg: %v", e.TxID, err)
			invalid = append(invalid, Handle(h)) //nolint:gosec // arena index fits in Handle
		}
	}

	var removed []*TxEntry
	if len(invalid) > 0 {
		removed = m.removeWithDescendants(invalid, ReasonReorg)
	}

	m.updateGauges()

	return removed
}

func (m *Mempool) stillValid(ctx context.Context, e *TxEntry, bc validator.BlockContext, maturity uint16) error {
	if err := m.validator.CheckFinal(e.Tx, bc); err != nil {
		return err
	}

	for _, input := range e.Tx.Inputs {
		op := utxo.OutpointFromInput(input)

		if _, inPool := m.byTxID[op.TxID]; inPool {
			continue
		}

		coin, err := m.coins.GetCoin(ctx, op)
		if err != nil {
			return err
		}

		if !coin.IsMature(bc.Height, maturity) {
			return errors.New(errors.ERR_TX_PREMATURE_COINBASE_SPEND, "spends coinbase from height %d at height %d", coin.Height, bc.Height)
		}
	}

	return nil
}
