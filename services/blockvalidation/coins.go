package blockvalidation

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2"
)

// blockCoinReader resolves coins as seen by a transaction inside a block:
// the view at the parent plus the outputs of earlier transactions, minus
// everything earlier transactions spent.
type blockCoinReader struct {
	base    utxo.CoinReader
	created map[utxo.Outpoint]*utxo.Coin
	spent   map[utxo.Outpoint]struct{}
}

func newBlockCoinReader(base utxo.CoinReader) *blockCoinReader {
	return &blockCoinReader{
		base:    base,
		created: make(map[utxo.Outpoint]*utxo.Coin),
		spent:   make(map[utxo.Outpoint]struct{}),
	}
}

func (r *blockCoinReader) GetCoin(ctx context.Context, outpoint utxo.Outpoint) (*utxo.Coin, error) {
	if _, ok := r.spent[outpoint]; ok {
		return nil, errors.NewNotFoundError("coin %s already spent in this block", outpoint)
	}

	if coin, ok := r.created[outpoint]; ok {
		return coin, nil
	}

	return r.base.GetCoin(ctx, outpoint)
}

func (r *blockCoinReader) spend(tx *bt.Tx) {
	for _, input := range tx.Inputs {
		r.spent[utxo.OutpointFromInput(input)] = struct{}{}
	}
}

func (r *blockCoinReader) add(tx *bt.Tx, height uint32, coinbase bool) {
	txID := tx.TxIDChainHash()

	for i, output := range tx.Outputs {
		if output.LockingScript != nil && utxo.IsUnspendable(*output.LockingScript) {
			continue
		}

		r.created[utxo.NewOutpoint(txID, uint32(i))] = utxo.NewCoin(output, height, coinbase) //nolint:gosec // output counts fit in uint32
	}
}
