package utxo_test

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/leveldb"
	"github.com/bsv-blockchain/chainstate/stores/utxo/memory"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util/test"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]utxo.Store {
	t.Helper()

	levelStore, err := leveldb.Open(ulogger.TestLogger{}, t.TempDir(), false)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = levelStore.Close(context.Background())
	})

	return map[string]utxo.Store{
		"memory":  memory.New(ulogger.TestLogger{}),
		"leveldb": levelStore,
	}
}

// dump returns the serialized coin set, in key order.
func dump(t *testing.T, store utxo.Store) [][]byte {
	t.Helper()

	var records [][]byte

	err := store.Iterate(context.Background(), func(outpoint utxo.Outpoint, coin *utxo.Coin) error {
		records = append(records, append(outpoint.Bytes(), coin.Bytes()...))
		return nil
	})
	require.NoError(t, err)

	return records
}

func newChain(t *testing.T) *test.Chain {
	t.Helper()

	chain, err := test.NewChain(&chaincfg.RegressionNetParams)
	require.NoError(t, err)

	return chain
}

func applyChain(t *testing.T, store utxo.Store, chain *test.Chain, from uint32) {
	t.Helper()

	for height := from; height <= chain.Height(); height++ {
		_, err := store.ApplyBlock(context.Background(), chain.Blocks[height], height)
		require.NoError(t, err)
	}
}

func TestApplyUndoIsByteIdentical(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			chain := newChain(t)

			require.NoError(t, chain.MineBlocks(3))
			applyChain(t, store, chain, 0)

			before := dump(t, store)
			bestBefore, err := store.GetBestBlock(ctx)
			require.NoError(t, err)

			// spend two coinbases, create an output and spend it again in the same block
			parent := test.SpendTx(chain.Coinbase(1), 0, 1_000_000_000, 3_999_990_000)
			child := test.SpendTx(parent, 0, 999_990_000)
			other := test.SpendTx(chain.Coinbase(2), 0, 4_999_990_000)

			block, err := chain.MineBlock(parent, child, other)
			require.NoError(t, err)

			undo, err := store.ApplyBlock(ctx, block, chain.Height())
			require.NoError(t, err)

			assert.Len(t, undo.Spent, 2)
			// coinbase + parent:1 + child:0 + other:0; parent:0 was spent in the block
			assert.Len(t, undo.Created, 4)

			_, err = store.GetCoin(ctx, utxo.NewOutpoint(parent.TxIDChainHash(), 0))
			assert.ErrorIs(t, err, errors.ErrNotFound)

			stored, err := store.GetUndo(ctx, block.Hash())
			require.NoError(t, err)
			assert.Equal(t, undo.Bytes(), stored.Bytes())

			require.NoError(t, store.UndoBlock(ctx, stored))

			assert.Equal(t, before, dump(t, store))

			bestAfter, err := store.GetBestBlock(ctx)
			require.NoError(t, err)
			assert.Equal(t, bestBefore, bestAfter)

			_, err = store.GetUndo(ctx, block.Hash())
			assert.ErrorIs(t, err, errors.ErrNotFound)
		})
	}
}

func TestGenesisCoinbaseIsNotAdded(t *testing.T) {
	store := memory.New(ulogger.TestLogger{})
	chain := newChain(t)

	undo, err := store.ApplyBlock(context.Background(), chain.Genesis(), 0)
	require.NoError(t, err)
	assert.Empty(t, undo.Created)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Coins)
	assert.Equal(t, *chain.Genesis().Hash(), stats.BestBlock.Hash)
}

func TestUnspendableOutputsAreNotAdded(t *testing.T) {
	ctx := context.Background()
	store := memory.New(ulogger.TestLogger{})
	chain := newChain(t)

	require.NoError(t, chain.MineBlocks(1))
	applyChain(t, store, chain, 0)

	tx := test.SpendTx(chain.Coinbase(1), 0, 1000, 0)
	tx.Outputs[1].LockingScript = bscript.NewFromBytes([]byte{bscript.OpFALSE, bscript.OpRETURN, 0x01, 0x01})

	block, err := chain.MineBlock(tx)
	require.NoError(t, err)

	_, err = store.ApplyBlock(ctx, block, chain.Height())
	require.NoError(t, err)

	_, err = store.GetCoin(ctx, utxo.NewOutpoint(tx.TxIDChainHash(), 0))
	require.NoError(t, err)

	_, err = store.GetCoin(ctx, utxo.NewOutpoint(tx.TxIDChainHash(), 1))
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestApplyBlockMissingInput(t *testing.T) {
	ctx := context.Background()
	store := memory.New(ulogger.TestLogger{})
	chain := newChain(t)

	require.NoError(t, chain.MineBlocks(1))
	applyChain(t, store, chain, 0)

	spend := test.SpendTx(chain.Coinbase(1), 0, 1000)
	doubleSpend := test.SpendTx(chain.Coinbase(1), 0, 2000)

	block, err := chain.MineBlock(spend, doubleSpend)
	require.NoError(t, err)

	before := dump(t, store)

	_, err = store.ApplyBlock(ctx, block, chain.Height())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTxInvalidDoubleSpend)
	assert.Equal(t, errors.KindConsensus, errors.KindOf(err))

	// nothing was committed
	assert.Equal(t, before, dump(t, store))

	best, err := store.GetBestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), best.Height)
}

func TestApplyBlockBIP30(t *testing.T) {
	ctx := context.Background()
	store := memory.New(ulogger.TestLogger{})
	chain := newChain(t)

	require.NoError(t, chain.MineBlocks(1))
	applyChain(t, store, chain, 0)

	// a block whose coinbase is identical to the still unspent coinbase of block 1
	block, err := test.BuildBlock(chain.Params, chain.Tip().Header, []*bt.Tx{chain.Coinbase(1)})
	require.NoError(t, err)

	_, err = store.ApplyBlock(ctx, block, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBlockInvalid)
	assert.Equal(t, errors.KindConsensus, errors.KindOf(err))
}

func TestApplyBlockWrongParent(t *testing.T) {
	store := memory.New(ulogger.TestLogger{})
	chain := newChain(t)

	require.NoError(t, chain.MineBlocks(2))
	applyChain(t, store, chain, 0)

	_, err := store.ApplyBlock(context.Background(), chain.Blocks[1], 1)
	assert.ErrorIs(t, err, errors.ErrProcessing)
}

func TestUndoBlockMismatchIsCorruption(t *testing.T) {
	ctx := context.Background()
	store := memory.New(ulogger.TestLogger{})
	chain := newChain(t)

	require.NoError(t, chain.MineBlocks(2))
	applyChain(t, store, chain, 0)

	undo, err := store.GetUndo(ctx, chain.Tip().Hash())
	require.NoError(t, err)

	// remove the tip's coinbase behind the undo record's back
	view := store.NewView()
	_, err = view.SpendCoin(ctx, utxo.NewOutpoint(chain.Tip().CoinbaseTx().TxIDChainHash(), 0))
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, view.ChangeSet()))

	err = store.UndoBlock(ctx, undo)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStoreCorrupt)
	assert.True(t, errors.IsFatalError(err))
}

func TestUndoBlockNotTip(t *testing.T) {
	ctx := context.Background()
	store := memory.New(ulogger.TestLogger{})
	chain := newChain(t)

	require.NoError(t, chain.MineBlocks(2))
	applyChain(t, store, chain, 0)

	undo, err := store.GetUndo(ctx, chain.Blocks[1].Hash())
	require.NoError(t, err)

	assert.ErrorIs(t, store.UndoBlock(ctx, undo), errors.ErrProcessing)
}

func TestViewFreshCoinNeverReachesStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New(ulogger.TestLogger{})
	view := store.NewView()

	txID := chainhash.HashH([]byte("tx"))
	op := utxo.NewOutpoint(&txID, 0)

	require.NoError(t, view.AddCoin(ctx, op, &utxo.Coin{Value: 1, Height: 1}, false))

	coin, err := view.SpendCoin(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), coin.Value)

	cs := view.ChangeSet()
	assert.Empty(t, cs.Coins)
	assert.True(t, cs.IsEmpty())

	_, err = view.SpendCoin(ctx, op)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestViewAddExistingCoin(t *testing.T) {
	ctx := context.Background()
	store := memory.New(ulogger.TestLogger{})

	txID := chainhash.HashH([]byte("tx"))
	op := utxo.NewOutpoint(&txID, 0)

	view := store.NewView()
	require.NoError(t, view.AddCoin(ctx, op, &utxo.Coin{Value: 1, Height: 1}, false))
	require.NoError(t, store.Commit(ctx, view.ChangeSet()))

	view = store.NewView()
	err := view.AddCoin(ctx, op, &utxo.Coin{Value: 2, Height: 2}, false)
	assert.ErrorIs(t, err, errors.ErrUtxoExists)

	require.NoError(t, view.AddCoin(ctx, op, &utxo.Coin{Value: 2, Height: 2}, true))

	// spending a coin the store holds must produce a delete
	_, err = view.SpendCoin(ctx, op)
	require.NoError(t, err)

	cs := view.ChangeSet()
	require.Len(t, cs.Coins, 1)
	assert.Nil(t, cs.Coins[0].Coin)
}

func TestViewStagesWholeReorg(t *testing.T) {
	ctx := context.Background()
	store := memory.New(ulogger.TestLogger{})
	chain := newChain(t)

	require.NoError(t, chain.MineBlocks(2))
	applyChain(t, store, chain, 0)

	fork := chain.Fork(1, "fork")
	require.NoError(t, fork.MineBlocks(2))

	view := store.NewView()

	undo, err := store.GetUndo(ctx, chain.Tip().Hash())
	require.NoError(t, err)
	require.NoError(t, view.UndoBlock(ctx, undo))

	for height := uint32(2); height <= fork.Height(); height++ {
		_, err = view.ApplyBlock(ctx, fork.Blocks[height], height)
		require.NoError(t, err)
	}

	// nothing reaches the store until the change set is committed
	best, err := store.GetBestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, *chain.Tip().Hash(), best.Hash)

	require.NoError(t, store.Commit(ctx, view.ChangeSet()))

	best, err = store.GetBestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, *fork.Tip().Hash(), best.Hash)
	assert.Equal(t, uint32(3), best.Height)

	_, err = store.GetUndo(ctx, chain.Tip().Hash())
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = store.GetCoin(ctx, utxo.NewOutpoint(chain.Tip().CoinbaseTx().TxIDChainHash(), 0))
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = store.GetCoin(ctx, utxo.NewOutpoint(fork.Tip().CoinbaseTx().TxIDChainHash(), 0))
	require.NoError(t, err)
}

func TestClearAndStats(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			chain := newChain(t)

			require.NoError(t, chain.MineBlocks(3))
			applyChain(t, store, chain, 0)

			stats, err := store.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), stats.Coins)
			assert.Equal(t, uint64(3*5_000_000_000), stats.TotalValue)
			assert.Equal(t, uint64(4), stats.UndoRecords)
			assert.Equal(t, uint32(3), stats.BestBlock.Height)

			require.NoError(t, store.DeleteUndo(ctx, *chain.Blocks[0].Hash(), *chain.Blocks[1].Hash()))

			stats, err = store.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), stats.UndoRecords)

			require.NoError(t, store.Clear(ctx))

			stats, err = store.Stats(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.Coins)
			assert.Nil(t, stats.BestBlock)

			_, err = store.GetBestBlock(ctx)
			assert.ErrorIs(t, err, errors.ErrNotFound)
		})
	}
}

func TestIterateStopsOnError(t *testing.T) {
	store := memory.New(ulogger.TestLogger{})
	chain := newChain(t)

	require.NoError(t, chain.MineBlocks(3))
	applyChain(t, store, chain, 0)

	calls := 0
	err := store.Iterate(context.Background(), func(utxo.Outpoint, *utxo.Coin) error {
		calls++
		return errors.NewProcessingError("stop")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
