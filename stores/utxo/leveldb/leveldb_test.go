package leveldb

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util/test"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReopenKeepsCommittedState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	chain, err := test.NewChain(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.NoError(t, chain.MineBlocks(2))

	store, err := Open(ulogger.TestLogger{}, dir, true)
	require.NoError(t, err)

	for height, block := range chain.Blocks {
		_, err = store.ApplyBlock(ctx, block, uint32(height)) //nolint:gosec // test chain
		require.NoError(t, err)
	}

	require.NoError(t, store.Close(ctx))
	// closing twice is a no-op
	require.NoError(t, store.Close(ctx))

	store, err = Open(ulogger.TestLogger{}, dir, true)
	require.NoError(t, err)

	defer func() {
		_ = store.Close(ctx)
	}()

	best, err := store.GetBestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, *chain.Tip().Hash(), best.Hash)
	assert.Equal(t, uint32(2), best.Height)

	coin, err := store.GetCoin(ctx, utxo.NewOutpoint(chain.Coinbase(2).TxIDChainHash(), 0))
	require.NoError(t, err)
	assert.True(t, coin.Coinbase)
	assert.Equal(t, uint32(2), coin.Height)
}

func TestCorruptRecords(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ulogger.TestLogger{}, t.TempDir(), false)
	require.NoError(t, err)

	defer func() {
		_ = store.Close(ctx)
	}()

	chain, err := test.NewChain(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.NoError(t, chain.MineBlocks(1))

	for height, block := range chain.Blocks {
		_, err = store.ApplyBlock(ctx, block, uint32(height)) //nolint:gosec // test chain
		require.NoError(t, err)
	}

	outpoint := utxo.NewOutpoint(chain.Coinbase(1).TxIDChainHash(), 0)

	require.NoError(t, store.db.Put(coinKey(outpoint), []byte{0x01, 0x02}, nil))
	require.NoError(t, store.db.Put(undoKey(chain.Tip().Hash()), []byte("garbage undo record that is long enough to parse"), nil))
	require.NoError(t, store.db.Put([]byte{keyBest}, []byte{0x01}, nil))

	_, err = store.GetCoin(ctx, outpoint)
	assert.ErrorIs(t, err, errors.ErrStoreCorrupt)
	assert.Equal(t, errors.KindStore, errors.KindOf(err))

	_, err = store.GetUndo(ctx, chain.Tip().Hash())
	assert.ErrorIs(t, err, errors.ErrStoreCorrupt)

	_, err = store.GetBestBlock(ctx)
	assert.ErrorIs(t, err, errors.ErrStoreCorrupt)

	err = store.Iterate(ctx, func(utxo.Outpoint, *utxo.Coin) error { return nil })
	assert.ErrorIs(t, err, errors.ErrStoreCorrupt)
}

func TestNewFromURL(t *testing.T) {
	dir := t.TempDir()

	storeURL, err := url.Parse("leveldb://" + filepath.Join(dir, "chainstate"))
	require.NoError(t, err)

	store, err := New(ulogger.TestLogger{}, storeURL, false)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "chainstate"), store.path)
	require.NoError(t, store.Close(context.Background()))
}

func TestCommitEmptyChangeSet(t *testing.T) {
	store, err := Open(ulogger.TestLogger{}, t.TempDir(), false)
	require.NoError(t, err)

	defer func() {
		_ = store.Close(context.Background())
	}()

	require.NoError(t, store.Commit(context.Background(), &utxo.ChangeSet{}))

	_, err = store.GetBestBlock(context.Background())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCommitCancelled(t *testing.T) {
	store, err := Open(ulogger.TestLogger{}, t.TempDir(), false)
	require.NoError(t, err)

	defer func() {
		_ = store.Close(context.Background())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Commit(ctx, &utxo.ChangeSet{BestBlock: &utxo.BestBlock{Height: 1}})
	require.Error(t, err)

	_, err = store.GetBestBlock(context.Background())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
