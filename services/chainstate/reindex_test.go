package chainstate

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReindexMode(t *testing.T) {
	for input, expected := range map[string]ReindexMode{
		"full":        ReindexFull,
		"FULL":        ReindexFull,
		" chainstate": ReindexChainstate,
	} {
		mode, err := ParseReindexMode(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, mode)
	}

	_, err := ParseReindexMode("utxo")
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestReindex(t *testing.T) {
	for _, mode := range []ReindexMode{ReindexFull, ReindexChainstate} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			h.mineBlocks(t, 2)
			h.mine(t, h.spendCoinbase(1, 1000))
			h.mine(t, h.spendCoinbase(2, 1000))

			// a side branch and a header without a body survive the reindex
			fork := h.chain.Fork(2, "side")
			_, err := fork.MineBlock()
			require.NoError(t, err)
			_, err = fork.MineBlock()
			require.NoError(t, err)

			require.Equal(t, Accepted, h.submit(fork.Blocks[3]).Result)
			h.cs.OnHeadersReceived(ctx, []*model.BlockHeader{fork.Blocks[4].Header}, testPeer)

			before := dumpCoins(t, h.utxoStore)
			pending := h.spendCoinbase(3, 1000)
			require.Equal(t, Accepted, h.cs.OnTransactionReceived(ctx, pending.Bytes(), testPeer).Result)

			runs := testutil.ToFloat64(prometheusChainstateReindexes)

			require.NoError(t, h.cs.Reindex(ctx, mode))

			assert.InDelta(t, runs+1, testutil.ToFloat64(prometheusChainstateReindexes), 1e-9)
			h.requireTip(t, h.chain.Tip())
			assert.Equal(t, before, dumpCoins(t, h.utxoStore))
			assert.Zero(t, h.cs.GetMempoolInfo().Size)

			side := h.cs.index.Get(fork.Blocks[3].Hash())
			require.NotNil(t, side)
			assert.True(t, h.cs.index.Status(side).HaveData)

			// bodies are addressed with the block extension only
			stored, err := h.blockStore.Exists(ctx, fork.Blocks[3].Hash()[:], blockFileOptions()...)
			require.NoError(t, err)
			assert.True(t, stored)

			stored, err = h.blockStore.Exists(ctx, fork.Blocks[3].Hash()[:])
			require.NoError(t, err)
			assert.False(t, stored)

			headerOnly := h.cs.index.Get(fork.Blocks[4].Hash())
			require.NotNil(t, headerOnly)
			assert.False(t, h.cs.index.Status(headerOnly).HaveData)

			for _, block := range h.chain.Blocks[1:] {
				_, err := h.utxoStore.GetUndo(ctx, block.Hash())
				assert.NoError(t, err)
			}

			h.mine(t)
		})
	}

	t.Run("failed blocks stay failed in a chainstate reindex", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		h.mineBlocks(t, 2)
		top := h.mine(t)

		_, err := h.cs.InvalidateBlock(ctx, top.Hash())
		require.NoError(t, err)

		require.NoError(t, h.cs.Reindex(ctx, ReindexChainstate))
		h.requireTip(t, h.chain.Blocks[2])

		// a full reindex checks every body again
		require.NoError(t, h.cs.Reindex(ctx, ReindexFull))
		h.requireTip(t, top)
	})

	t.Run("on open", func(t *testing.T) {
		h := newHarness(t)
		h.mineBlocks(t, 3)
		before := dumpCoins(t, h.utxoStore)

		h.settings.Chainstate.Reindex = "chainstate"

		cs := h.open(t)
		assert.Equal(t, *h.chain.Tip().Hash(), cs.Tip().Hash)
		assert.Equal(t, before, dumpCoins(t, h.utxoStore))
	})
}

func TestRecovery(t *testing.T) {
	t.Run("reopen keeps the tip", func(t *testing.T) {
		h := newHarness(t)
		h.mineBlocks(t, 3)
		before := dumpCoins(t, h.utxoStore)

		cs := h.open(t)
		assert.Equal(t, *h.chain.Tip().Hash(), cs.Tip().Hash)
		assert.Equal(t, uint32(3), cs.Tip().Height)
		assert.Equal(t, before, dumpCoins(t, h.utxoStore))
		assert.False(t, cs.IsCorrupt())
	})

	t.Run("stored blocks beyond the committed tip are replayed", func(t *testing.T) {
		h := newHarness(t)
		committed := h.mine(t)

		h.utxoStore.failCommit.Store(true)

		block, err := h.chain.MineBlock()
		require.NoError(t, err)
		require.Equal(t, InternalError, h.submit(block).Result)

		h.requireTip(t, committed)

		h.utxoStore.failCommit.Store(false)

		h.cs = h.open(t)
		h.requireTip(t, block)
		assert.False(t, h.cs.IsCorrupt())

		h.mine(t)
	})

	t.Run("best block missing from the index", func(t *testing.T) {
		h := newHarness(t)
		h.mineBlocks(t, 2)

		require.NoError(t, h.indexStore.Reset(context.Background()))

		_, err := New(context.Background(), ulogger.TestLogger{}, h.settings, h.utxoStore, h.indexStore, h.blockStore)
		assert.True(t, errors.Is(err, errors.ErrStoreCorrupt))
	})
}

func TestPrune(t *testing.T) {
	h := newHarness(t, func(s *settings.Settings) {
		s.BlockStore.Prune = true
		s.BlockStore.PruneKeepBlocks = 2
	})
	ctx := context.Background()

	h.mineBlocks(t, 6)

	info := h.cs.GetBlockChainInfo()
	assert.True(t, info.Pruned)
	assert.Equal(t, uint32(4), info.PruneHeight)

	for height, block := range h.chain.Blocks[1:] {
		height++

		_, blobErr := h.blockStore.Get(ctx, block.Hash()[:], blockFileOptions()...)
		_, undoErr := h.utxoStore.GetUndo(ctx, block.Hash())
		entry := h.cs.index.Get(block.Hash())

		if height <= 4 {
			assert.Error(t, blobErr, "height %d", height)
			assert.Error(t, undoErr, "height %d", height)
			assert.False(t, h.cs.index.Status(entry).HaveData)
		} else {
			assert.NoError(t, blobErr, "height %d", height)
			assert.NoError(t, undoErr, "height %d", height)
			assert.True(t, h.cs.index.Status(entry).HaveUndo)
		}
	}

	t.Run("reorg within the kept window", func(t *testing.T) {
		fork := h.chain.Fork(5, "kept")
		require.NoError(t, fork.MineBlocks(2))

		verdict := submitAll(t, h, fork.Blocks[6:])
		require.Equal(t, Accepted, verdict.Result)
		h.requireTip(t, fork.Tip())
	})

	t.Run("the prune height survives a restart", func(t *testing.T) {
		cs := h.open(t)
		assert.Equal(t, uint32(5), cs.GetBlockChainInfo().PruneHeight)
	})

	t.Run("reindex is refused", func(t *testing.T) {
		err := h.cs.Reindex(ctx, ReindexChainstate)
		assert.True(t, errors.Is(err, errors.ErrConfiguration))
	})
}
