package chainstate

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/util/test"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestGetBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mineBlocks(t, 3)

	subsidy := h.chain.Coinbase(1).Outputs[0].Satoshis

	balance, err := h.cs.GetBalance(ctx, CoinFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3*subsidy, balance)

	balance, err = h.cs.GetBalance(ctx, CoinFilter{MinConfirmations: 2})
	require.NoError(t, err)
	assert.Equal(t, 2*subsidy, balance)

	balance, err = h.cs.GetBalance(ctx, CoinFilter{LockingScript: []byte{0x51, 0x51}})
	require.NoError(t, err)
	assert.Zero(t, balance)

	balance, err = h.cs.GetBalance(ctx, CoinFilter{LockingScript: test.OpTrueScript})
	require.NoError(t, err)
	assert.Equal(t, 3*subsidy, balance)

	// the mempool does not count
	require.Equal(t, Accepted, h.cs.OnTransactionReceived(ctx, h.spendCoinbase(1, 1000).Bytes(), testPeer).Result)

	balance, err = h.cs.GetBalance(ctx, CoinFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3*subsidy, balance)

	t.Run("immature coinbases", func(t *testing.T) {
		h := newHarness(t, func(s *settings.Settings) {
			params := *s.ChainCfgParams
			params.CoinbaseMaturity = 100
			s.ChainCfgParams = &params
		})

		h.mineBlocks(t, 2)

		balance, err := h.cs.GetBalance(ctx, CoinFilter{ExcludeImmature: true})
		require.NoError(t, err)
		assert.Zero(t, balance)

		balance, err = h.cs.GetBalance(ctx, CoinFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2*subsidy, balance)
	})

	t.Run("cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := h.cs.GetBalance(cancelled, CoinFilter{})
		assert.Error(t, err)
	})
}

func TestListUnspent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mineBlocks(t, 2)

	tx := test.SpendTx(h.chain.Coinbase(1), 0, 1000, 2000)
	h.mine(t, tx)

	outputs, err := h.cs.ListUnspent(ctx, CoinFilter{})
	require.NoError(t, err)
	require.Len(t, outputs, 4)

	for i := 1; i < len(outputs); i++ {
		a, err := chainhash.NewHashFromStr(outputs[i-1].TxID)
		require.NoError(t, err)
		b, err := chainhash.NewHashFromStr(outputs[i].TxID)
		require.NoError(t, err)

		key := func(h *chainhash.Hash, vout uint32) string { return fmt.Sprintf("%x:%08x", h[:], vout) }
		assert.Less(t, key(a, outputs[i-1].Vout), key(b, outputs[i].Vout))
	}

	var found []*UnspentOutput

	for _, o := range outputs {
		if o.TxID == tx.TxID() {
			found = append(found, o)
		}
	}

	require.Len(t, found, 2)
	assert.Equal(t, &UnspentOutput{
		TxID:          tx.TxID(),
		Vout:          0,
		Satoshis:      1000,
		LockingScript: hex.EncodeToString(test.OpTrueScript),
		Height:        3,
		Confirmations: 1,
	}, found[0])
	assert.Equal(t, uint64(2000), found[1].Satoshis)

	coinbases, err := h.cs.ListUnspent(ctx, CoinFilter{MinConfirmations: 2})
	require.NoError(t, err)
	require.Len(t, coinbases, 1)
	assert.True(t, coinbases[0].Coinbase)
	assert.Equal(t, h.chain.Coinbase(2).TxID(), coinbases[0].TxID)
	assert.Equal(t, uint32(2), coinbases[0].Confirmations)
}

func TestEstimateFee(t *testing.T) {
	h := newHarness(t)

	_, err := h.cs.EstimateFee(0)
	assert.Error(t, err)

	_, err = h.cs.EstimateFee(h.settings.FeeEstimator.MaxTarget + 1)
	assert.Error(t, err)
}

func TestGetMempoolEntry(t *testing.T) {
	h := newHarness(t)
	h.mineBlocks(t, 2)

	tx := h.spendCoinbase(1, 1000)

	_, err := h.cs.GetMempoolEntry(*tx.TxIDChainHash())
	assert.True(t, errors.Is(err, errors.ErrTxNotFound))

	verdict, result := h.cs.SubmitTransaction(context.Background(), tx.Bytes())
	require.Equal(t, Accepted, verdict.Result)
	require.NotNil(t, result)
	assert.Equal(t, uint64(1000), result.Fee)

	entry, err := h.cs.GetMempoolEntry(*tx.TxIDChainHash())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), entry.Fee)
	assert.Equal(t, tx.Size(), entry.Size)

	info := h.cs.GetMempoolInfo()
	assert.Equal(t, 1, info.Size)
	assert.Equal(t, uint64(1000), info.TotalFee)
	assert.Equal(t, uint32(2), info.TipHeight)
}

func TestMempoolQueriesDuringReorg(t *testing.T) {
	for round := 0; round < 5; round++ {
		t.Run(fmt.Sprintf("round %d", round), func(t *testing.T) {
			h := newHarness(t)
			h.mineBlocks(t, 2)

			// both branches confirm tx, so it must never show up in the mempool
			tx := h.spendCoinbase(1, 1000)
			txID := *tx.TxIDChainHash()
			h.mine(t, tx)

			fork := h.chain.Fork(2, "side")
			_, err := fork.MineBlock(tx)
			require.NoError(t, err)
			_, err = fork.MineBlock()
			require.NoError(t, err)

			stop := make(chan struct{})

			var g errgroup.Group

			for i := 0; i < 4; i++ {
				g.Go(func() error {
					for {
						select {
						case <-stop:
							return nil
						default:
						}

						if _, err := h.cs.GetMempoolEntry(txID); err == nil {
							return errors.NewProcessingError("confirmed transaction %s seen in the mempool", txID)
						}

						if info := h.cs.GetMempoolInfo(); info.Size != 0 {
							return errors.NewProcessingError("mempool holds %d transactions at height %d", info.Size, info.TipHeight)
						}
					}
				})
			}

			require.Equal(t, Accepted, h.submit(fork.Blocks[3]).Result)
			require.Equal(t, Accepted, h.submit(fork.Blocks[4]).Result)

			close(stop)
			require.NoError(t, g.Wait())

			h.requireTip(t, fork.Blocks[4])
		})
	}
}

func TestGetBlockChainInfo(t *testing.T) {
	h := newHarness(t)
	h.mineBlocks(t, 3)

	info := h.cs.GetBlockChainInfo()

	tip := h.cs.Tip()

	assert.Equal(t, h.settings.ChainCfgParams.Name, info.Chain)
	assert.Equal(t, uint32(3), info.Blocks)
	assert.Equal(t, uint32(3), info.Headers)
	assert.Equal(t, h.chain.Tip().Hash().String(), info.BestBlockHash)
	assert.Equal(t, fmt.Sprintf("%064x", tip.ChainWork), info.ChainWork)
	assert.Len(t, info.ChainWork, 64)
	assert.Equal(t, h.cs.index.MedianTimePast(tip), info.MedianTime)
	assert.Greater(t, info.Difficulty, 0.0)
	assert.False(t, info.Pruned)
	assert.False(t, info.Corrupt)
	assert.Zero(t, info.OrphanBlocks)
}
