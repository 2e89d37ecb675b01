package validator

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/memory"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util/test"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	settings  *settings.Settings
	validator *TxValidator
	store     *memory.Memory
	chain     *test.Chain
}

// newFixture mines blocks on regtest and connects them to a memory store.
func newFixture(t *testing.T, blocks int) *fixture {
	t.Helper()

	tSettings := test.CreateBaseTestSettings()

	tv, err := NewTxValidator(ulogger.TestLogger{}, tSettings)
	require.NoError(t, err)

	chain, err := test.NewChain(tSettings.ChainCfgParams)
	require.NoError(t, err)
	require.NoError(t, chain.MineBlocks(blocks))

	store := memory.New(ulogger.TestLogger{})

	for height, block := range chain.Blocks {
		_, err = store.ApplyBlock(context.Background(), block, uint32(height)) //nolint:gosec // test chains are short
		require.NoError(t, err)
	}

	return &fixture{
		settings:  tSettings,
		validator: tv,
		store:     store,
		chain:     chain,
	}
}

// mine adds a block with txs to the chain and connects it to the store.
func (f *fixture) mine(t *testing.T, txs ...*bt.Tx) {
	t.Helper()

	block, err := f.chain.MineBlock(txs...)
	require.NoError(t, err)

	_, err = f.store.ApplyBlock(context.Background(), block, f.chain.Height())
	require.NoError(t, err)
}

func (f *fixture) next() BlockContext {
	tip := f.chain.Tip().Header

	return BlockContext{
		Height:         f.chain.Height() + 1,
		Time:           int64(tip.Timestamp) + test.BlockInterval,
		MedianTimePast: int64(tip.Timestamp),
	}
}

func TestNewTxValidatorUnknownVerifier(t *testing.T) {
	tSettings := test.CreateBaseTestSettings()
	tSettings.Validator.ScriptVerifier = "nope"

	_, err := NewTxValidator(ulogger.TestLogger{}, tSettings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GoBT")
}

func TestCheckTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("valid spend", func(t *testing.T) {
		f := newFixture(t, 2)
		coinbase := f.chain.Coinbase(1)

		tx := test.SpendTx(coinbase, 0, coinbase.Outputs[0].Satoshis-1000)

		info, err := f.validator.CheckTransaction(ctx, tx, f.store, f.next())
		require.NoError(t, err)

		assert.Equal(t, uint64(1000), info.Fee)
		assert.Equal(t, tx.Size(), info.Size)
		assert.True(t, info.SpendsCoinbase)
		require.Len(t, info.Coins, 1)
		assert.Equal(t, coinbase.Outputs[0].Satoshis, info.Coins[0].Value)
	})

	t.Run("missing inputs", func(t *testing.T) {
		f := newFixture(t, 2)

		parent := test.SpendTx(f.chain.Coinbase(1), 0, 1000)
		child := test.SpendTx(parent, 0, 500)

		missing := prometheusInvalidTransactions.WithLabelValues("missing")
		before := testutil.ToFloat64(missing)

		_, err := f.validator.CheckTransaction(ctx, child, f.store, f.next())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrTxMissingInputs))
		assert.Equal(t, errors.KindMissing, errors.KindOf(err))
		assert.Equal(t, "missing-inputs", errors.ReasonOf(err))
		assert.Equal(t, utxo.NewOutpoint(parent.TxIDChainHash(), 0).String(), errors.DataOf(err, errors.DataKeyOutpoint))

		// rejections are counted by error category
		assert.InDelta(t, before+1, testutil.ToFloat64(missing), 1e-9)
	})

	t.Run("outputs exceed inputs", func(t *testing.T) {
		f := newFixture(t, 2)
		coinbase := f.chain.Coinbase(1)

		tx := test.SpendTx(coinbase, 0, coinbase.Outputs[0].Satoshis+1)

		_, err := f.validator.CheckTransaction(ctx, tx, f.store, f.next())
		require.Error(t, err)
		assert.Equal(t, errors.KindConsensus, errors.KindOf(err))
	})

	t.Run("coinbase rejected", func(t *testing.T) {
		f := newFixture(t, 1)

		_, err := f.validator.CheckTransaction(ctx, test.CoinbaseTx(f.settings.ChainCfgParams, 2, "x"), f.store, f.next())
		require.Error(t, err)
		assert.Equal(t, "coinbase", errors.ReasonOf(err))
	})

	t.Run("failing script", func(t *testing.T) {
		f := newFixture(t, 2)

		parent := test.SpendTx(f.chain.Coinbase(1), 0, 10_000)
		parent.Outputs[0].LockingScript = bscript.NewFromBytes([]byte{bscript.OpFALSE})
		f.mine(t, parent)

		tx := test.SpendTx(parent, 0, 1000)

		_, err := f.validator.CheckTransaction(ctx, tx, f.store, f.next())
		require.Error(t, err)
		assert.Equal(t, errors.KindConsensus, errors.KindOf(err))
		assert.Equal(t, "mandatory-script-verify-flag-failed", errors.ReasonOf(err))
	})
}

func TestCheckSanity(t *testing.T) {
	f := newFixture(t, 1)
	coinbase := f.chain.Coinbase(1)

	t.Run("no inputs", func(t *testing.T) {
		tx := bt.NewTx()
		tx.AddOutput(&bt.Output{Satoshis: 1, LockingScript: bscript.NewFromBytes(test.OpTrueScript)})

		err := f.validator.CheckSanity(tx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad-txns-vin-empty")
	})

	t.Run("no outputs", func(t *testing.T) {
		tx := test.SpendTx(coinbase, 0)

		err := f.validator.CheckSanity(tx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad-txns-vout-empty")
	})

	t.Run("value out of range", func(t *testing.T) {
		tx := test.SpendTx(coinbase, 0, MaxSatoshis+1)

		err := f.validator.CheckSanity(tx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad-txns-vout-toolarge")
	})

	t.Run("total out of range", func(t *testing.T) {
		tx := test.SpendTx(coinbase, 0, MaxSatoshis, 1)

		err := f.validator.CheckSanity(tx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad-txns-txouttotal-toolarge")
	})

	t.Run("duplicate inputs", func(t *testing.T) {
		tx := test.NewTx([]test.OutputRef{{Tx: coinbase, Vout: 0}, {Tx: coinbase, Vout: 0}}, 1000)

		err := f.validator.CheckSanity(tx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad-txns-inputs-duplicate")
		assert.Equal(t, errors.KindConsensus, errors.KindOf(err))
	})

	t.Run("coinbase", func(t *testing.T) {
		require.NoError(t, f.validator.CheckSanity(coinbase))
	})

	t.Run("coinbase script too short", func(t *testing.T) {
		cb := test.CoinbaseTx(f.settings.ChainCfgParams, 5, "")
		cb.Inputs[0].UnlockingScript = bscript.NewFromBytes([]byte{0x01})

		err := f.validator.CheckSanity(cb)
		require.Error(t, err)
		assert.Equal(t, "bad-cb", errors.ReasonOf(err))
	})
}

func TestCheckStandard(t *testing.T) {
	f := newFixture(t, 1)
	coinbase := f.chain.Coinbase(1)
	height := uint32(2)

	t.Run("standard", func(t *testing.T) {
		require.NoError(t, f.validator.CheckStandard(test.SpendTx(coinbase, 0, 1000), height))
	})

	t.Run("dust", func(t *testing.T) {
		f.settings.Policy.DustLimit = 546
		defer func() { f.settings.Policy.DustLimit = 1 }()

		err := f.validator.CheckStandard(test.SpendTx(coinbase, 0, 545), height)
		require.Error(t, err)
		assert.Equal(t, "dust", errors.ReasonOf(err))
		assert.Equal(t, errors.KindPolicy, errors.KindOf(err))
	})

	t.Run("zero value data output is not dust", func(t *testing.T) {
		tx := test.SpendTx(coinbase, 0, 1000)
		tx.AddOutput(&bt.Output{Satoshis: 0, LockingScript: bscript.NewFromBytes([]byte{bscript.OpFALSE, bscript.OpRETURN, 0x01, 0xff})})

		require.NoError(t, f.validator.CheckStandard(tx, height))
	})

	t.Run("data carrier too large", func(t *testing.T) {
		f.settings.Policy.DataCarrierSize = 3
		defer func() { f.settings.Policy.DataCarrierSize = 0 }()

		tx := test.SpendTx(coinbase, 0, 1000)
		tx.AddOutput(&bt.Output{Satoshis: 0, LockingScript: bscript.NewFromBytes([]byte{bscript.OpFALSE, bscript.OpRETURN, 0x01, 0xff})})

		err := f.validator.CheckStandard(tx, height)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "datacarrier-size")
	})

	t.Run("too large", func(t *testing.T) {
		f.settings.Policy.MaxTxSizePolicy = 50
		defer func() { f.settings.Policy.MaxTxSizePolicy = 10485760 }()

		err := f.validator.CheckStandard(test.SpendTx(coinbase, 0, 1000, 1000, 1000), height)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tx-size")
	})

	t.Run("unlocking script not push only", func(t *testing.T) {
		tx := test.SpendTx(coinbase, 0, 1000)
		tx.Inputs[0].UnlockingScript = bscript.NewFromBytes([]byte{bscript.OpTRUE, bscript.OpDROP})

		err := f.validator.CheckStandard(tx, height)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scriptsig-not-pushonly")
		assert.Equal(t, "non-standard", errors.ReasonOf(err))
	})

	t.Run("version", func(t *testing.T) {
		tx := test.SpendTx(coinbase, 0, 1000)
		tx.Version = 3

		err := f.validator.CheckStandard(tx, height)
		require.Error(t, err)
		assert.Equal(t, errors.KindPolicy, errors.KindOf(err))
	})

	t.Run("non-standard output template", func(t *testing.T) {
		f.settings.Policy.AcceptNonStdOutputs = false
		defer func() { f.settings.Policy.AcceptNonStdOutputs = true }()

		err := f.validator.CheckStandard(test.SpendTx(coinbase, 0, 1000), height)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scriptpubkey")
	})

	t.Run("policy disabled", func(t *testing.T) {
		f.settings.Policy.RequireStandard = false
		defer func() { f.settings.Policy.RequireStandard = true }()

		tx := test.SpendTx(coinbase, 0, 1000)
		tx.Inputs[0].UnlockingScript = bscript.NewFromBytes([]byte{bscript.OpTRUE, bscript.OpDROP})

		require.NoError(t, f.validator.CheckStandard(tx, height))
	})
}

func TestCheckFinal(t *testing.T) {
	f := newFixture(t, 1)
	coinbase := f.chain.Coinbase(1)

	t.Run("height lock", func(t *testing.T) {
		tx := test.WithSequence(test.SpendTx(coinbase, 0, 1000), 0)
		tx.LockTime = 10

		err := f.validator.CheckFinal(tx, BlockContext{Height: 10})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrLockTime))
		assert.Equal(t, errors.KindConsensus, errors.KindOf(err))
		assert.Equal(t, "bad-txns-nonfinal", errors.ReasonOf(err))

		require.NoError(t, f.validator.CheckFinal(tx, BlockContext{Height: 11}))
	})

	t.Run("final sequence ignores lock time", func(t *testing.T) {
		tx := test.SpendTx(coinbase, 0, 1000)
		tx.LockTime = 1000

		require.NoError(t, f.validator.CheckFinal(tx, BlockContext{Height: 2}))
	})

	t.Run("time lock uses median time past", func(t *testing.T) {
		tx := test.WithSequence(test.SpendTx(coinbase, 0, 1000), 0)
		tx.LockTime = 600_000_000

		bc := BlockContext{
			Height:         uint32(f.settings.ChainCfgParams.CSVHeight) + 1, //nolint:gosec // activation heights are positive
			Time:           600_000_100,
			MedianTimePast: 599_999_000,
		}

		require.Error(t, f.validator.CheckFinal(tx, bc))

		bc.MedianTimePast = 600_000_001
		require.NoError(t, f.validator.CheckFinal(tx, bc))
	})
}

func TestCheckInputs(t *testing.T) {
	f := newFixture(t, 1)
	coinbase := f.chain.Coinbase(1)

	tx := test.SpendTx(coinbase, 0, 1000)
	coin := utxo.NewCoin(coinbase.Outputs[0], 1, true)

	t.Run("premature coinbase spend", func(t *testing.T) {
		params := *f.settings.ChainCfgParams
		params.CoinbaseMaturity = 100

		tSettings := *f.settings
		tSettings.ChainCfgParams = &params

		tv, err := NewTxValidator(ulogger.TestLogger{}, &tSettings)
		require.NoError(t, err)

		_, err = tv.CheckInputs(tx, []*utxo.Coin{coin}, 100)
		require.Error(t, err)
		assert.Equal(t, "bad-txns-premature-spend-of-coinbase", errors.ReasonOf(err))

		fee, err := tv.CheckInputs(tx, []*utxo.Coin{coin}, 101)
		require.NoError(t, err)
		assert.Equal(t, coin.Value-1000, fee)
	})

	t.Run("coin count mismatch", func(t *testing.T) {
		_, err := f.validator.CheckInputs(tx, nil, 2)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	})
}

func TestResolveInputsExtendsTransaction(t *testing.T) {
	f := newFixture(t, 1)
	coinbase := f.chain.Coinbase(1)

	tx := test.SpendTx(coinbase, 0, 1000)
	tx.Inputs[0].PreviousTxSatoshis = 0
	tx.Inputs[0].PreviousTxScript = nil

	coins, err := f.validator.ResolveInputs(context.Background(), tx, f.store)
	require.NoError(t, err)
	require.Len(t, coins, 1)

	assert.Equal(t, coinbase.Outputs[0].Satoshis, tx.Inputs[0].PreviousTxSatoshis)
	assert.Equal(t, []byte(*coinbase.Outputs[0].LockingScript), []byte(*tx.Inputs[0].PreviousTxScript))
}

func TestCheckSigOps(t *testing.T) {
	f := newFixture(t, 1)

	f.settings.Policy.MaxTxSigopsCountsPolicy = 2
	defer func() { f.settings.Policy.MaxTxSigopsCountsPolicy = 0 }()

	tx := test.SpendTx(f.chain.Coinbase(1), 0, 1000)

	count, err := f.validator.CheckSigOps(tx, []*utxo.Coin{{Value: 1, Script: []byte{bscript.OpCHECKSIG, bscript.OpCHECKSIGVERIFY}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, err = f.validator.CheckSigOps(tx, []*utxo.Coin{{Value: 1, Script: []byte{bscript.OpCHECKMULTISIG}}})
	require.Error(t, err)
	assert.Equal(t, errors.KindPolicy, errors.KindOf(err))
}

func TestScriptVerifierNone(t *testing.T) {
	f := newFixture(t, 2)
	coinbase := f.chain.Coinbase(1)

	verifier, err := NewScriptVerifier(ulogger.TestLogger{}, ScriptVerifierNone, f.settings.Policy, f.settings.ChainCfgParams)
	require.NoError(t, err)

	tv, err := NewTxValidator(ulogger.TestLogger{}, f.settings, WithScriptVerifier(verifier))
	require.NoError(t, err)

	parent := test.SpendTx(coinbase, 0, 10_000)
	parent.Outputs[0].LockingScript = bscript.NewFromBytes([]byte{bscript.OpFALSE})
	f.mine(t, parent)

	_, err = tv.CheckTransaction(context.Background(), test.SpendTx(parent, 0, 1000), f.store, f.next())
	require.NoError(t, err)
}
