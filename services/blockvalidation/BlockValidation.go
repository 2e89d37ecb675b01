// Package blockvalidation checks full blocks before they are connected.
//
// CheckBlockContextFree needs nothing but the block. CheckBlockContextual
// needs the parent index entry and a UTXO view positioned at the parent, and
// connects the block to that view when every rule passes. Transaction level
// checks are fanned out over a bounded errgroup; the reported error is always
// the one of the lowest transaction index so that a verdict never depends on
// scheduling.
package blockvalidation

import (
	"context"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockchain"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/chainstate/util/tracing"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"golang.org/x/sync/errgroup"
)

var tracer = tracing.Tracer("blockvalidation")

type BlockValidation struct {
	logger      ulogger.Logger
	settings    *settings.Settings
	index       *blockchain.Index
	txValidator validator.Interface
}

// ConnectResult is what CheckBlockContextual learned while connecting a block.
type ConnectResult struct {
	Undo   *utxo.UndoData
	Height uint32
	Fees   uint64
	// Coins holds the resolved coins of every transaction, by transaction index.
	// The coinbase entry is nil.
	Coins [][]*utxo.Coin
}

func New(logger ulogger.Logger, tSettings *settings.Settings, index *blockchain.Index, txValidator validator.Interface) *BlockValidation {
	initPrometheusMetrics()

	return &BlockValidation{
		logger:      logger,
		settings:    tSettings,
		index:       index,
		txValidator: txValidator,
	}
}

// CheckBlockContextFree runs the checks that depend on the block alone. A
// merkle mismatch is reported as ERR_BLOCK_MUTATED: the body does not belong
// to the header, so the header itself must not be marked failed.
func (u *BlockValidation) CheckBlockContextFree(ctx context.Context, block *model.Block) (err error) {
	ctx, _, deferFn := tracer.Start(ctx, "CheckBlockContextFree",
		tracing.WithHistogram(prometheusBlockValidationContextFree),
		tracing.WithDebugLogMessage(u.logger, "[CheckBlockContextFree][%s] checking block with %d transactions", block.Hash(), len(block.Transactions)),
	)
	defer func() { deferFn(err) }()

	// 0 is unlimited so don't check the size
	if maxSize := u.settings.Policy.GetExcessiveBlockSize(); maxSize > 0 && block.Size() > maxSize {
		return errors.NewBlockTooLargeError("[CheckBlockContextFree][%s] block size %d exceeds excessiveblocksize %d", block.Hash(), block.Size(), maxSize)
	}

	if len(block.Transactions) == 0 {
		return errors.New(errors.ERR_BLOCK_BAD_COINBASE, "[CheckBlockContextFree][%s] bad-cb-missing: block has no transactions", block.Hash())
	}

	if err = blockchain.CheckProofOfWork(block.Header, u.settings.ChainCfgParams); err != nil {
		return err
	}

	if err = block.CheckMerkleRoot(); err != nil {
		return err
	}

	if !block.Transactions[0].IsCoinbase() {
		return errors.New(errors.ERR_BLOCK_BAD_COINBASE, "[CheckBlockContextFree][%s] bad-cb-missing: first transaction is not a coinbase", block.Hash())
	}

	seen := make(map[chainhash.Hash]struct{}, len(block.Transactions))

	for i, tx := range block.Transactions {
		if i > 0 && tx.IsCoinbase() {
			return errors.New(errors.ERR_BLOCK_BAD_COINBASE, "[CheckBlockContextFree][%s] bad-cb-multiple: transaction %d is a second coinbase", block.Hash(), i)
		}

		txID := *tx.TxIDChainHash()
		if _, ok := seen[txID]; ok {
			return errors.NewBlockInvalidError("[CheckBlockContextFree][%s] bad-txns-duplicate: transaction %s appears twice", block.Hash(), txID)
		}

		seen[txID] = struct{}{}
	}

	return u.forEachTx(ctx, block.Transactions, func(_ int, tx *bt.Tx) error {
		return u.txValidator.CheckSanity(tx)
	})
}

// CheckBlockContextual checks block against its parent and the UTXO set and,
// if every rule passes, connects it to view. view must be positioned at
// parent; on error it may hold partial lookups but no changes.
func (u *BlockValidation) CheckBlockContextual(ctx context.Context, block *model.Block, parent *blockchain.Entry, view *utxo.View) (result *ConnectResult, err error) {
	ctx, _, deferFn := tracer.Start(ctx, "CheckBlockContextual",
		tracing.WithHistogram(prometheusBlockValidationContextual),
	)
	defer func() { deferFn(err) }()

	if !block.Header.HashPrevBlock.IsEqual(&parent.Hash) {
		return nil, errors.NewInvalidArgumentError("[CheckBlockContextual][%s] parent %s is not %s", block.Hash(), parent.Hash, block.Header.HashPrevBlock)
	}

	params := u.settings.ChainCfgParams
	height := parent.Height + 1

	bc := validator.BlockContext{
		Height:         height,
		Time:           int64(block.Header.Timestamp),
		MedianTimePast: u.index.MedianTimePast(parent),
	}

	if height >= uint32(params.BIP0034Height) { //nolint:gosec // activation heights are positive
		coinbaseScript := block.Transactions[0].Inputs[0].UnlockingScript
		if coinbaseScript == nil || !util.CheckCoinbaseHeight(*coinbaseScript, height) {
			return nil, errors.New(errors.ERR_BLOCK_BAD_COINBASE_HEIGHT, "[CheckBlockContextual][%s] coinbase does not start with height %d", block.Hash(), height)
		}
	}

	for i, tx := range block.Transactions {
		if err = u.txValidator.CheckFinal(tx, bc); err != nil {
			return nil, errors.New(errors.ERR_BLOCK_INVALID, "[CheckBlockContextual][%s] transaction %d is not final", block.Hash(), i, err).
				WithData(errors.DataKeyTxID, tx.TxID()).
				WithData(errors.DataKeyTxIndex, i)
		}
	}

	result = &ConnectResult{
		Height: height,
		Coins:  make([][]*utxo.Coin, len(block.Transactions)),
	}

	reader := newBlockCoinReader(view)

	for i, tx := range block.Transactions {
		if i > 0 {
			coins, err := u.txValidator.ResolveInputs(ctx, tx, reader)
			if err != nil {
				if errors.Is(err, errors.ErrTxMissingInputs) {
					return nil, errors.New(errors.ERR_TX_INVALID_DOUBLE_SPEND, "[CheckBlockContextual][%s] transaction %d spends missing or spent outputs", block.Hash(), i, err).
						WithData(errors.DataKeyTxID, tx.TxID()).
						WithData(errors.DataKeyTxIndex, i)
				}

				return nil, err
			}

			fee, err := u.txValidator.CheckInputs(tx, coins, height)
			if err != nil {
				return nil, err
			}

			result.Coins[i] = coins
			result.Fees += fee

			reader.spend(tx)
		}

		reader.add(tx, height, i == 0)
	}

	scriptStart := time.Now()

	if err = u.forEachTx(ctx, block.Transactions, func(i int, tx *bt.Tx) error {
		if i == 0 {
			return nil
		}

		return u.txValidator.VerifyScripts(tx, result.Coins[i], height)
	}); err != nil {
		return nil, err
	}

	prometheusBlockValidationScripts.Observe(time.Since(scriptStart).Seconds())

	subsidy := util.GetBlockSubsidy(height, params)
	if coinbaseValue := block.Transactions[0].TotalOutputSatoshis(); coinbaseValue > subsidy+result.Fees {
		return nil, errors.New(errors.ERR_BLOCK_BAD_COINBASE_AMOUNT, "[CheckBlockContextual][%s] coinbase pays %d, limit %d", block.Hash(), coinbaseValue, subsidy+result.Fees)
	}

	if result.Undo, err = view.ApplyBlock(ctx, block, height); err != nil {
		return nil, err
	}

	prometheusBlockValidationTransactions.Add(float64(len(block.Transactions)))

	return result, nil
}

// forEachTx runs fn for every transaction on a bounded worker pool and
// returns the error of the lowest failing index.
func (u *BlockValidation) forEachTx(ctx context.Context, txs []*bt.Tx, fn func(int, *bt.Tx) error) error {
	errs := make([]error, len(txs))

	g := errgroup.Group{}
	util.SafeSetLimit(&g, u.settings.BlockValidation.Workers)

	for i, tx := range txs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = errors.NewContextCanceledError("validation cancelled", err)
				return nil
			}

			errs[i] = fn(i, tx)

			return nil
		})
	}

	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}
