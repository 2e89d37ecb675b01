/*
Package validator implements transaction validation.

A transaction is checked in stages, each of which can be used on its own:

  - CheckSanity: context-free consensus rules (structure, value ranges, duplicate inputs)
  - CheckStandard: node policy (size limits, push-only unlocking scripts, dust, sigops)
  - CheckFinal: lock time against the block the transaction would be included in
  - ResolveInputs and CheckInputs: coin lookup, coinbase maturity, value conservation
  - VerifyScripts: unlocking scripts against the spent locking scripts

CheckTransaction runs all of them in that order for standalone admission.
Block validation runs the consensus stages only, with script checks spread
over a worker pool.

Script execution is delegated to a ScriptVerifier chosen by the
validator_scriptVerifier setting.
*/
package validator

import (
	"context"

	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2"
)

// BlockContext describes the block a transaction is validated for.
type BlockContext struct {
	// Height of the block the transaction would be included in.
	Height uint32
	// Time is the block timestamp, or the adjusted local time for admission.
	Time int64
	// MedianTimePast of the block's parent.
	MedianTimePast int64
}

// TxInfo is what CheckTransaction learned about an accepted transaction.
type TxInfo struct {
	Fee            uint64
	Size           int
	Coins          []*utxo.Coin
	SpendsCoinbase bool
	SigOps         int64
}

// Interface is the transaction validation surface used by the mempool and
// by block validation.
type Interface interface {
	CheckSanity(tx *bt.Tx) error
	CheckStandard(tx *bt.Tx, height uint32) error
	CheckFinal(tx *bt.Tx, bc BlockContext) error
	ResolveInputs(ctx context.Context, tx *bt.Tx, view utxo.CoinReader) ([]*utxo.Coin, error)
	CheckInputs(tx *bt.Tx, coins []*utxo.Coin, spendHeight uint32) (uint64, error)
	CheckSigOps(tx *bt.Tx, coins []*utxo.Coin) (int64, error)
	VerifyScripts(tx *bt.Tx, coins []*utxo.Coin, height uint32) error
	CheckTransaction(ctx context.Context, tx *bt.Tx, view utxo.CoinReader, bc BlockContext) (*TxInfo, error)
}
