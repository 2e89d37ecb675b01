package validator

import (
	"context"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/chainstate/util/tracing"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-chaincfg"
)

const (
	// MaxSatoshis is the total supply; no single value or sum may exceed it.
	MaxSatoshis = 21_000_000 * 100_000_000

	// minCoinbaseScriptSize is the smallest coinbase unlocking script allowed.
	minCoinbaseScriptSize = 2

	// maxTxVersion is the highest standard transaction version.
	maxTxVersion = 2
)

var tracer = tracing.Tracer("validator")

// TxValidator implements transaction validation logic
type TxValidator struct {
	logger   ulogger.Logger
	settings *settings.Settings
	verifier ScriptVerifier
	options  *TxValidatorOptions
}

var _ Interface = (*TxValidator)(nil)

// NewTxValidator creates a validator using the script verifier named by
// the validator_scriptVerifier setting.
func NewTxValidator(logger ulogger.Logger, tSettings *settings.Settings, opts ...TxValidatorOption) (*TxValidator, error) {
	initPrometheusMetrics()

	options := NewTxValidatorOptions(opts...)

	verifier := options.scriptVerifier
	if verifier == nil {
		var err error

		verifier, err = NewScriptVerifier(logger, ScriptVerifierType(tSettings.Validator.ScriptVerifier), tSettings.Policy, tSettings.ChainCfgParams)
		if err != nil {
			return nil, err
		}
	}

	return &TxValidator{
		logger:   logger,
		settings: tSettings,
		verifier: verifier,
		options:  options,
	}, nil
}

func (tv *TxValidator) Params() *chaincfg.Params {
	return tv.settings.ChainCfgParams
}

// CheckSanity enforces the consensus rules that need nothing but the
// transaction itself.
func (tv *TxValidator) CheckSanity(tx *bt.Tx) error {
	if len(tx.Inputs) == 0 {
		return errors.NewTxInvalidError("bad-txns-vin-empty: transaction has no inputs")
	}

	if len(tx.Outputs) == 0 {
		return errors.NewTxInvalidError("bad-txns-vout-empty: transaction has no outputs")
	}

	if maxSize := tv.settings.Policy.GetExcessiveBlockSize(); maxSize > 0 && tx.Size() > maxSize {
		return errors.NewTxInvalidError("bad-txns-oversize: transaction size %d exceeds %d", tx.Size(), maxSize)
	}

	if err := tv.checkOutputs(tx); err != nil {
		return err
	}

	if err := tv.checkDuplicateInputs(tx); err != nil {
		return err
	}

	if tx.IsCoinbase() {
		scriptLen := 0
		if tx.Inputs[0].UnlockingScript != nil {
			scriptLen = len(*tx.Inputs[0].UnlockingScript)
		}

		maxLen := int(tv.Params().MaxCoinbaseScriptSigSize)
		if maxLen == 0 {
			maxLen = 100
		}

		if scriptLen < minCoinbaseScriptSize || scriptLen > maxLen {
			return errors.New(errors.ERR_BLOCK_BAD_COINBASE, "bad-cb-length: coinbase script length %d out of range", scriptLen)
		}

		return nil
	}

	for index, input := range tx.Inputs {
		if isNullOutpoint(input) {
			return errors.NewTxInvalidError("bad-txns-prevout-null: input %d spends a null outpoint", index)
		}
	}

	return nil
}

// checkOutputs validates output values against the money range.
func (tv *TxValidator) checkOutputs(tx *bt.Tx) error {
	total := uint64(0)

	for index, output := range tx.Outputs {
		if output.Satoshis > MaxSatoshis {
			return errors.NewTxInvalidError("bad-txns-vout-toolarge: output %d value %d is out of range", index, output.Satoshis)
		}

		total += output.Satoshis

		if total > MaxSatoshis {
			return errors.NewTxInvalidError("bad-txns-txouttotal-toolarge: output total %d is out of range", total)
		}
	}

	return nil
}

// checkDuplicateInputs rejects a transaction spending the same outpoint twice.
func (tv *TxValidator) checkDuplicateInputs(tx *bt.Tx) error {
	seen := make(map[utxo.Outpoint]struct{}, len(tx.Inputs))

	for index, input := range tx.Inputs {
		op := utxo.OutpointFromInput(input)

		if _, exists := seen[op]; exists {
			return errors.NewTxInvalidError("bad-txns-inputs-duplicate: duplicate input found at index %d", index)
		}

		seen[op] = struct{}{}
	}

	return nil
}

func isNullOutpoint(input *bt.Input) bool {
	if input.PreviousTxOutIndex != 0xffffffff {
		return false
	}

	for _, b := range input.PreviousTxID() {
		if b != 0 {
			return false
		}
	}

	return true
}

// CheckStandard enforces node policy. Policy failures are rejections by this
// node only; the transaction may still be valid in a block.
func (tv *TxValidator) CheckStandard(tx *bt.Tx, height uint32) error {
	policy := tv.settings.Policy

	if tx.IsCoinbase() {
		return errors.New(errors.ERR_TX_COINBASE, "coinbase transactions are only valid in blocks")
	}

	if tx.Version < 1 || tx.Version > maxTxVersion {
		return errors.NewTxNonStandardError("version: transaction version %d is not standard", tx.Version)
	}

	if err := tv.checkTxSize(tx.Size()); err != nil {
		return err
	}

	if !policy.RequireStandard {
		return nil
	}

	for index, input := range tx.Inputs {
		if input.UnlockingScript == nil {
			return errors.NewTxNonStandardError("scriptsig-not-pushonly: input %d has no unlocking script", index)
		}

		if maxSize := policy.MaxUnlockingScriptSizePolicy; maxSize > 0 && len(*input.UnlockingScript) > maxSize {
			return errors.NewTxNonStandardError("scriptsig-size: input %d unlocking script is %d bytes", index, len(*input.UnlockingScript))
		}
	}

	if height > uint32(tv.Params().UahfForkHeight) { //nolint:gosec // fork heights are positive
		if err := pushDataCheck(tx); err != nil {
			return err
		}
	}

	for index, output := range tx.Outputs {
		if err := tv.checkStandardOutput(index, output, height); err != nil {
			return err
		}
	}

	return nil
}

// checkTxSize validates that the transaction size complies with policy limits.
func (tv *TxValidator) checkTxSize(txSize int) error {
	maxTxSizePolicy := tv.settings.Policy.GetMaxTxSizePolicy()
	if maxTxSizePolicy == 0 {
		// no policy found for tx size, use max block size
		maxTxSizePolicy = tv.settings.Policy.GetExcessiveBlockSize()
	}

	if txSize > maxTxSizePolicy {
		return errors.NewTxNonStandardError("tx-size: transaction size %d is greater than max tx size policy %d", txSize, maxTxSizePolicy)
	}

	return nil
}

// CheckFinal checks the lock time of tx against the block it would be
// included in. Lock times are measured against the parent's median time past
// once CSV is active and against the block time before that.
func (tv *TxValidator) CheckFinal(tx *bt.Tx, bc BlockContext) error {
	cutoff := bc.Time
	if bc.Height >= uint32(tv.Params().CSVHeight) { //nolint:gosec // activation heights are positive
		cutoff = bc.MedianTimePast
	}

	if !util.IsFinalTx(tx, bc.Height, cutoff) {
		return errors.NewLockTimeError("transaction %s is not final at height %d", tx.TxID(), bc.Height)
	}

	return nil
}

// ResolveInputs looks up the coin spent by every input and attaches the
// spent value and script to the input, as script verification needs them.
func (tv *TxValidator) ResolveInputs(ctx context.Context, tx *bt.Tx, view utxo.CoinReader) ([]*utxo.Coin, error) {
	coins := make([]*utxo.Coin, len(tx.Inputs))

	for index, input := range tx.Inputs {
		op := utxo.OutpointFromInput(input)

		coin, err := view.GetCoin(ctx, op)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return nil, errors.NewTxMissingInputsError("input %d of %s spends missing or spent output %s", index, tx.TxID(), op).
					WithData(errors.DataKeyOutpoint, op.String())
			}

			return nil, err
		}

		input.PreviousTxSatoshis = coin.Value
		input.PreviousTxScript = coin.Output().LockingScript

		coins[index] = coin
	}

	return coins, nil
}

// CheckInputs enforces the consensus rules on the resolved coins and returns
// the fee. spendHeight is the height of the block spending the coins.
func (tv *TxValidator) CheckInputs(tx *bt.Tx, coins []*utxo.Coin, spendHeight uint32) (uint64, error) {
	if len(coins) != len(tx.Inputs) {
		return 0, errors.NewInvalidArgumentError("%d coins for %d inputs", len(coins), len(tx.Inputs))
	}

	maturity := tv.Params().CoinbaseMaturity
	total := uint64(0)

	for index, coin := range coins {
		if !coin.IsMature(spendHeight, maturity) {
			return 0, errors.New(errors.ERR_TX_PREMATURE_COINBASE_SPEND, "input %d spends coinbase from height %d at height %d", index, coin.Height, spendHeight)
		}

		if coin.Value > MaxSatoshis {
			return 0, errors.NewTxInvalidError("bad-txns-inputvalues-outofrange: input %d value %d", index, coin.Value)
		}

		total += coin.Value

		if total > MaxSatoshis {
			return 0, errors.NewTxInvalidError("bad-txns-inputvalues-outofrange: input total %d", total)
		}
	}

	outputTotal := tx.TotalOutputSatoshis()
	if total < outputTotal {
		return 0, errors.NewTxInvalidError("bad-txns-in-belowout: input total %d is below output total %d", total, outputTotal)
	}

	return total - outputTotal, nil
}

// VerifyScripts runs every input's unlocking script against the coin it spends.
func (tv *TxValidator) VerifyScripts(tx *bt.Tx, coins []*utxo.Coin, height uint32) error {
	for index, coin := range coins {
		if err := tv.verifier.VerifyScript(tx, index, coin.Output(), height); err != nil {
			return err
		}
	}

	return nil
}

// CheckTransaction validates a loose transaction for inclusion in the block
// described by bc, resolving inputs through view.
func (tv *TxValidator) CheckTransaction(ctx context.Context, tx *bt.Tx, view utxo.CoinReader, bc BlockContext) (info *TxInfo, err error) {
	ctx, _, endSpan := tracer.Start(ctx, "CheckTransaction",
		tracing.WithHistogram(prometheusTransactionValidate),
	)

	start := time.Now()

	defer func() {
		if err != nil {
			prometheusInvalidTransactions.WithLabelValues(errors.GetErrorCategory(err)).Inc()
		}

		endSpan(err)
	}()

	if err = tv.CheckSanity(tx); err != nil {
		return nil, err
	}

	if err = tv.CheckStandard(tx, bc.Height); err != nil {
		return nil, err
	}

	if err = tv.CheckFinal(tx, bc); err != nil {
		return nil, err
	}

	coins, err := tv.ResolveInputs(ctx, tx, view)
	if err != nil {
		return nil, err
	}

	fee, err := tv.CheckInputs(tx, coins, bc.Height)
	if err != nil {
		return nil, err
	}

	sigOps, err := tv.CheckSigOps(tx, coins)
	if err != nil {
		return nil, err
	}

	scriptStart := time.Now()

	if err = tv.VerifyScripts(tx, coins, bc.Height); err != nil {
		return nil, err
	}

	prometheusTransactionValidateScripts.Observe(time.Since(scriptStart).Seconds())
	prometheusTransactionSize.Observe(float64(tx.Size()))

	info = &TxInfo{
		Fee:    fee,
		Size:   tx.Size(),
		Coins:  coins,
		SigOps: sigOps,
	}

	for _, coin := range coins {
		if coin.Coinbase {
			info.SpendsCoinbase = true
			break
		}
	}

	tv.logger.Debugf("[CheckTransaction][%s] valid, fee %d, size %d in %s", tx.TxID(), fee, info.Size, time.Since(start))

	return info, nil
}
