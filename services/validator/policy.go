package validator

import (
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter"
)

// multisigSigOps is the legacy sigop weight of a bare CHECKMULTISIG.
const multisigSigOps = 20

// isUnspendableOutput checks if an output script is provably unspendable
// (OP_RETURN or OP_FALSE OP_RETURN)
func isUnspendableOutput(script *bscript.Script) bool {
	if script == nil {
		return false
	}

	return utxo.IsUnspendable(*script)
}

// checkStandardOutput applies the output policy: dust, script size, data
// carrier size and, unless non-standard outputs are accepted, the script template.
func (tv *TxValidator) checkStandardOutput(index int, output *bt.Output, height uint32) error {
	policy := tv.settings.Policy

	if output.LockingScript == nil {
		return errors.NewTxNonStandardError("scriptpubkey: output %d has no locking script", index)
	}

	script := output.LockingScript
	unspendable := isUnspendableOutput(script)

	if output.Satoshis < policy.GetDustLimit() && !unspendable {
		return errors.New(errors.ERR_TX_DUST, "output %d value %d is below the dust limit %d", index, output.Satoshis, policy.GetDustLimit())
	}

	if unspendable {
		if policy.DataCarrierSize > 0 && len(*script) > policy.DataCarrierSize {
			return errors.NewTxNonStandardError("datacarrier-size: output %d carries %d bytes, limit %d", index, len(*script), policy.DataCarrierSize)
		}

		return nil
	}

	if maxSize := policy.GetMaxScriptSizePolicy(); maxSize > 0 && len(*script) > maxSize {
		return errors.NewTxNonStandardError("scriptpubkey-size: output %d locking script is %d bytes", index, len(*script))
	}

	if policy.AcceptNonStdOutputs {
		return nil
	}

	switch {
	case script.IsP2PKH(), script.IsP2PK(), script.IsMultiSigOut():
		return nil
	case script.IsP2SH() && height < tv.Params().GenesisActivationHeight:
		return nil
	}

	return errors.NewTxNonStandardError("scriptpubkey: output %d has a non-standard locking script", index)
}

// pushDataCheck validates that transaction input scripts contain only data pushes.
func pushDataCheck(tx *bt.Tx) error {
	parser := interpreter.DefaultOpcodeParser{}

	for index, input := range tx.Inputs {
		if input.UnlockingScript == nil {
			return errors.NewTxNonStandardError("scriptsig-not-pushonly: input %d unlocking script is empty", index)
		}

		parsedUnlockingScript, err := parser.Parse(input.UnlockingScript)
		if err != nil {
			return errors.NewTxNonStandardError("scriptsig-not-pushonly: input %d unlocking script cannot be parsed", index, err)
		}

		if !parsedUnlockingScript.IsPushOnly() {
			return errors.NewTxNonStandardError("scriptsig-not-pushonly: input %d unlocking script is not push only", index)
		}
	}

	return nil
}

// CheckSigOps counts the signature operations in the locking scripts being
// spent and enforces the policy limit. A limit of 0 is unlimited.
func (tv *TxValidator) CheckSigOps(tx *bt.Tx, coins []*utxo.Coin) (int64, error) {
	maxSigOps := tv.settings.Policy.GetMaxTxSigopsCountsPolicy()
	parser := interpreter.DefaultOpcodeParser{}
	numSigOps := int64(0)

	for index, coin := range coins {
		if len(coin.Script) == 0 {
			continue
		}

		parsed, err := parser.Parse(bscript.NewFromBytes(coin.Script))
		if err != nil {
			// an unparseable spent script fails script verification anyway
			continue
		}

		for _, op := range parsed {
			switch op.Value() {
			case bscript.OpCHECKSIG, bscript.OpCHECKSIGVERIFY:
				numSigOps++
			case bscript.OpCHECKMULTISIG, bscript.OpCHECKMULTISIGVERIFY:
				numSigOps += multisigSigOps
			}
		}

		if maxSigOps > 0 && numSigOps > maxSigOps {
			return 0, errors.NewTxNonStandardError("bad-txns-too-many-sigops: %d sigops at input %d exceed %d", numSigOps, index, maxSigOps)
		}
	}

	return numSigOps, nil
}
