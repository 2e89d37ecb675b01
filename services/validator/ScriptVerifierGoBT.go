package validator

import (
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter"
	"github.com/bsv-blockchain/go-chaincfg"
)

func init() {
	ScriptVerifierFactory[ScriptVerifierGoBT] = newScriptVerifierGoBT
}

type scriptVerifierGoBT struct {
	logger ulogger.Logger
	policy *settings.PolicySettings
	params *chaincfg.Params
}

func newScriptVerifierGoBT(logger ulogger.Logger, policy *settings.PolicySettings, params *chaincfg.Params) ScriptVerifier {
	logger.Infof("Using GoBT script verifier")

	return &scriptVerifierGoBT{
		logger: logger,
		policy: policy,
		params: params,
	}
}

func (v *scriptVerifierGoBT) Type() ScriptVerifierType {
	return ScriptVerifierGoBT
}

func (v *scriptVerifierGoBT) VerifyScript(tx *bt.Tx, inputIdx int, prevOutput *bt.Output, blockHeight uint32) error {
	opts := []interpreter.ExecutionOptionFunc{
		interpreter.WithTx(tx, inputIdx, prevOutput),
	}

	if blockHeight > uint32(v.params.UahfForkHeight) { //nolint:gosec // fork heights are positive
		opts = append(opts, interpreter.WithForkID())
	}

	if blockHeight >= v.params.GenesisActivationHeight {
		opts = append(opts, interpreter.WithAfterGenesis())
	}

	if err := interpreter.NewEngine().Execute(opts...); err != nil {
		return errors.NewScriptVerifyError("script verification failed for input %d of %s", inputIdx, tx.TxID(), err)
	}

	return nil
}
