package validator

import (
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-chaincfg"
)

func init() {
	ScriptVerifierFactory[ScriptVerifierNone] = func(logger ulogger.Logger, _ *settings.PolicySettings, _ *chaincfg.Params) ScriptVerifier {
		logger.Warnf("Script verification is DISABLED")
		return scriptVerifierNone{}
	}
}

type scriptVerifierNone struct{}

func (scriptVerifierNone) Type() ScriptVerifierType {
	return ScriptVerifierNone
}

func (scriptVerifierNone) VerifyScript(*bt.Tx, int, *bt.Output, uint32) error {
	return nil
}
