package validator

import (
	"sort"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-chaincfg"
)

// ScriptVerifierType names a script verification engine.
type ScriptVerifierType string

const (
	// ScriptVerifierGoBT executes scripts with the go-bt interpreter.
	ScriptVerifierGoBT ScriptVerifierType = "GoBT"

	// ScriptVerifierNone accepts every script. Only meant for tests and tooling.
	ScriptVerifierNone ScriptVerifierType = "None"
)

// ScriptVerifier checks the unlocking script of one input against the output it spends.
type ScriptVerifier interface {
	VerifyScript(tx *bt.Tx, inputIdx int, prevOutput *bt.Output, blockHeight uint32) error
	Type() ScriptVerifierType
}

// ScriptVerifierCreator builds a script verifier for the given policy and network.
type ScriptVerifierCreator func(logger ulogger.Logger, policy *settings.PolicySettings, params *chaincfg.Params) ScriptVerifier

// ScriptVerifierFactory holds the registered verifier creators. Verifiers
// register themselves from init.
var ScriptVerifierFactory = make(map[ScriptVerifierType]ScriptVerifierCreator)

// NewScriptVerifier creates the verifier registered under verifierType.
func NewScriptVerifier(logger ulogger.Logger, verifierType ScriptVerifierType, policy *settings.PolicySettings, params *chaincfg.Params) (ScriptVerifier, error) {
	create, ok := ScriptVerifierFactory[verifierType]
	if !ok {
		available := make([]string, 0, len(ScriptVerifierFactory))
		for name := range ScriptVerifierFactory {
			available = append(available, string(name))
		}

		sort.Strings(available)

		return nil, errors.NewConfigurationError("unknown script verifier %q, available: %v", verifierType, available)
	}

	return create(logger, policy, params), nil
}
