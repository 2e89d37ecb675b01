package chainstate

import (
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// ValidationResult is the outcome reported to the network layer for every
// received block, header batch or transaction.
type ValidationResult int

const (
	// Accepted means the object was valid and stored.
	Accepted ValidationResult = iota
	// AlreadyKnown means the object had been processed before.
	AlreadyKnown
	// Orphan means a parent or an input is missing; the object may become valid later.
	Orphan
	// Invalid means the object broke a rule. Verdict.Kind tells which class of rule.
	Invalid
	// InternalError means the node failed to decide, e.g. a store error.
	InternalError
)

func (r ValidationResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case AlreadyKnown:
		return "already-known"
	case Orphan:
		return "orphan"
	case Invalid:
		return "invalid"
	default:
		return "internal-error"
	}
}

// Verdict is what the chainstate concluded about a received object.
type Verdict struct {
	Result ValidationResult
	// Kind is the error class for Invalid and InternalError verdicts.
	Kind errors.Kind
	// Reason is the short reject reason, e.g. bad-txns-inputs-missingorspent.
	Reason string
	// Penalize is set when the sender relayed an object that breaks a rule
	// independent of local policy.
	Penalize bool
	Err    error
	// Hash is the block or transaction the verdict is about.
	Hash chainhash.Hash
	// Missing lists blocks on the best header chain whose bodies are needed.
	Missing []chainhash.Hash
}

// VerdictHandler receives every verdict together with the peer that sent the
// object, typically to keep a misbehaviour score. It is called without the
// chainstate lock held.
type VerdictHandler func(fromPeer string, verdict Verdict)

// verdictFromError classifies err. A nil error is Accepted.
func verdictFromError(hash chainhash.Hash, err error) Verdict {
	if err == nil {
		return Verdict{Result: Accepted, Hash: hash}
	}

	v := Verdict{
		Kind:     errors.KindOf(err),
		Reason:   errors.ReasonOf(err),
		Penalize: errors.IsPenalizable(err),
		Err:      err,
		Hash:     hash,
	}

	switch v.Kind {
	case errors.KindDuplicate:
		v.Result = AlreadyKnown
	case errors.KindMissing:
		v.Result = Orphan
	case errors.KindStructural, errors.KindConsensus, errors.KindPolicy, errors.KindResource:
		v.Result = Invalid
	default:
		v.Result = InternalError
	}

	return v
}
