package util

import (
	"github.com/bsv-blockchain/go-bt/v2"
)

const (
	// LockTimeThreshold separates block-height lock times from unix timestamps.
	LockTimeThreshold = 500000000

	// SequenceFinal disables the lock time of an input.
	SequenceFinal = 0xffffffff
)

// IsFinalTx reports whether tx may be included in a block at blockHeight whose
// lock time reference is blockTime (the median time past of its parent).
func IsFinalTx(tx *bt.Tx, blockHeight uint32, blockTime int64) bool {
	if tx.LockTime == 0 {
		return true
	}

	var limit int64
	if tx.LockTime < LockTimeThreshold {
		limit = int64(blockHeight)
	} else {
		limit = blockTime
	}

	if int64(tx.LockTime) < limit {
		return true
	}

	for _, input := range tx.Inputs {
		if input.SequenceNumber != SequenceFinal {
			return false
		}
	}

	return true
}
