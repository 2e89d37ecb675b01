package mempool

import (
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// maxBIP125Sequence is the highest input sequence number that signals replaceability.
const maxBIP125Sequence = 0xfffffffd

// signalsReplacement reports whether the entry, or any of its unconfirmed
// ancestors, opted in to replacement.
func (m *Mempool) signalsReplacement(h Handle) bool {
	candidates := append([]Handle{h}, m.ancestorsOf(m.entries[h].parents)...)

	for _, c := range candidates {
		for _, input := range m.entries[c].Tx.Inputs {
			if input.SequenceNumber <= maxBIP125Sequence {
				return true
			}
		}
	}

	return false
}

// checkReplaceable applies the replacement policy to the pool transactions a
// new transaction conflicts with.
func (m *Mempool) checkReplaceable(txID chainhash.Hash, conflicts []Handle) error {
	switch m.rbfPolicy {
	case RBFDisabled:
		return errors.New(errors.ERR_TX_MEMPOOL_CONFLICT, "transaction %s spends an output already spent by %s", txID, m.entries[conflicts[0]].TxID)

	case RBFOptIn:
		for _, c := range conflicts {
			if !m.signalsReplacement(c) {
				return errors.New(errors.ERR_TX_MEMPOOL_CONFLICT, "transaction %s conflicts with %s, which does not signal replaceability", txID, m.entries[c].TxID)
			}
		}
	}

	return nil
}

// checkReplacement checks a replacement against the conflicts it would evict
// and returns the full eviction set: the conflicts and all their descendants.
// The replacement must pay a higher fee rate than each conflict alone and
// than each conflict package, and cover the evicted fees plus its own relay fee.
func (m *Mempool) checkReplacement(txID chainhash.Hash, fee uint64, size int, parents map[Handle]struct{}, conflicts []Handle) (map[Handle]struct{}, error) {
	evicted := make(map[Handle]struct{})
	conflictParents := make(map[Handle]struct{})

	for _, c := range conflicts {
		evicted[c] = struct{}{}

		for _, d := range m.descendantsOf(c) {
			evicted[d] = struct{}{}
		}

		for p := range m.entries[c].parents {
			conflictParents[p] = struct{}{}
		}
	}

	if maxEvictions := m.settings.Mempool.MaxReplacementEvictions; maxEvictions > 0 && len(evicted) > maxEvictions {
		return nil, errors.NewTxReplacementRejectedError("transaction %s would evict %d transactions, limit %d", txID, len(evicted), maxEvictions)
	}

	for p := range parents {
		if _, ok := evicted[p]; ok {
			return nil, errors.NewTxReplacementRejectedError("transaction %s spends %s, which it would replace", txID, m.entries[p].TxID)
		}

		if _, ok := conflictParents[p]; !ok {
			return nil, errors.NewTxReplacementRejectedError("transaction %s adds the unconfirmed input %s", txID, m.entries[p].TxID)
		}
	}

	for _, c := range conflicts {
		conflict := m.entries[c]

		if util.CompareFeeRates(fee, size, conflict.Fee, conflict.Size) <= 0 {
			return nil, errors.NewTxReplacementRejectedError("transaction %s fee rate %.0f sat/kB does not exceed %.0f sat/kB of %s",
				txID, util.FeeRate(fee, size), conflict.FeeRate(), conflict.TxID)
		}

		// the conflict together with its descendants
		if util.CompareFeeRates(fee, size, conflict.DescendantFees, conflict.DescendantSize) <= 0 {
			return nil, errors.NewTxReplacementRejectedError("transaction %s fee rate %.0f sat/kB does not exceed %.0f sat/kB of %s and its descendants",
				txID, util.FeeRate(fee, size), util.FeeRate(conflict.DescendantFees, conflict.DescendantSize), conflict.TxID)
		}
	}

	evictedFees := uint64(0)
	for h := range evicted {
		evictedFees += m.entries[h].Fee
	}

	if required := evictedFees + util.MinFee(size, m.settings.Mempool.MinRelayFeeSatsPerKB); fee < required {
		return nil, errors.NewTxReplacementRejectedError("transaction %s pays %d, replacing %d transactions requires at least %d", txID, fee, len(evicted), required)
	}

	return evicted, nil
}
