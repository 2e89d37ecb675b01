package blockchain

import (
	"math/big"

	"github.com/bsv-blockchain/chainstate/util"
)

const (
	// DifficultyAdjustmentWindow is the number of blocks the DAA averages work over.
	DifficultyAdjustmentWindow = 144

	// legacyRetargetInterval is the number of blocks between retargets before the DAA.
	legacyRetargetInterval = 2016
)

// NextWorkRequired returns the compact target a block with the given
// timestamp must carry on top of parent.
func (idx *Index) NextWorkRequired(parent *Entry, timestamp uint32) uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.nextWorkRequired(parent, timestamp)
}

// nextWorkRequired is NextWorkRequired for callers already holding mu.
func (idx *Index) nextWorkRequired(parent *Entry, timestamp uint32) uint32 {
	params := idx.params

	// regtest keeps the difficulty of its parent forever
	if params.NoDifficultyAdjustment {
		return parent.Header.Bits.Uint32()
	}

	// testnet allows a minimum difficulty block once too much time has passed
	if params.ReduceMinDifficulty {
		allowMinTime := int64(parent.Header.Timestamp) + int64(2*params.TargetTimePerBlock.Seconds())
		if int64(timestamp) > allowMinTime {
			return params.PowLimitBits
		}
	}

	height := parent.Height + 1

	if height >= uint32(params.DaaForkHeight) { //nolint:gosec // fork heights are positive
		return idx.daaWorkRequired(parent)
	}

	if height%legacyRetargetInterval != 0 {
		return idx.emergencyWorkRequired(parent)
	}

	return idx.legacyWorkRequired(parent)
}

// suitableBlock returns the entry with the median timestamp of entry and its
// two predecessors.
func (idx *Index) suitableBlock(entry *Entry) *Entry {
	blocks := [3]*Entry{entry, entry, entry}

	if p := idx.entry(entry.Parent); p != nil {
		blocks[1] = p

		if pp := idx.entry(p.Parent); pp != nil {
			blocks[0] = pp
		} else {
			blocks[0] = p
		}
	}

	// sort the three by timestamp
	if blocks[0].Header.Timestamp > blocks[2].Header.Timestamp {
		blocks[0], blocks[2] = blocks[2], blocks[0]
	}

	if blocks[0].Header.Timestamp > blocks[1].Header.Timestamp {
		blocks[0], blocks[1] = blocks[1], blocks[0]
	}

	if blocks[1].Header.Timestamp > blocks[2].Header.Timestamp {
		blocks[1], blocks[2] = blocks[2], blocks[1]
	}

	return blocks[1]
}

// daaWorkRequired computes the target from the work done and the time taken
// over the last DifficultyAdjustmentWindow blocks.
func (idx *Index) daaWorkRequired(parent *Entry) uint32 {
	params := idx.params

	if parent.Height < DifficultyAdjustmentWindow+3 {
		return params.PowLimitBits
	}

	last := idx.suitableBlock(parent)
	first := idx.suitableBlock(idx.ancestor(parent, parent.Height-DifficultyAdjustmentWindow))

	work := new(big.Int).Sub(last.ChainWork, first.ChainWork)

	spacing := int64(params.TargetTimePerBlock.Seconds())

	// bound the amplitude of the adjustment to avoid difficulty cliffs
	duration := int64(last.Header.Timestamp) - int64(first.Header.Timestamp)
	if duration > 288*spacing {
		duration = 288 * spacing
	} else if duration < 72*spacing {
		duration = 72 * spacing
	}

	projectedWork := new(big.Int).Mul(work, big.NewInt(spacing))
	projectedWork.Div(projectedWork, big.NewInt(duration))

	if projectedWork.Sign() == 0 {
		return parent.Header.Bits.Uint32()
	}

	// target = (2^256 - work) / work
	newTarget := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), projectedWork)
	newTarget.Div(newTarget, projectedWork)

	if newTarget.Cmp(params.PowLimit) > 0 {
		newTarget.Set(params.PowLimit)
	}

	return util.TargetToBits(newTarget)
}

// emergencyWorkRequired keeps the parent's difficulty, except between the
// UAHF and the DAA where it is lowered by 20% whenever the last six blocks
// took more than twelve hours.
func (idx *Index) emergencyWorkRequired(parent *Entry) uint32 {
	params := idx.params
	bits := parent.Header.Bits.Uint32()

	if parent.Height+1 <= uint32(params.UahfForkHeight) || parent.Height < 6 { //nolint:gosec // fork heights are positive
		return bits
	}

	mtpDiff := idx.medianTimePast(parent) - idx.medianTimePast(idx.ancestor(parent, parent.Height-6))
	if mtpDiff < 12*3600 {
		return bits
	}

	target := util.CalculateTarget(bits)
	target.Add(target, new(big.Int).Rsh(target, 2))

	if target.Cmp(params.PowLimit) > 0 {
		target.Set(params.PowLimit)
	}

	return util.TargetToBits(target)
}

// legacyWorkRequired is the original retarget every 2016 blocks.
func (idx *Index) legacyWorkRequired(parent *Entry) uint32 {
	params := idx.params

	first := idx.ancestor(parent, parent.Height-(legacyRetargetInterval-1))

	targetTimespan := int64(params.TargetTimespan.Seconds())
	adjustment := params.RetargetAdjustmentFactor

	actual := int64(parent.Header.Timestamp) - int64(first.Header.Timestamp)
	if actual < targetTimespan/adjustment {
		actual = targetTimespan / adjustment
	} else if actual > targetTimespan*adjustment {
		actual = targetTimespan * adjustment
	}

	target := util.CalculateTarget(parent.Header.Bits.Uint32())
	target.Mul(target, big.NewInt(actual))
	target.Div(target, big.NewInt(targetTimespan))

	if target.Cmp(params.PowLimit) > 0 {
		target.Set(params.PowLimit)
	}

	return util.TargetToBits(target)
}
