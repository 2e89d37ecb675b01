package blockchain

// Validity is how far a block has been validated.
type Validity uint8

const (
	ValidityUnknown Validity = iota
	// ValidityHeader means the header passed proof of work, difficulty and time checks.
	ValidityHeader
	// ValidityTree means the body passed the context-free block checks.
	ValidityTree
	// ValidityChain means the block was connected to the UTXO set at least once.
	ValidityChain
	// ValidityFailed is reported for blocks that failed validation or descend from one.
	ValidityFailed
)

func (v Validity) String() string {
	switch v {
	case ValidityHeader:
		return "header-valid"
	case ValidityTree:
		return "tree-valid"
	case ValidityChain:
		return "chain-valid"
	case ValidityFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the mutable part of an index entry. The validity level reached
// before a failure is kept so that a reconsidered block returns to it.
type Status struct {
	Level     Validity
	Failed    bool
	HaveData  bool
	HaveUndo  bool
	Persisted bool
}

// Validity returns ValidityFailed for failed blocks and the reached level otherwise.
func (s Status) Validity() Validity {
	if s.Failed {
		return ValidityFailed
	}

	return s.Level
}

// raise moves the level up, never down.
func (s Status) raise(level Validity) Status {
	if level > s.Level {
		s.Level = level
	}

	return s
}

// Bits packs the status into the integer stored with the block row.
func (s Status) Bits() uint32 {
	b := uint32(s.Level)

	if s.Failed {
		b |= 1 << 4
	}

	if s.HaveData {
		b |= 1 << 5
	}

	if s.HaveUndo {
		b |= 1 << 6
	}

	return b
}

// StatusFromBits is the inverse of Bits. Loaded entries are persisted by definition.
func StatusFromBits(b uint32) Status {
	return Status{
		Level:     Validity(b & 0x0f),
		Failed:    b&(1<<4) != 0,
		HaveData:  b&(1<<5) != 0,
		HaveUndo:  b&(1<<6) != 0,
		Persisted: true,
	}
}
