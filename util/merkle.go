package util

import (
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// BuildMerkleRoot computes the merkle root of the given transaction ids.
// mutated is set when two identical siblings are hashed together anywhere in
// the tree other than the duplication of a lone last node; such a block
// shares its root with a different, shorter transaction list.
func BuildMerkleRoot(hashes []chainhash.Hash) (root chainhash.Hash, mutated bool) {
	if len(hashes) == 0 {
		return chainhash.Hash{}, false
	}

	level := make([]chainhash.Hash, len(hashes))
	copy(level, hashes)

	var buf [chainhash.HashSize * 2]byte

	for len(level) > 1 {
		for i := 0; i+1 < len(level); i += 2 {
			if level[i] == level[i+1] {
				mutated = true
			}
		}

		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		next := level[:0:0]

		for i := 0; i < len(level); i += 2 {
			copy(buf[:chainhash.HashSize], level[i][:])
			copy(buf[chainhash.HashSize:], level[i+1][:])
			next = append(next, chainhash.DoubleHashH(buf[:]))
		}

		level = next
	}

	return level[0], mutated
}
