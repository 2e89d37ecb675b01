package model

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"github.com/bsv-blockchain/chainstate/util"
)

// NBit is the compact difficulty target of a block header, stored in display
// (big-endian) byte order.
type NBit [4]byte

var maxTarget = util.CalculateTarget(0x1d00ffff)

func NewNBitFromUint32(bits uint32) NBit {
	var n NBit

	binary.BigEndian.PutUint32(n[:], bits)

	return n
}

func (n NBit) Uint32() uint32 {
	return binary.BigEndian.Uint32(n[:])
}

func (n NBit) String() string {
	return hex.EncodeToString(n[:])
}

func (n NBit) CalculateTarget() *big.Int {
	return util.CalculateTarget(n.Uint32())
}

// CalculateDifficulty returns the target relative to the difficulty 1 target.
func (n NBit) CalculateDifficulty() *big.Float {
	target := n.CalculateTarget()
	if target.Sign() <= 0 {
		return big.NewFloat(0)
	}

	return new(big.Float).Quo(new(big.Float).SetInt(maxTarget), new(big.Float).SetInt(target))
}
