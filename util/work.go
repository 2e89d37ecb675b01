package util

import (
	"math/big"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

// CalculateTarget expands the compact nBits representation into the full
// 256-bit target. A set sign bit yields a negative number, which callers must
// treat as invalid.
func CalculateTarget(bits uint32) *big.Int {
	mantissa := bits & 0x007fffff
	isNegative := bits&0x00800000 != 0
	exponent := uint(bits >> 24)

	var target *big.Int

	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		target = big.NewInt(int64(mantissa))
	} else {
		target = big.NewInt(int64(mantissa))
		target.Lsh(target, 8*(exponent-3))
	}

	if isNegative {
		target = target.Neg(target)
	}

	return target
}

// TargetToBits is the inverse of CalculateTarget.
func TargetToBits(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32

	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// keep the sign bit clear by moving one byte into the exponent
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa //nolint:gosec // exponent fits in a byte for any 256-bit target
	if n.Sign() < 0 {
		compact |= 0x00800000
	}

	return compact
}

// CalculateWork returns the expected number of hashes needed to find a block
// with the given nBits: 2^256 / (target+1).
func CalculateWork(bits uint32) *big.Int {
	target := CalculateTarget(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}

	denominator := new(big.Int).Add(target, big.NewInt(1))

	return new(big.Int).Div(oneLsh256, denominator)
}

// HashToBig interprets a block hash as the little-endian 256-bit number that
// is compared against the target.
func HashToBig(hash *chainhash.Hash) *big.Int {
	buf := *hash
	for i := 0; i < chainhash.HashSize/2; i++ {
		buf[i], buf[chainhash.HashSize-1-i] = buf[chainhash.HashSize-1-i], buf[i]
	}

	return new(big.Int).SetBytes(buf[:])
}
