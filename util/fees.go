package util

import "math/bits"

// FeeRate returns the fee rate in satoshis per 1000 bytes.
func FeeRate(fee uint64, size int) float64 {
	if size <= 0 {
		return 0
	}

	return float64(fee) * 1000 / float64(size)
}

// MinFee returns the fee a transaction of size bytes must pay at satsPerKB.
// A non-zero rate never rounds down to a zero fee.
func MinFee(size int, satsPerKB uint64) uint64 {
	if size <= 0 || satsPerKB == 0 {
		return 0
	}

	fee := satsPerKB * uint64(size) / 1000 //nolint:gosec // size checked above
	if fee == 0 {
		fee = 1
	}

	return fee
}

// CompareFeeRates compares feeA/sizeA with feeB/sizeB without floating point
// and returns -1, 0 or 1.
func CompareFeeRates(feeA uint64, sizeA int, feeB uint64, sizeB int) int {
	lHi, lLo := bits.Mul64(feeA, uint64(sizeB)) //nolint:gosec // sizes are positive
	rHi, rLo := bits.Mul64(feeB, uint64(sizeA)) //nolint:gosec // sizes are positive

	switch {
	case lHi < rHi || (lHi == rHi && lLo < rLo):
		return -1
	case lHi > rHi || (lHi == rHi && lLo > rLo):
		return 1
	default:
		return 0
	}
}
