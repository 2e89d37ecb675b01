package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeeRate(t *testing.T) {
	assert.InDelta(t, 5000.0, FeeRate(1000, 200), 1e-9)
	assert.InDelta(t, 0.0, FeeRate(1000, 0), 1e-9)
}

func TestMinFee(t *testing.T) {
	assert.Equal(t, uint64(250), MinFee(250, 1000))
	assert.Equal(t, uint64(1), MinFee(10, 50))
	assert.Equal(t, uint64(0), MinFee(250, 0))
	assert.Equal(t, uint64(0), MinFee(0, 1000))
}

func TestCompareFeeRates(t *testing.T) {
	assert.Equal(t, 0, CompareFeeRates(100, 100, 200, 200))
	assert.Equal(t, 1, CompareFeeRates(101, 100, 200, 200))
	assert.Equal(t, -1, CompareFeeRates(99, 100, 200, 200))

	// products beyond 64 bits
	assert.Equal(t, 1, CompareFeeRates(math.MaxUint64, 3, math.MaxUint64-1, 3))
}
