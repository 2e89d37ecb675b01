package feeestimator

import (
	"encoding/binary"
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util/test"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEstimator(t *testing.T, adjust ...func(*settings.Settings)) *Estimator {
	t.Helper()

	tSettings := test.CreateBaseTestSettings()
	for _, fn := range adjust {
		fn(tSettings)
	}

	e, err := New(ulogger.TestLogger{}, tSettings)
	require.NoError(t, err)

	return e
}

func hashes(from, to int) []chainhash.Hash {
	result := make([]chainhash.Hash, 0, to-from)

	for i := from; i < to; i++ {
		var h chainhash.Hash
		binary.LittleEndian.PutUint64(h[:], uint64(i)) //nolint:gosec // test indexes are positive
		result = append(result, h)
	}

	return result
}

func TestNewInvalidSettings(t *testing.T) {
	tests := map[string]func(*settings.Settings){
		"max target":   func(s *settings.Settings) { s.FeeEstimator.MaxTarget = 0 },
		"decay":        func(s *settings.Settings) { s.FeeEstimator.Decay = 1.5 },
		"threshold":    func(s *settings.Settings) { s.FeeEstimator.SuccessThreshold = 0 },
		"spacing":      func(s *settings.Settings) { s.FeeEstimator.BucketSpacing = 1 },
		"bucket range": func(s *settings.Settings) { s.FeeEstimator.MaxBucketFeeRate = 0.5 },
	}

	for name, adjust := range tests {
		t.Run(name, func(t *testing.T) {
			tSettings := test.CreateBaseTestSettings()
			adjust(tSettings)

			_, err := New(ulogger.TestLogger{}, tSettings)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfiguration))
		})
	}
}

func TestEstimateInsufficientData(t *testing.T) {
	e := newEstimator(t)

	_, err := e.EstimateFeeRate(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
	assert.Equal(t, errors.KindMissing, errors.KindOf(err))

	// tracked but never confirmed is still no data
	for _, h := range hashes(0, 10) {
		e.TrackTransaction(h, 5000, 100)
	}

	_, err = e.EstimateFeeRate(1)
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
}

func TestEstimateTargetOutOfRange(t *testing.T) {
	e := newEstimator(t)

	_, err := e.EstimateFeeRate(0)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	_, err = e.EstimateFeeRate(e.maxTarget + 1)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestEstimateSeparatesFastAndSlowBuckets(t *testing.T) {
	e := newEstimator(t)

	fast := hashes(0, 20)
	slow := hashes(20, 40)

	for _, h := range fast {
		e.TrackTransaction(h, 50_000, 100)
	}

	for _, h := range slow {
		e.TrackTransaction(h, 1_000, 100)
	}

	e.ProcessBlock(101, fast)

	for height := uint32(102); height <= 105; height++ {
		e.ProcessBlock(height, nil)
	}

	// the cheap transactions leave the pool without confirming
	for _, h := range slow {
		e.RemoveTransaction(h)
	}

	for _, target := range []int{1, 3, 5} {
		rate, err := e.EstimateFeeRate(target)
		require.NoError(t, err, "target %d", target)
		assert.InDelta(t, 50_000, float64(rate), 1e-6, "target %d", target)
	}

	assert.Equal(t, 0, e.Stats().Tracked)
}

func TestEstimateUsesCheapestPassingBucket(t *testing.T) {
	e := newEstimator(t)

	cheap := hashes(0, 20)
	dear := hashes(20, 40)

	for _, h := range cheap {
		e.TrackTransaction(h, 2_000, 100)
	}

	for _, h := range dear {
		e.TrackTransaction(h, 80_000, 100)
	}

	e.ProcessBlock(101, append(append([]chainhash.Hash{}, cheap...), dear...))

	rate, err := e.EstimateFeeRate(2)
	require.NoError(t, err)
	assert.InDelta(t, 2_000, float64(rate), 1e-6)
	assert.InDelta(t, 2, rate.SatsPerByte(), 1e-9)
}

func TestEstimatePendingTransactionsCountAsFailures(t *testing.T) {
	e := newEstimator(t)

	confirmedTx := hashes(0, 5)
	stuck := hashes(5, 40)

	for _, h := range append(append([]chainhash.Hash{}, confirmedTx...), stuck...) {
		e.TrackTransaction(h, 3_000, 100)
	}

	e.ProcessBlock(101, confirmedTx)

	for height := uint32(102); height <= 110; height++ {
		e.ProcessBlock(height, nil)
	}

	_, err := e.EstimateFeeRate(2)
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
}

func TestProcessBlockOldHeights(t *testing.T) {
	t.Run("replayed block untracks its transactions", func(t *testing.T) {
		e := newEstimator(t)

		tx := hashes(0, 1)
		e.TrackTransaction(tx[0], 10_000, 100)

		e.ProcessBlock(101, nil)
		e.ProcessBlock(101, tx)

		assert.Equal(t, 0, e.Stats().Tracked)
		assert.Equal(t, uint32(101), e.Stats().BestHeight)

		// nothing was recorded for the replayed confirmation
		_, err := e.EstimateFeeRate(1)
		assert.True(t, errors.Is(err, errors.ErrInsufficientData))
	})

	t.Run("reconnected after a reorganization", func(t *testing.T) {
		e := newEstimator(t)

		tx := hashes(0, 1)
		e.TrackTransaction(tx[0], 5_000, 8)

		e.ProcessBlock(9, nil)
		e.ProcessBlock(10, nil)

		// the fork is reconnected at a height already seen
		e.ProcessBlock(9, tx)
		require.Equal(t, 0, e.Stats().Tracked)

		for height := uint32(10); height < 60; height++ {
			e.ProcessBlock(height, nil)
		}

		assert.Equal(t, 0, e.Stats().Tracked)
		assert.Equal(t, uint32(59), e.Stats().BestHeight)
	})
}

func TestReset(t *testing.T) {
	e := newEstimator(t)

	txs := hashes(0, 5)
	for _, h := range txs {
		e.TrackTransaction(h, 10_000, 100)
	}

	e.ProcessBlock(101, txs)

	_, err := e.EstimateFeeRate(1)
	require.NoError(t, err)

	e.Reset()

	_, err = e.EstimateFeeRate(1)
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
	assert.Equal(t, uint32(0), e.Stats().BestHeight)
}
