/*
Package feeestimator estimates the fee rate a transaction needs to confirm
within a number of blocks.

Transactions are tracked from the moment they enter the mempool. When a block
confirms a tracked transaction, the number of blocks it waited is recorded
against its fee rate bucket; when a tracked transaction leaves the mempool
unconfirmed, it counts as a failure for every target it outlived. All counts
decay exponentially per block, so recent blocks dominate.

An estimate for target N is the average fee rate of the cheapest group of
buckets, scanning down from the most expensive, in which at least the success
threshold of transactions confirmed within N blocks.
*/
package feeestimator

import (
	"math"
	"sort"
	"sync"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// FeeRate is a fee rate in satoshis per 1000 bytes.
type FeeRate float64

// SatsPerByte converts the rate to satoshis per byte.
func (f FeeRate) SatsPerByte() float64 {
	return float64(f) / 1000
}

type trackedTx struct {
	height  uint32
	bucket  int
	feeRate float64
}

type Estimator struct {
	logger    ulogger.Logger
	maxTarget int
	decay     float64
	threshold float64
	// sufficient is the decayed number of transactions a bucket group needs before it is judged
	sufficient float64

	mu      sync.Mutex
	buckets []float64 // upper bounds, the last one is +Inf
	txCount []float64
	feeSum  []float64
	// confirmed[t][b] counts transactions of bucket b confirmed within t+1 blocks
	confirmed [][]float64
	// failed[t][b] counts transactions of bucket b that left unconfirmed after more than t+1 blocks
	failed      [][]float64
	unconfirmed map[chainhash.Hash]trackedTx
	bestHeight  uint32
}

func New(logger ulogger.Logger, tSettings *settings.Settings) (*Estimator, error) {
	initPrometheusMetrics()

	cfg := tSettings.FeeEstimator

	if cfg.MaxTarget < 1 {
		return nil, errors.NewConfigurationError("feeestimator_maxTarget must be at least 1, got %d", cfg.MaxTarget)
	}

	if cfg.Decay <= 0 || cfg.Decay > 1 {
		return nil, errors.NewConfigurationError("feeestimator_decay must be in (0, 1], got %f", cfg.Decay)
	}

	if cfg.SuccessThreshold <= 0 || cfg.SuccessThreshold > 1 {
		return nil, errors.NewConfigurationError("feeestimator_successThreshold must be in (0, 1], got %f", cfg.SuccessThreshold)
	}

	if cfg.BucketSpacing <= 1 || cfg.MinBucketFeeRate <= 0 || cfg.MaxBucketFeeRate < cfg.MinBucketFeeRate {
		return nil, errors.NewConfigurationError("invalid fee rate buckets: min %f, max %f, spacing %f", cfg.MinBucketFeeRate, cfg.MaxBucketFeeRate, cfg.BucketSpacing)
	}

	var buckets []float64
	for bound := cfg.MinBucketFeeRate; bound <= cfg.MaxBucketFeeRate; bound *= cfg.BucketSpacing {
		buckets = append(buckets, bound)
	}

	buckets = append(buckets, math.Inf(1))

	e := &Estimator{
		logger:      logger,
		maxTarget:   cfg.MaxTarget,
		decay:       cfg.Decay,
		threshold:   cfg.SuccessThreshold,
		sufficient:  cfg.SufficientTxs,
		buckets:     buckets,
		txCount:     make([]float64, len(buckets)),
		feeSum:      make([]float64, len(buckets)),
		confirmed:   make([][]float64, cfg.MaxTarget),
		failed:      make([][]float64, cfg.MaxTarget),
		unconfirmed: make(map[chainhash.Hash]trackedTx),
	}

	for t := 0; t < cfg.MaxTarget; t++ {
		e.confirmed[t] = make([]float64, len(buckets))
		e.failed[t] = make([]float64, len(buckets))
	}

	return e, nil
}

func (e *Estimator) bucketIndex(feeRate float64) int {
	return sort.SearchFloat64s(e.buckets, feeRate)
}

// TrackTransaction starts tracking a transaction that entered the mempool
// while the tip was at height.
func (e *Estimator) TrackTransaction(txID chainhash.Hash, feeRate float64, height uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.unconfirmed[txID]; exists {
		return
	}

	e.unconfirmed[txID] = trackedTx{
		height:  height,
		bucket:  e.bucketIndex(feeRate),
		feeRate: feeRate,
	}

	prometheusFeeEstimatorTracked.Set(float64(len(e.unconfirmed)))
}

// RemoveTransaction stops tracking a transaction that left the mempool without
// being confirmed. It counts as a failure for every target it outlived.
func (e *Estimator) RemoveTransaction(txID chainhash.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, ok := e.unconfirmed[txID]
	if !ok {
		return
	}

	delete(e.unconfirmed, txID)

	if e.bestHeight > tx.height {
		waited := min(int(e.bestHeight-tx.height), e.maxTarget)

		for t := 0; t < waited; t++ {
			e.failed[t][tx.bucket]++
		}
	}

	prometheusFeeEstimatorTracked.Set(float64(len(e.unconfirmed)))
}

// ProcessBlock records the tracked transactions confirmed by the block at
// height. Blocks at or below the highest height seen, as reconnected during a
// reorganization, only stop tracking their transactions and leave the
// statistics untouched.
func (e *Estimator) ProcessBlock(height uint32, txIDs []chainhash.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if height <= e.bestHeight {
		dropped := 0

		for _, txID := range txIDs {
			if _, ok := e.unconfirmed[txID]; ok {
				delete(e.unconfirmed, txID)
				dropped++
			}
		}

		prometheusFeeEstimatorTracked.Set(float64(len(e.unconfirmed)))

		e.logger.Debugf("[FeeEstimator] block at height %d is not above best %d, untracked %d transactions", height, e.bestHeight, dropped)

		return
	}

	e.bestHeight = height

	for b := range e.buckets {
		e.txCount[b] *= e.decay
		e.feeSum[b] *= e.decay

		for t := 0; t < e.maxTarget; t++ {
			e.confirmed[t][b] *= e.decay
			e.failed[t][b] *= e.decay
		}
	}

	confirmed := 0

	for _, txID := range txIDs {
		tx, ok := e.unconfirmed[txID]
		if !ok {
			continue
		}

		delete(e.unconfirmed, txID)

		blocks := 1
		if height > tx.height {
			blocks = int(height - tx.height)
		}

		e.txCount[tx.bucket]++
		e.feeSum[tx.bucket] += tx.feeRate

		for t := blocks - 1; t < e.maxTarget; t++ {
			e.confirmed[t][tx.bucket]++
		}

		confirmed++
	}

	prometheusFeeEstimatorConfirmed.Add(float64(confirmed))
	prometheusFeeEstimatorTracked.Set(float64(len(e.unconfirmed)))

	e.logger.Debugf("[FeeEstimator] block at height %d confirmed %d tracked transactions", height, confirmed)
}

// EstimateFeeRate returns the fee rate needed to confirm within target blocks.
func (e *Estimator) EstimateFeeRate(target int) (FeeRate, error) {
	if target < 1 || target > e.maxTarget {
		return 0, errors.NewInvalidArgumentError("confirmation target %d out of range 1..%d", target, e.maxTarget)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := target - 1

	// transactions still waiting longer than target count as failures too
	pending := make([]float64, len(e.buckets))

	for _, tx := range e.unconfirmed {
		if e.bestHeight > tx.height && int(e.bestHeight-tx.height) > target {
			pending[tx.bucket]++
		}
	}

	var (
		found          bool
		best           float64
		groupConfirmed float64
		groupFailed    float64
		groupTx        float64
		groupFee       float64
	)

	for b := len(e.buckets) - 1; b >= 0; b-- {
		groupConfirmed += e.confirmed[t][b]
		groupFailed += e.failed[t][b] + pending[b]
		groupTx += e.txCount[b]
		groupFee += e.feeSum[b]

		if groupTx+groupFailed < e.sufficient {
			continue
		}

		if groupConfirmed/(groupTx+groupFailed) < e.threshold {
			break
		}

		if groupTx > 0 {
			found = true
			best = groupFee / groupTx
		}

		groupConfirmed, groupFailed, groupTx, groupFee = 0, 0, 0, 0
	}

	if !found {
		return 0, errors.NewInsufficientDataError("not enough confirmed transactions to estimate a fee rate for %d blocks", target)
	}

	return FeeRate(best), nil
}

// Stats describes what the estimator is tracking.
type Stats struct {
	Tracked    int
	BestHeight uint32
	Buckets    int
	MaxTarget  int
}

func (e *Estimator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		Tracked:    len(e.unconfirmed),
		BestHeight: e.bestHeight,
		Buckets:    len(e.buckets),
		MaxTarget:  e.maxTarget,
	}
}

// Reset forgets all history, as after a reindex.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for b := range e.buckets {
		e.txCount[b] = 0
		e.feeSum[b] = 0

		for t := 0; t < e.maxTarget; t++ {
			e.confirmed[t][b] = 0
			e.failed[t][b] = 0
		}
	}

	e.unconfirmed = make(map[chainhash.Hash]trackedTx)
	e.bestHeight = 0

	prometheusFeeEstimatorTracked.Set(0)
}
