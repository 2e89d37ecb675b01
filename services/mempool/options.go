package mempool

import "time"

type Option func(*Mempool)

// WithFeeTracker reports pool entries and removals to a fee estimator.
func WithFeeTracker(tracker FeeTracker) Option {
	return func(m *Mempool) {
		m.feeTracker = tracker
	}
}

// WithClock replaces the wall clock used for entry times, expiry and lock time checks.
func WithClock(now func() time.Time) Option {
	return func(m *Mempool) {
		m.now = now
	}
}
