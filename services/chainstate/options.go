package chainstate

import "time"

type Option func(*Chainstate)

// WithVerdictHandler reports every verdict, e.g. to a peer misbehaviour tracker.
func WithVerdictHandler(handler VerdictHandler) Option {
	return func(c *Chainstate) {
		c.verdictHandler = handler
	}
}

// WithClock replaces the wall clock used by the block index and the mempool.
func WithClock(now func() time.Time) Option {
	return func(c *Chainstate) {
		c.now = now
	}
}
