package mempool

import (
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/cespare/xxhash"
	"github.com/greatroar/blobloom"
)

const recentRejectsFPRate = 1e-6

// recentRejects remembers txids rejected since the last tip change, so that
// relayed copies are dropped without validation. False positives are possible
// and only delay a transaction until the next block.
type recentRejects struct {
	capacity uint64
	filter   *blobloom.Filter
}

func newRecentRejects(capacity uint64) *recentRejects {
	r := &recentRejects{capacity: capacity}
	r.reset()

	return r
}

func (r *recentRejects) add(txID chainhash.Hash) {
	if r.filter != nil {
		r.filter.Add(xxhash.Sum64(txID[:]))
	}
}

func (r *recentRejects) has(txID chainhash.Hash) bool {
	return r.filter != nil && r.filter.Has(xxhash.Sum64(txID[:]))
}

// reset drops every remembered txid. A capacity of 0 disables the filter.
func (r *recentRejects) reset() {
	if r.capacity == 0 {
		r.filter = nil
		return
	}

	r.filter = blobloom.NewOptimized(blobloom.Config{
		Capacity: r.capacity,
		FPRate:   recentRejectsFPRate,
	})
}
