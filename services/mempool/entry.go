package mempool

import (
	"bytes"
	"time"

	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// Handle identifies an entry in the mempool arena. Handles of removed
// entries are reused.
type Handle int32

// RemovalReason says why a transaction left the mempool.
type RemovalReason int

const (
	// ReasonBlock means the transaction was included in a connected block.
	ReasonBlock RemovalReason = iota
	// ReasonConflict means a connected block spent one of its inputs, or an
	// input of one of its ancestors.
	ReasonConflict
	// ReasonReplaced means a replacement transaction was accepted.
	ReasonReplaced
	// ReasonSizeLimit means the transaction was in the lowest fee rate package
	// while the pool was over its size cap.
	ReasonSizeLimit
	// ReasonExpiry means the transaction was older than mempool_expiry.
	ReasonExpiry
	// ReasonReorg means the transaction became invalid at the new tip.
	ReasonReorg
)

func (r RemovalReason) String() string {
	switch r {
	case ReasonBlock:
		return "block"
	case ReasonConflict:
		return "conflict"
	case ReasonReplaced:
		return "replaced"
	case ReasonSizeLimit:
		return "sizelimit"
	case ReasonExpiry:
		return "expiry"
	case ReasonReorg:
		return "reorg"
	default:
		return "unknown"
	}
}

// TxEntry is a transaction in the mempool. The ancestor and descendant
// aggregates include the entry itself.
type TxEntry struct {
	Tx             *bt.Tx
	TxID           chainhash.Hash
	Fee            uint64
	Size           int
	Time           time.Time
	Height         uint32
	SpendsCoinbase bool
	SigOps         int64

	AncestorCount   int
	AncestorSize    int
	AncestorFees    uint64
	DescendantCount int
	DescendantSize  int
	DescendantFees  uint64

	handle    Handle
	parents   map[Handle]struct{}
	children  map[Handle]struct{}
	heapIndex int
}

// FeeRate is the fee of the transaction alone, in satoshis per 1000 bytes.
func (e *TxEntry) FeeRate() float64 {
	return util.FeeRate(e.Fee, e.Size)
}

// AncestorFeeRate is the fee rate of the entry together with its unconfirmed ancestors.
func (e *TxEntry) AncestorFeeRate() float64 {
	return util.FeeRate(e.AncestorFees, e.AncestorSize)
}

// clone returns a copy safe to hand out of the lock, without graph links.
func (e *TxEntry) clone() *TxEntry {
	c := *e
	c.parents = nil
	c.children = nil

	return &c
}

// lessFeeRate orders entries by ascending fee rate, breaking ties by txid.
func lessFeeRate(a, b *TxEntry) bool {
	if c := util.CompareFeeRates(a.Fee, a.Size, b.Fee, b.Size); c != 0 {
		return c < 0
	}

	return bytes.Compare(a.TxID[:], b.TxID[:]) < 0
}

// lessAncestorFeeRate orders entries by ascending ancestor fee rate, breaking
// ties by txid.
func lessAncestorFeeRate(a, b *TxEntry) bool {
	if c := util.CompareFeeRates(a.AncestorFees, a.AncestorSize, b.AncestorFees, b.AncestorSize); c != 0 {
		return c < 0
	}

	return bytes.Compare(a.TxID[:], b.TxID[:]) < 0
}

// evictionHeap is a min-heap of entries keyed by ancestor fee rate. Entries
// record their position so that aggregate changes can be fixed in place.
type evictionHeap []*TxEntry

func (h evictionHeap) Len() int { return len(h) }

func (h evictionHeap) Less(i, j int) bool {
	return lessAncestorFeeRate(h[i], h[j])
}

func (h evictionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *evictionHeap) Push(x interface{}) {
	entry := x.(*TxEntry)
	entry.heapIndex = len(*h)
	*h = append(*h, entry)
}

func (h *evictionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.heapIndex = -1
	*h = old[:n-1]

	return entry
}
