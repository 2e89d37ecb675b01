// Package blockchain keeps the in-memory block index: every header the node
// has accepted, arranged as a tree rooted at genesis, with cumulative chain
// work and a validity status per block.
//
// Entries live in an append-only arena and refer to each other by Handle.
// Entries never change once added; the mutable status of all entries is kept
// in a copy-on-write table so that readers holding a Snapshot never observe a
// partially applied change.
package blockchain

import (
	"math/big"
	"sync"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"go.uber.org/atomic"
)

// Handle identifies an entry in the arena.
type Handle int32

// NoHandle is the parent of genesis.
const NoHandle Handle = -1

// Entry is an immutable block index entry.
type Entry struct {
	Hash      chainhash.Hash
	Header    *model.BlockHeader
	Handle    Handle
	Parent    Handle
	Height    uint32
	ChainWork *big.Int
	// Seen orders entries by arrival and breaks chain work ties.
	Seen uint64
}

type Index struct {
	mu       sync.RWMutex
	logger   ulogger.Logger
	params   *chaincfg.Params
	entries  []*Entry
	byHash   map[chainhash.Hash]Handle
	children [][]Handle
	status   *atomic.Pointer[[]Status]
	dirty    map[Handle]struct{}

	maxFutureBlockTime time.Duration
	now                func() time.Time
}

type Option func(*Index)

// WithMaxFutureBlockTime sets how far a header timestamp may be ahead of the local clock.
func WithMaxFutureBlockTime(d time.Duration) Option {
	return func(idx *Index) {
		idx.maxFutureBlockTime = d
	}
}

// WithClock replaces the wall clock used for the future block time check.
func WithClock(now func() time.Time) Option {
	return func(idx *Index) {
		idx.now = now
	}
}

// New creates an index holding only the genesis block of params. Genesis is
// chain-valid with data by definition.
func New(logger ulogger.Logger, params *chaincfg.Params, opts ...Option) (*Index, error) {
	genesis, err := model.GenesisBlock(params)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, 1024)

	idx := &Index{
		logger:             logger,
		params:             params,
		byHash:             make(map[chainhash.Hash]Handle),
		status:             atomic.NewPointer(&statuses),
		dirty:              make(map[Handle]struct{}),
		maxFutureBlockTime: 2 * time.Hour,
		now:                time.Now,
	}

	for _, opt := range opts {
		opt(idx)
	}

	idx.insert(genesis.Header, nil, Status{Level: ValidityChain, HaveData: true})

	return idx, nil
}

func (idx *Index) Params() *chaincfg.Params {
	return idx.params
}

// insert appends a new entry. The caller holds mu for writing.
func (idx *Index) insert(header *model.BlockHeader, parent *Entry, status Status) *Entry {
	entry := &Entry{
		Hash:   *header.Hash(),
		Header: header,
		Handle: Handle(len(idx.entries)), //nolint:gosec // the arena never holds 2^31 entries
		Parent: NoHandle,
		Seen:   uint64(len(idx.entries)),
	}

	work := util.CalculateWork(header.Bits.Uint32())

	if parent != nil {
		entry.Parent = parent.Handle
		entry.Height = parent.Height + 1
		entry.ChainWork = work.Add(work, parent.ChainWork)
	} else {
		entry.ChainWork = work
	}

	idx.entries = append(idx.entries, entry)
	idx.children = append(idx.children, nil)
	idx.byHash[entry.Hash] = entry.Handle

	if parent != nil {
		idx.children[parent.Handle] = append(idx.children[parent.Handle], entry.Handle)
	}

	current := *idx.status.Load()
	next := make([]Status, len(current), len(current)+1)
	copy(next, current)
	next = append(next, status)
	idx.status.Store(&next)

	idx.dirty[entry.Handle] = struct{}{}

	return entry
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.entries)
}

func (idx *Index) Genesis() *Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.entries[0]
}

// Get returns the entry for hash, or nil when the hash is unknown.
func (idx *Index) Get(hash *chainhash.Hash) *Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	handle, ok := idx.byHash[*hash]
	if !ok {
		return nil
	}

	return idx.entries[handle]
}

func (idx *Index) Entry(handle Handle) *Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.entry(handle)
}

func (idx *Index) entry(handle Handle) *Entry {
	if handle < 0 || int(handle) >= len(idx.entries) {
		return nil
	}

	return idx.entries[handle]
}

// Parent returns the parent entry, or nil for genesis.
func (idx *Index) Parent(entry *Entry) *Entry {
	return idx.Entry(entry.Parent)
}

// Children returns the direct children of entry in arrival order.
func (idx *Index) Children(entry *Entry) []*Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	result := make([]*Entry, 0, len(idx.children[entry.Handle]))
	for _, h := range idx.children[entry.Handle] {
		result = append(result, idx.entries[h])
	}

	return result
}

func (idx *Index) Status(entry *Entry) Status {
	return (*idx.status.Load())[entry.Handle]
}

// Snapshot is an immutable view of the status table.
type Snapshot struct {
	statuses []Status
}

func (idx *Index) Snapshot() Snapshot {
	return Snapshot{statuses: *idx.status.Load()}
}

func (s Snapshot) Status(entry *Entry) Status {
	if int(entry.Handle) >= len(s.statuses) {
		return Status{}
	}

	return s.statuses[entry.Handle]
}

// updateStatus publishes a new status table with fn applied to each handle.
// The caller holds mu for writing.
func (idx *Index) updateStatus(handles []Handle, fn func(Status) Status) {
	if len(handles) == 0 {
		return
	}

	current := *idx.status.Load()
	next := make([]Status, len(current), cap(current))
	copy(next, current)

	for _, h := range handles {
		updated := fn(next[h])
		if updated == next[h] {
			continue
		}

		updated.Persisted = false
		next[h] = updated
		idx.dirty[h] = struct{}{}
	}

	idx.status.Store(&next)
}

// SetStatus applies fn to the status of a single entry.
func (idx *Index) SetStatus(entry *Entry, fn func(Status) Status) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.updateStatus([]Handle{entry.Handle}, fn)
}

// RaiseValidity moves the validity level of entry up to level.
func (idx *Index) RaiseValidity(entry *Entry, level Validity) {
	idx.SetStatus(entry, func(s Status) Status {
		return s.raise(level)
	})
}

// Ancestor returns the ancestor of entry at height, or entry itself when
// height equals its height. It returns nil for a height above the entry.
func (idx *Index) Ancestor(entry *Entry, height uint32) *Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.ancestor(entry, height)
}

func (idx *Index) ancestor(entry *Entry, height uint32) *Entry {
	if height > entry.Height {
		return nil
	}

	for entry != nil && entry.Height > height {
		entry = idx.entry(entry.Parent)
	}

	return entry
}

// FindFork returns the last common ancestor of a and b.
func (idx *Index) FindFork(a, b *Entry) *Entry {
	if a.Height > b.Height {
		a = idx.Ancestor(a, b.Height)
	} else if b.Height > a.Height {
		b = idx.Ancestor(b, a.Height)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for a != nil && b != nil && a.Handle != b.Handle {
		a = idx.entry(a.Parent)
		b = idx.entry(b.Parent)
	}

	return a
}

// IsAncestor reports whether ancestor is on the path from genesis to entry.
func (idx *Index) IsAncestor(ancestor, entry *Entry) bool {
	found := idx.Ancestor(entry, ancestor.Height)

	return found != nil && found.Handle == ancestor.Handle
}

// MedianTimePast returns the median timestamp of entry and its 10 predecessors.
func (idx *Index) MedianTimePast(entry *Entry) int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.medianTimePast(entry)
}

// Locator returns block hashes from entry back to genesis, dense for the
// first ten and exponentially sparser after that.
func (idx *Index) Locator(entry *Entry) []chainhash.Hash {
	locator := make([]chainhash.Hash, 0, 32)
	step := uint32(1)

	for entry != nil {
		locator = append(locator, entry.Hash)

		if entry.Height == 0 {
			break
		}

		height := uint32(0)
		if entry.Height > step {
			height = entry.Height - step
		}

		entry = idx.Ancestor(entry, height)

		if len(locator) > 10 {
			step *= 2
		}
	}

	return locator
}

// better reports whether a is a better tip than b: more work, or equal work
// and seen first.
func better(a, b *Entry) bool {
	if c := a.ChainWork.Cmp(b.ChainWork); c != 0 {
		return c > 0
	}

	return a.Seen < b.Seen
}

// GetBestTip returns the chain-valid entry with the most work. Ties go to the
// entry seen first.
func (idx *Index) GetBestTip() *Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	statuses := *idx.status.Load()

	var best *Entry

	for _, entry := range idx.entries {
		if statuses[entry.Handle].Validity() != ValidityChain {
			continue
		}

		if best == nil || better(entry, best) {
			best = entry
		}
	}

	return best
}

// BestCandidate returns the non-failed entry with the most work that could
// become the active tip. The active tip is returned unless another entry has
// strictly more work, so that an equal-work competitor seen later never
// triggers a reorg.
func (idx *Index) BestCandidate(activeTip *Entry) *Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	statuses := *idx.status.Load()
	best := activeTip

	for _, entry := range idx.entries {
		if statuses[entry.Handle].Failed || statuses[entry.Handle].Level < ValidityHeader {
			continue
		}

		if best == nil || better(entry, best) {
			best = entry
		}
	}

	if activeTip != nil && best.ChainWork.Cmp(activeTip.ChainWork) == 0 {
		return activeTip
	}

	return best
}

// BestConnectable returns the non-failed entry with the most work that can
// be connected from local data: every block between it and the active chain
// has its body stored and passed the context-free checks. Ties keep
// activeTip as in BestCandidate. A failed activeTip is never returned.
func (idx *Index) BestConnectable(activeTip *Entry) *Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	statuses := *idx.status.Load()

	onActive := make([]bool, len(idx.entries))
	for e := activeTip; e != nil; e = idx.entry(e.Parent) {
		onActive[e.Handle] = true
	}

	// parents always precede their children in the arena
	connectable := make([]bool, len(idx.entries))

	var best *Entry

	for _, entry := range idx.entries {
		status := statuses[entry.Handle]

		if onActive[entry.Handle] {
			connectable[entry.Handle] = true
		} else {
			connectable[entry.Handle] = entry.Parent != NoHandle && connectable[entry.Parent] &&
				status.HaveData && status.Level >= ValidityTree
		}

		if !connectable[entry.Handle] || status.Failed {
			continue
		}

		if best == nil || better(entry, best) {
			best = entry
		}
	}

	if activeTip != nil && best != nil && !statuses[activeTip.Handle].Failed && best.ChainWork.Cmp(activeTip.ChainWork) == 0 {
		return activeTip
	}

	return best
}

// Tips returns every entry without children.
func (idx *Index) Tips() []*Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var tips []*Entry

	for handle, children := range idx.children {
		if len(children) == 0 {
			tips = append(tips, idx.entries[handle])
		}
	}

	return tips
}

// descendants returns handle and every handle below it. The caller holds mu.
func (idx *Index) descendants(handle Handle) []Handle {
	result := []Handle{handle}

	for i := 0; i < len(result); i++ {
		result = append(result, idx.children[result[i]]...)
	}

	return result
}

// MarkFailed marks the block and all of its descendants failed. Genesis can
// never be failed.
func (idx *Index) MarkFailed(hash *chainhash.Hash) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	handle, ok := idx.byHash[*hash]
	if !ok {
		return errors.NewBlockNotFoundError("block %s is not in the index", hash)
	}

	if handle == 0 {
		return errors.NewInvalidArgumentError("genesis block cannot be marked failed")
	}

	handles := idx.descendants(handle)

	idx.updateStatus(handles, func(s Status) Status {
		s.Failed = true
		return s
	})

	idx.logger.Warnf("[BlockIndex][%s] marked failed with %d descendants", hash, len(handles)-1)

	return nil
}

// ClearFailed clears the failed flag of the block, its descendants and its
// ancestors.
func (idx *Index) ClearFailed(hash *chainhash.Hash) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	handle, ok := idx.byHash[*hash]
	if !ok {
		return errors.NewBlockNotFoundError("block %s is not in the index", hash)
	}

	handles := idx.descendants(handle)
	for e := idx.entry(idx.entries[handle].Parent); e != nil; e = idx.entry(e.Parent) {
		handles = append(handles, e.Handle)
	}

	idx.updateStatus(handles, func(s Status) Status {
		s.Failed = false
		return s
	})

	return nil
}

// AddHeader validates header against its parent and adds it to the index.
//
// A header that is already indexed returns its entry together with a
// BlockExists error, or a duplicate-invalid error when it is known to be
// failed. A header whose parent is unknown returns a BlockParentNotFound
// error. Headers failing a check are not added.
func (idx *Index) AddHeader(header *model.BlockHeader) (*Entry, error) {
	hash := header.Hash()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if handle, ok := idx.byHash[*hash]; ok {
		entry := idx.entries[handle]

		if (*idx.status.Load())[handle].Failed {
			return entry, errors.New(errors.ERR_BLOCK_DUPLICATE_INVALID, "block %s is known to be invalid", hash)
		}

		return entry, errors.NewBlockExistsError("block %s already in the index", hash)
	}

	parentHandle, ok := idx.byHash[*header.HashPrevBlock]
	if !ok {
		return nil, errors.NewBlockParentNotFoundError("parent %s of block %s not found", header.HashPrevBlock, hash)
	}

	parent := idx.entries[parentHandle]

	if (*idx.status.Load())[parentHandle].Failed {
		return nil, errors.NewBlockParentInvalidError("parent %s of block %s is invalid", header.HashPrevBlock, hash)
	}

	if err := idx.checkHeader(header, parent); err != nil {
		return nil, err
	}

	entry := idx.insert(header, parent, Status{Level: ValidityHeader})

	idx.logger.Debugf("[BlockIndex][%s] added header at height %d", hash, entry.Height)

	return entry, nil
}

// CheckProofOfWork checks that the header hash meets its own target and that
// the target is within the network limit.
func CheckProofOfWork(header *model.BlockHeader, params *chaincfg.Params) error {
	target := util.CalculateTarget(header.Bits.Uint32())
	if target.Sign() <= 0 || target.Cmp(params.PowLimit) > 0 {
		return errors.New(errors.ERR_BLOCK_BAD_DIFFBITS, "block %s target %s out of range", header.Hash(), header.Bits)
	}

	if util.HashToBig(header.Hash()).Cmp(target) > 0 {
		return errors.New(errors.ERR_BLOCK_HIGH_HASH, "block %s hash is above target %s", header.Hash(), header.Bits)
	}

	return nil
}

func (idx *Index) checkHeader(header *model.BlockHeader, parent *Entry) error {
	if err := CheckProofOfWork(header, idx.params); err != nil {
		return err
	}

	if required := idx.nextWorkRequired(parent, header.Timestamp); header.Bits.Uint32() != required {
		return errors.New(errors.ERR_BLOCK_BAD_DIFFBITS, "block %s has bits %08x, expected %08x", header.Hash(), header.Bits.Uint32(), required)
	}

	if mtp := idx.medianTimePast(parent); int64(header.Timestamp) <= mtp {
		return errors.New(errors.ERR_BLOCK_TIME_TOO_OLD, "block %s timestamp %d is not after median time past %d", header.Hash(), header.Timestamp, mtp)
	}

	if maxTime := idx.now().Add(idx.maxFutureBlockTime).Unix(); int64(header.Timestamp) > maxTime {
		return errors.New(errors.ERR_BLOCK_TIME_TOO_NEW, "block %s timestamp %d is too far in the future", header.Hash(), header.Timestamp)
	}

	return nil
}

// medianTimePast is MedianTimePast for callers already holding mu.
func (idx *Index) medianTimePast(entry *Entry) int64 {
	timestamps := make([]int64, 0, util.MedianTimeBlocks)

	for e := entry; e != nil && len(timestamps) < util.MedianTimeBlocks; e = idx.entry(e.Parent) {
		timestamps = append(timestamps, int64(e.Header.Timestamp))
	}

	mtp, _ := util.CalcPastMedianTime(timestamps)

	return mtp
}
