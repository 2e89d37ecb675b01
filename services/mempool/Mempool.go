/*
Package mempool holds the pool of unconfirmed transactions.

Every accepted transaction spends outputs that are either in the UTXO set at
the active tip or created by another pool transaction, and no two pool
transactions spend the same outpoint. Each entry carries the count, size and
fees of its unconfirmed ancestors and descendants; these aggregates drive the
package limits and the size cap eviction, which always removes the package
with the lowest ancestor fee rate.

Replacement of a pool transaction by a conflicting one is governed by the
mempool_rbfPolicy setting (optin, full or disabled). Transactions with missing
inputs are kept in an orphan pool and retried when a parent arrives.
*/
package mempool

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/chainstate/util/tracing"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

var tracer = tracing.Tracer("mempool")

// RBFPolicy selects when a conflicting transaction may replace pool transactions.
type RBFPolicy string

const (
	// RBFOptIn allows replacing transactions that signal replaceability
	// (BIP125), directly or through an unconfirmed ancestor.
	RBFOptIn RBFPolicy = "optin"
	// RBFFull allows replacing any transaction.
	RBFFull RBFPolicy = "full"
	// RBFDisabled rejects every conflict.
	RBFDisabled RBFPolicy = "disabled"
)

// FeeTracker is told about transactions entering and leaving the pool for
// reasons other than confirmation.
type FeeTracker interface {
	TrackTransaction(txID chainhash.Hash, feeRate float64, height uint32)
	RemoveTransaction(txID chainhash.Hash)
}

// Tip is the active chain tip the pool is validated against.
type Tip struct {
	Hash           chainhash.Hash
	Height         uint32
	MedianTimePast int64
}

// AcceptResult describes an accepted transaction.
type AcceptResult struct {
	TxID chainhash.Hash
	Fee  uint64
	Size int
	// Replaced holds the pool transactions removed by this replacement.
	Replaced []chainhash.Hash
	// AcceptedOrphans holds orphans that were accepted because this transaction arrived.
	AcceptedOrphans []chainhash.Hash
}

// Info summarises the pool.
type Info struct {
	Size          int
	Usage         int64
	MaxSizeBytes  int64
	MinRelayFee   uint64
	Orphans       int
	RBFPolicy     RBFPolicy
	TipHeight     uint32
	TotalFee      uint64
	LowestFeeRate float64
}

type Mempool struct {
	logger     ulogger.Logger
	settings   *settings.Settings
	validator  validator.Interface
	coins      utxo.CoinReader
	feeTracker FeeTracker
	now        func() time.Time
	rbfPolicy  RBFPolicy

	mu        sync.RWMutex
	entries   []*TxEntry
	free      []Handle
	byTxID    map[chainhash.Hash]Handle
	spentBy   map[utxo.Outpoint]Handle
	evictHeap evictionHeap
	usage     int64
	tip       Tip
	orphans   *orphanPool
	rejects   *recentRejects
}

// New creates an empty pool validating against coins, which must reflect the
// active tip whenever the pool is used.
func New(logger ulogger.Logger, tSettings *settings.Settings, txValidator validator.Interface, coins utxo.CoinReader, opts ...Option) (*Mempool, error) {
	initPrometheusMetrics()

	policy := RBFPolicy(tSettings.Mempool.RBFPolicy)

	switch policy {
	case RBFOptIn, RBFFull, RBFDisabled:
	default:
		return nil, errors.NewConfigurationError("mempool_rbfPolicy must be one of optin, full or disabled, got %q", tSettings.Mempool.RBFPolicy)
	}

	m := &Mempool{
		logger:    logger,
		settings:  tSettings,
		validator: txValidator,
		coins:     coins,
		now:       time.Now,
		rbfPolicy: policy,
		byTxID:    make(map[chainhash.Hash]Handle),
		spentBy:   make(map[utxo.Outpoint]Handle),
		orphans:   newOrphanPool(tSettings.Mempool.MaxOrphanTxs, tSettings.Mempool.OrphanExpiry),
		rejects:   newRecentRejects(tSettings.Mempool.RecentRejectsCapacity),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// SetTip moves the pool to a new tip without touching its entries.
func (m *Mempool) SetTip(tip Tip) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tip = tip
}

// Accept validates tx against the active tip and the pool and adds it.
// A transaction already in the pool returns an ErrTxAlreadyExists error and
// leaves the pool untouched.
func (m *Mempool) Accept(ctx context.Context, tx *bt.Tx) (result *AcceptResult, err error) {
	ctx, _, endSpan := tracer.Start(ctx, "Accept",
		tracing.WithHistogram(prometheusMempoolAccept),
	)

	defer func() {
		if err != nil {
			prometheusMempoolRejected.WithLabelValues(errors.GetErrorCategory(err)).Inc()
		}

		endSpan(err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	result, err = m.accept(ctx, tx, now)
	if err != nil {
		if errors.Is(err, errors.ErrTxMissingInputs) {
			m.orphans.add(tx)
			m.logger.Debugf("[Mempool][%s] kept as orphan: %v", tx.TxID(), err)
		} else {
			m.rememberReject(*tx.TxIDChainHash(), err)
		}

		m.updateGauges()

		return nil, err
	}

	result.AcceptedOrphans = m.processOrphans(ctx, []chainhash.Hash{result.TxID}, now)

	m.updateGauges()

	return result, nil
}

// accept runs the admission pipeline. Nothing is changed unless the
// transaction is accepted.
func (m *Mempool) accept(ctx context.Context, tx *bt.Tx, now time.Time) (*AcceptResult, error) {
	txID := *tx.TxIDChainHash()

	if _, exists := m.byTxID[txID]; exists {
		return nil, errors.NewTxAlreadyExistsError("transaction %s is already in the mempool", txID)
	}

	if m.rejects.has(txID) {
		return nil, errors.New(errors.ERR_TX_RECENTLY_REJECTED, "transaction %s was recently rejected", txID)
	}

	if err := m.checkNotConfirmed(ctx, tx, txID); err != nil {
		return nil, err
	}

	bc := validator.BlockContext{
		Height:         m.tip.Height + 1,
		Time:           now.Unix(),
		MedianTimePast: m.tip.MedianTimePast,
	}

	if err := m.validator.CheckSanity(tx); err != nil {
		return nil, err
	}

	if err := m.validator.CheckStandard(tx, bc.Height); err != nil {
		return nil, err
	}

	if err := m.validator.CheckFinal(tx, bc); err != nil {
		return nil, err
	}

	conflicts := m.directConflicts(tx)
	if len(conflicts) > 0 {
		if err := m.checkReplaceable(txID, conflicts); err != nil {
			return nil, err
		}
	}

	coins, err := m.validator.ResolveInputs(ctx, tx, &poolCoinReader{pool: m, height: bc.Height})
	if err != nil {
		return nil, err
	}

	fee, err := m.validator.CheckInputs(tx, coins, bc.Height)
	if err != nil {
		return nil, err
	}

	sigOps, err := m.validator.CheckSigOps(tx, coins)
	if err != nil {
		return nil, err
	}

	size := tx.Size()

	if minFee := util.MinFee(size, m.settings.Mempool.MinRelayFeeSatsPerKB); fee < minFee {
		return nil, errors.NewTxInsufficientFeeError("transaction %s pays %d, minimum relay fee is %d", txID, fee, minFee)
	}

	parents := m.inPoolParents(tx)

	var evicted map[Handle]struct{}

	if len(conflicts) > 0 {
		if evicted, err = m.checkReplacement(txID, fee, size, parents, conflicts); err != nil {
			return nil, err
		}
	}

	if err = m.checkLimits(txID, fee, size, parents); err != nil {
		return nil, err
	}

	if err = m.validator.VerifyScripts(tx, coins, bc.Height); err != nil {
		return nil, err
	}

	result := &AcceptResult{
		TxID: txID,
		Fee:  fee,
		Size: size,
	}

	entry := &TxEntry{
		Tx:     tx,
		TxID:   txID,
		Fee:    fee,
		Size:   size,
		Time:   now,
		Height: m.tip.Height,
		SigOps: sigOps,
	}

	for _, coin := range coins {
		if coin.Coinbase {
			entry.SpendsCoinbase = true
			break
		}
	}

	if !m.survivesTrim(entry, parents, evicted, now) {
		return nil, errors.NewMempoolFullError("transaction %s would be evicted on admission, the pool is full", txID)
	}

	if len(evicted) > 0 {
		for _, replaced := range m.removeWithDescendants(conflicts, ReasonReplaced) {
			result.Replaced = append(result.Replaced, replaced.TxID)
		}
	}

	m.addEntry(entry, parents)

	if m.feeTracker != nil {
		m.feeTracker.TrackTransaction(txID, entry.FeeRate(), m.tip.Height)
	}

	m.expire(now)
	m.trimToSize()

	if _, ok := m.byTxID[txID]; !ok {
		return nil, errors.NewMempoolFullError("transaction %s was evicted on admission, the pool is full", txID)
	}

	prometheusMempoolAccepted.Inc()

	m.logger.Debugf("[Mempool][%s] accepted, fee %d, size %d, replaced %d", txID, fee, size, len(result.Replaced))

	return result, nil
}

// checkNotConfirmed rejects a transaction whose outputs are already in the UTXO set.
func (m *Mempool) checkNotConfirmed(ctx context.Context, tx *bt.Tx, txID chainhash.Hash) error {
	for i := range tx.Outputs {
		_, err := m.coins.GetCoin(ctx, utxo.NewOutpoint(&txID, uint32(i))) //nolint:gosec // output counts fit in uint32
		if err == nil {
			return errors.New(errors.ERR_TX_ALREADY_CONFIRMED, "transaction %s is already confirmed", txID)
		}

		if !errors.Is(err, errors.ErrNotFound) {
			return err
		}
	}

	return nil
}

// directConflicts returns the pool transactions spending any of tx's inputs, ordered by handle.
func (m *Mempool) directConflicts(tx *bt.Tx) []Handle {
	var conflicts []Handle

	for _, input := range tx.Inputs {
		if h, ok := m.spentBy[utxo.OutpointFromInput(input)]; ok && !slices.Contains(conflicts, h) {
			conflicts = append(conflicts, h)
		}
	}

	slices.Sort(conflicts)

	return conflicts
}

// inPoolParents returns the pool transactions whose outputs tx spends.
func (m *Mempool) inPoolParents(tx *bt.Tx) map[Handle]struct{} {
	parents := make(map[Handle]struct{})

	for _, input := range tx.Inputs {
		if h, ok := m.byTxID[utxo.OutpointFromInput(input).TxID]; ok {
			parents[h] = struct{}{}
		}
	}

	return parents
}

// checkLimits enforces the ancestor and descendant package limits for a
// transaction joining the pool below parents.
func (m *Mempool) checkLimits(txID chainhash.Hash, fee uint64, size int, parents map[Handle]struct{}) error {
	limits := m.settings.Mempool
	ancestors := m.ancestorsOf(parents)

	ancestorCount, ancestorSize, ancestorFees := 1+len(ancestors), size, fee
	for _, a := range ancestors {
		ancestorSize += m.entries[a].Size
		ancestorFees += m.entries[a].Fee
	}

	if limits.MaxAncestorCount > 0 && ancestorCount > limits.MaxAncestorCount {
		return errors.New(errors.ERR_TX_TOO_LONG_MEMPOOL_CHAIN, "transaction %s has %d unconfirmed ancestors, limit %d", txID, ancestorCount, limits.MaxAncestorCount)
	}

	if limits.MaxAncestorSize > 0 && ancestorSize > limits.MaxAncestorSize {
		return errors.New(errors.ERR_TX_TOO_LONG_MEMPOOL_CHAIN, "transaction %s ancestor size %d exceeds %d", txID, ancestorSize, limits.MaxAncestorSize)
	}

	if limits.MaxPackageFee > 0 && ancestorFees > limits.MaxPackageFee {
		return errors.New(errors.ERR_TX_TOO_LONG_MEMPOOL_CHAIN, "transaction %s package fee %d exceeds %d", txID, ancestorFees, limits.MaxPackageFee)
	}

	for _, a := range ancestors {
		ancestor := m.entries[a]

		if limits.MaxDescendantCount > 0 && ancestor.DescendantCount+1 > limits.MaxDescendantCount {
			return errors.New(errors.ERR_TX_TOO_LONG_MEMPOOL_CHAIN, "ancestor %s would have %d descendants, limit %d", ancestor.TxID, ancestor.DescendantCount+1, limits.MaxDescendantCount)
		}

		if limits.MaxDescendantSize > 0 && ancestor.DescendantSize+size > limits.MaxDescendantSize {
			return errors.New(errors.ERR_TX_TOO_LONG_MEMPOOL_CHAIN, "ancestor %s descendant size %d exceeds %d", ancestor.TxID, ancestor.DescendantSize+size, limits.MaxDescendantSize)
		}
	}

	return nil
}

// Get returns a copy of the entry for txID.
func (m *Mempool) Get(txID chainhash.Hash) (*TxEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.byTxID[txID]
	if !ok {
		return nil, false
	}

	return m.entries[h].clone(), true
}

func (m *Mempool) Has(txID chainhash.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.byTxID[txID]

	return ok
}

// Entries returns copies of all entries by descending fee rate.
func (m *Mempool) Entries() []*TxEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*TxEntry, 0, len(m.byTxID))

	for _, e := range m.entries {
		if e != nil {
			entries = append(entries, e.clone())
		}
	}

	slices.SortFunc(entries, func(a, b *TxEntry) int {
		switch {
		case lessFeeRate(b, a):
			return -1
		case lessFeeRate(a, b):
			return 1
		default:
			return 0
		}
	})

	return entries
}

// Size is the number of transactions in the pool.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.byTxID)
}

// Usage is the total serialized size of the pool's transactions.
func (m *Mempool) Usage() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.usage
}

// SpentBy returns the pool transaction spending outpoint.
func (m *Mempool) SpentBy(outpoint utxo.Outpoint) (chainhash.Hash, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.spentBy[outpoint]
	if !ok {
		return chainhash.Hash{}, false
	}

	return m.entries[h].TxID, true
}

func (m *Mempool) Info() *Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := &Info{
		Size:         len(m.byTxID),
		Usage:        m.usage,
		MaxSizeBytes: m.settings.Mempool.MaxSizeBytes,
		MinRelayFee:  m.settings.Mempool.MinRelayFeeSatsPerKB,
		Orphans:      m.orphans.len(),
		RBFPolicy:    m.rbfPolicy,
		TipHeight:    m.tip.Height,
	}

	for _, e := range m.entries {
		if e != nil {
			info.TotalFee += e.Fee
		}
	}

	if len(m.evictHeap) > 0 {
		info.LowestFeeRate = m.evictHeap[0].AncestorFeeRate()
	}

	return info
}

// Clear empties the pool, the orphan pool and the recent-rejects filter.
func (m *Mempool) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = nil
	m.free = nil
	m.byTxID = make(map[chainhash.Hash]Handle)
	m.spentBy = make(map[utxo.Outpoint]Handle)
	m.evictHeap = nil
	m.usage = 0
	m.orphans.flush()
	m.rejects.reset()

	m.updateGauges()
}

// CheckConsistency verifies that every input of every pool transaction is
// backed by the UTXO set or another pool transaction, and that the indexes
// and aggregates agree with the graph.
func (m *Mempool) CheckConsistency(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	usage := int64(0)

	for h, e := range m.entries {
		if e == nil {
			continue
		}

		count++
		usage += int64(e.Size)

		if got, ok := m.byTxID[e.TxID]; !ok || got != Handle(h) { //nolint:gosec // arena index fits in Handle
			return errors.NewProcessingError("mempool inconsistent: %s is not indexed by txid", e.TxID)
		}

		if e.heapIndex < 0 || e.heapIndex >= len(m.evictHeap) || m.evictHeap[e.heapIndex] != e {
			return errors.NewProcessingError("mempool inconsistent: %s is not in the eviction heap", e.TxID)
		}

		for index, input := range e.Tx.Inputs {
			op := utxo.OutpointFromInput(input)

			if spender, ok := m.spentBy[op]; !ok || spender != Handle(h) { //nolint:gosec // arena index fits in Handle
				return errors.NewProcessingError("mempool inconsistent: input %d of %s is not indexed as spent", index, e.TxID)
			}

			if parent, ok := m.byTxID[op.TxID]; ok {
				if int(op.Index) >= len(m.entries[parent].Tx.Outputs) {
					return errors.NewProcessingError("mempool inconsistent: input %d of %s spends a missing output of %s", index, e.TxID, op.TxID)
				}

				if _, linked := e.parents[parent]; !linked {
					return errors.NewProcessingError("mempool inconsistent: %s is not linked to its parent %s", e.TxID, op.TxID)
				}

				continue
			}

			if _, err := m.coins.GetCoin(ctx, op); err != nil {
				return errors.NewProcessingError("mempool inconsistent: input %d of %s spends %s which is neither confirmed nor in the pool", index, e.TxID, op, err)
			}
		}

		ancestors := m.ancestorsOf(e.parents)
		ancestorSize, ancestorFees := e.Size, e.Fee

		for _, a := range ancestors {
			ancestorSize += m.entries[a].Size
			ancestorFees += m.entries[a].Fee
		}

		if e.AncestorCount != len(ancestors)+1 || e.AncestorSize != ancestorSize || e.AncestorFees != ancestorFees {
			return errors.NewProcessingError("mempool inconsistent: ancestor aggregates of %s are stale", e.TxID)
		}

		descendants := m.descendantsOf(Handle(h)) //nolint:gosec // arena index fits in Handle
		descendantSize, descendantFees := e.Size, e.Fee

		for _, d := range descendants {
			descendantSize += m.entries[d].Size
			descendantFees += m.entries[d].Fee
		}

		if e.DescendantCount != len(descendants)+1 || e.DescendantSize != descendantSize || e.DescendantFees != descendantFees {
			return errors.NewProcessingError("mempool inconsistent: descendant aggregates of %s are stale", e.TxID)
		}
	}

	if count != len(m.byTxID) || count != len(m.evictHeap) {
		return errors.NewProcessingError("mempool inconsistent: %d entries, %d indexed, %d in heap", count, len(m.byTxID), len(m.evictHeap))
	}

	if usage != m.usage {
		return errors.NewProcessingError("mempool inconsistent: usage %d, entries sum to %d", m.usage, usage)
	}

	return nil
}

// rememberReject adds txID to the recent-rejects filter unless the rejection
// may not hold later.
func (m *Mempool) rememberReject(txID chainhash.Hash, err error) {
	switch errors.KindOf(err) {
	case errors.KindStructural, errors.KindConsensus, errors.KindPolicy:
		m.rejects.add(txID)
	}
}

func (m *Mempool) updateGauges() {
	prometheusMempoolSize.Set(float64(len(m.byTxID)))
	prometheusMempoolUsage.Set(float64(m.usage))
	prometheusMempoolOrphans.Set(float64(m.orphans.len()))
}

// poolCoinReader resolves outpoints against the pool first and the UTXO set second.
type poolCoinReader struct {
	pool   *Mempool
	height uint32
}

func (r *poolCoinReader) GetCoin(ctx context.Context, outpoint utxo.Outpoint) (*utxo.Coin, error) {
	if h, ok := r.pool.byTxID[outpoint.TxID]; ok {
		outputs := r.pool.entries[h].Tx.Outputs

		if int(outpoint.Index) >= len(outputs) {
			return nil, errors.NewNotFoundError("pool transaction %s has no output %d", outpoint.TxID, outpoint.Index)
		}

		output := outputs[outpoint.Index]
		if output.LockingScript == nil || utxo.IsUnspendable(*output.LockingScript) {
			return nil, errors.NewNotFoundError("output %s is unspendable", outpoint)
		}

		return utxo.NewCoin(output, r.height, false), nil
	}

	return r.pool.coins.GetCoin(ctx, outpoint)
}
