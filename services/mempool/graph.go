package mempool

import (
	"container/heap"
	"slices"

	"github.com/bsv-blockchain/chainstate/stores/utxo"
)

// The mempool graph lives in an arena of entries addressed by Handle. Parent
// and child links only ever point at live entries; every mutation goes
// through addEntry and removeEntry, which keep the aggregates, the eviction
// heap and the spent outpoint index in step. The caller holds mu.

func (m *Mempool) entry(h Handle) *TxEntry {
	if h < 0 || int(h) >= len(m.entries) {
		return nil
	}

	return m.entries[h]
}

// ancestorsOf returns every in-pool ancestor reachable from parents, ordered by handle.
func (m *Mempool) ancestorsOf(parents map[Handle]struct{}) []Handle {
	seen := make(map[Handle]struct{}, len(parents))
	queue := make([]Handle, 0, len(parents))

	for p := range parents {
		seen[p] = struct{}{}
		queue = append(queue, p)
	}

	for i := 0; i < len(queue); i++ {
		for p := range m.entries[queue[i]].parents {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				queue = append(queue, p)
			}
		}
	}

	slices.Sort(queue)

	return queue
}

// descendantsOf returns every in-pool descendant of h, not including h, ordered by handle.
func (m *Mempool) descendantsOf(h Handle) []Handle {
	seen := map[Handle]struct{}{h: {}}
	queue := []Handle{h}

	for i := 0; i < len(queue); i++ {
		for c := range m.entries[queue[i]].children {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				queue = append(queue, c)
			}
		}
	}

	result := queue[1:]
	slices.Sort(result)

	return result
}

// addEntry links e below parents and updates the aggregates of its ancestors.
func (m *Mempool) addEntry(e *TxEntry, parents map[Handle]struct{}) {
	if n := len(m.free); n > 0 {
		e.handle = m.free[n-1]
		m.free = m.free[:n-1]
		m.entries[e.handle] = e
	} else {
		e.handle = Handle(len(m.entries)) //nolint:gosec // the pool never holds 2^31 entries
		m.entries = append(m.entries, e)
	}

	e.parents = parents
	e.children = make(map[Handle]struct{})

	for p := range parents {
		m.entries[p].children[e.handle] = struct{}{}
	}

	e.AncestorCount, e.AncestorSize, e.AncestorFees = 1, e.Size, e.Fee
	e.DescendantCount, e.DescendantSize, e.DescendantFees = 1, e.Size, e.Fee

	for _, a := range m.ancestorsOf(parents) {
		ancestor := m.entries[a]

		e.AncestorCount++
		e.AncestorSize += ancestor.Size
		e.AncestorFees += ancestor.Fee

		ancestor.DescendantCount++
		ancestor.DescendantSize += e.Size
		ancestor.DescendantFees += e.Fee
	}

	m.byTxID[e.TxID] = e.handle

	for _, input := range e.Tx.Inputs {
		m.spentBy[utxo.OutpointFromInput(input)] = e.handle
	}

	heap.Push(&m.evictHeap, e)

	m.usage += int64(e.Size)
}

// removeEntry unlinks a single entry. Callers remove descendants before
// their ancestors, or remove an entry whose ancestors have already been
// confirmed, so that no ancestor relation is left dangling.
func (m *Mempool) removeEntry(h Handle, reason RemovalReason) *TxEntry {
	e := m.entries[h]

	for _, a := range m.ancestorsOf(e.parents) {
		ancestor := m.entries[a]

		ancestor.DescendantCount--
		ancestor.DescendantSize -= e.Size
		ancestor.DescendantFees -= e.Fee
	}

	for _, d := range m.descendantsOf(h) {
		descendant := m.entries[d]

		descendant.AncestorCount--
		descendant.AncestorSize -= e.Size
		descendant.AncestorFees -= e.Fee

		heap.Fix(&m.evictHeap, descendant.heapIndex)
	}

	for p := range e.parents {
		delete(m.entries[p].children, h)
	}

	for c := range e.children {
		delete(m.entries[c].parents, h)
	}

	for _, input := range e.Tx.Inputs {
		op := utxo.OutpointFromInput(input)
		if spender, ok := m.spentBy[op]; ok && spender == h {
			delete(m.spentBy, op)
		}
	}

	delete(m.byTxID, e.TxID)
	heap.Remove(&m.evictHeap, e.heapIndex)

	m.usage -= int64(e.Size)
	m.entries[h] = nil
	m.free = append(m.free, h)

	prometheusMempoolRemoved.WithLabelValues(reason.String()).Inc()

	if reason != ReasonBlock && m.feeTracker != nil {
		m.feeTracker.RemoveTransaction(e.TxID)
	}

	m.logger.Debugf("[Mempool][%s] removed, reason %s", e.TxID, reason)

	return e.clone()
}

// removeWithDescendants removes roots and everything that depends on them.
// Entries are removed deepest first; ancestor count strictly grows along any
// path, so ordering by descending ancestor count is a valid order.
func (m *Mempool) removeWithDescendants(roots []Handle, reason RemovalReason) []*TxEntry {
	set := make(map[Handle]struct{})

	for _, root := range roots {
		if m.entry(root) == nil {
			continue
		}

		set[root] = struct{}{}

		for _, d := range m.descendantsOf(root) {
			set[d] = struct{}{}
		}
	}

	handles := make([]Handle, 0, len(set))
	for h := range set {
		handles = append(handles, h)
	}

	slices.SortFunc(handles, func(a, b Handle) int {
		ea, eb := m.entries[a], m.entries[b]
		if ea.AncestorCount != eb.AncestorCount {
			return eb.AncestorCount - ea.AncestorCount
		}

		return slices.Compare(eb.TxID[:], ea.TxID[:])
	})

	removed := make([]*TxEntry, 0, len(handles))
	for _, h := range handles {
		removed = append(removed, m.removeEntry(h, reason))
	}

	return removed
}

// linkChildren attaches in-pool spenders of e's outputs as children of e.
// Only needed when a transaction is put back below existing entries, which
// happens when disconnected blocks are reinserted.
func (m *Mempool) linkChildren(e *TxEntry) bool {
	linked := false

	for i := range e.Tx.Outputs {
		op := utxo.NewOutpoint(&e.TxID, uint32(i)) //nolint:gosec // output counts fit in uint32

		if child, ok := m.spentBy[op]; ok && child != e.handle {
			e.children[child] = struct{}{}
			m.entries[child].parents[e.handle] = struct{}{}
			linked = true
		}
	}

	return linked
}

// rebuildAggregates recomputes every ancestor and descendant aggregate from
// the graph and restores the heap order.
func (m *Mempool) rebuildAggregates() {
	for _, e := range m.entries {
		if e == nil {
			continue
		}

		e.AncestorCount, e.AncestorSize, e.AncestorFees = 1, e.Size, e.Fee
		e.DescendantCount, e.DescendantSize, e.DescendantFees = 1, e.Size, e.Fee
	}

	for _, e := range m.entries {
		if e == nil {
			continue
		}

		for _, a := range m.ancestorsOf(e.parents) {
			ancestor := m.entries[a]

			e.AncestorCount++
			e.AncestorSize += ancestor.Size
			e.AncestorFees += ancestor.Fee

			ancestor.DescendantCount++
			ancestor.DescendantSize += e.Size
			ancestor.DescendantFees += e.Fee
		}
	}

	heap.Init(&m.evictHeap)
}
