package mempool

import (
	"slices"
	"time"
)

// expire removes entries older than mempool_expiry together with their descendants.
func (m *Mempool) expire(now time.Time) int {
	expiry := m.settings.Mempool.Expiry
	if expiry <= 0 {
		return 0
	}

	cutoff := now.Add(-expiry)

	var roots []Handle

	for h, e := range m.entries {
		if e != nil && e.Time.Before(cutoff) {
			roots = append(roots, Handle(h)) //nolint:gosec // arena index fits in Handle
		}
	}

	if len(roots) == 0 {
		return 0
	}

	removed := m.removeWithDescendants(roots, ReasonExpiry)

	m.logger.Infof("[Mempool] expired %d transactions older than %s", len(removed), expiry)

	return len(removed)
}

// trimToSize evicts the package with the lowest ancestor fee rate until the
// pool fits in mempool_maxSizeBytes. A package is the worst entry, its
// ancestors and every descendant of either.
func (m *Mempool) trimToSize() int {
	maxSize := m.settings.Mempool.MaxSizeBytes
	if maxSize <= 0 {
		return 0
	}

	evicted := 0

	for m.usage > maxSize && len(m.evictHeap) > 0 {
		worst := m.evictHeap[0]

		roots := append(m.ancestorsOf(worst.parents), worst.handle)
		slices.Sort(roots)

		removed := m.removeWithDescendants(roots, ReasonSizeLimit)
		evicted += len(removed)

		m.logger.Debugf("[Mempool][%s] evicted package of %d transactions at ancestor fee rate %.0f sat/kB", worst.TxID, len(removed), worst.AncestorFeeRate())
	}

	return evicted
}

// Expire removes entries that have been in the pool longer than mempool_expiry.
func (m *Mempool) Expire() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.expire(m.now())
	m.updateGauges()

	return n
}

// survivesTrim reports whether entry, linked below parents, would still be in
// the pool after expiry and trimToSize once the handles in replaced are gone.
// replaced must already contain the descendants of every handle in it. The
// pool is only read, so a transaction that would not survive can be rejected
// before anything is removed.
func (m *Mempool) survivesTrim(entry *TxEntry, parents map[Handle]struct{}, replaced map[Handle]struct{}, now time.Time) bool {
	gone := make(map[Handle]struct{}, len(replaced))
	for h := range replaced {
		gone[h] = struct{}{}
	}

	markGone := func(h Handle) int64 {
		freed := int64(0)

		for _, g := range append(m.descendantsOf(h), h) {
			if _, ok := gone[g]; !ok {
				gone[g] = struct{}{}
				freed += int64(m.entries[g].Size)
			}
		}

		return freed
	}

	parentGone := func() bool {
		for p := range parents {
			if _, ok := gone[p]; ok {
				return true
			}
		}

		return false
	}

	usage := m.usage + int64(entry.Size)
	for h := range gone {
		usage -= int64(m.entries[h].Size)
	}

	if expiry := m.settings.Mempool.Expiry; expiry > 0 {
		cutoff := now.Add(-expiry)

		for h, e := range m.entries {
			if e != nil && e.Time.Before(cutoff) {
				usage -= markGone(Handle(h)) //nolint:gosec // arena index fits in Handle
			}
		}
	}

	if parentGone() {
		return false
	}

	maxSize := m.settings.Mempool.MaxSizeBytes
	if maxSize <= 0 || usage <= maxSize {
		return true
	}

	// Removals are closed under descendants, so the ancestor aggregates of
	// the survivors do not change while trimming and one ordering suffices.
	candidate := *entry
	candidate.handle = -1
	candidate.AncestorSize, candidate.AncestorFees = entry.Size, entry.Fee

	for _, a := range m.ancestorsOf(parents) {
		candidate.AncestorSize += m.entries[a].Size
		candidate.AncestorFees += m.entries[a].Fee
	}

	order := []*TxEntry{&candidate}

	for _, e := range m.entries {
		if e == nil {
			continue
		}

		if _, ok := gone[e.handle]; !ok {
			order = append(order, e)
		}
	}

	slices.SortFunc(order, func(a, b *TxEntry) int {
		switch {
		case lessAncestorFeeRate(a, b):
			return -1
		case lessAncestorFeeRate(b, a):
			return 1
		default:
			return 0
		}
	})

	for _, worst := range order {
		if usage <= maxSize {
			return true
		}

		if worst == &candidate {
			return false
		}

		if _, ok := gone[worst.handle]; ok {
			continue
		}

		for _, root := range append(m.ancestorsOf(worst.parents), worst.handle) {
			usage -= markGone(root)
		}

		if parentGone() {
			return false
		}
	}

	return usage <= maxSize
}
