package mempool

import (
	"context"
	"slices"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/patrickmn/go-cache"
)

// orphanPool holds transactions whose inputs could not be resolved, keyed by
// txid. Entries expire after mempool_orphanExpiry.
type orphanPool struct {
	cache *cache.Cache
	max   int
}

func newOrphanPool(maxOrphans int, expiry time.Duration) *orphanPool {
	if expiry <= 0 {
		expiry = cache.NoExpiration
	}

	return &orphanPool{
		cache: cache.New(expiry, time.Minute),
		max:   maxOrphans,
	}
}

func (o *orphanPool) add(tx *bt.Tx) {
	if o.max <= 0 {
		return
	}

	key := tx.TxID()

	if _, found := o.cache.Get(key); found {
		return
	}

	o.cache.DeleteExpired()

	// evict the orphan closest to expiry
	for o.cache.ItemCount() >= o.max {
		items := o.cache.Items()

		oldestKey := ""
		oldest := int64(0)

		for k, item := range items {
			if oldestKey == "" || item.Expiration < oldest || (item.Expiration == oldest && k < oldestKey) {
				oldestKey, oldest = k, item.Expiration
			}
		}

		o.cache.Delete(oldestKey)
	}

	o.cache.SetDefault(key, tx)
}

func (o *orphanPool) remove(txID chainhash.Hash) {
	o.cache.Delete(txID.String())
}

// spending returns the orphans that spend an output of parent, ordered by txid.
func (o *orphanPool) spending(parent chainhash.Hash) []*bt.Tx {
	var children []*bt.Tx

	for _, item := range o.cache.Items() {
		tx := item.Object.(*bt.Tx)

		for _, input := range tx.Inputs {
			if utxo.OutpointFromInput(input).TxID == parent {
				children = append(children, tx)
				break
			}
		}
	}

	slices.SortFunc(children, func(a, b *bt.Tx) int {
		return slices.Compare(a.TxIDChainHash()[:], b.TxIDChainHash()[:])
	})

	return children
}

func (o *orphanPool) has(txID chainhash.Hash) bool {
	_, found := o.cache.Get(txID.String())
	return found
}

func (o *orphanPool) len() int {
	return o.cache.ItemCount()
}

func (o *orphanPool) flush() {
	o.cache.Flush()
}

// processOrphans retries the orphans of every newly accepted transaction,
// following chains of orphans, and returns the txids that were accepted.
func (m *Mempool) processOrphans(ctx context.Context, parents []chainhash.Hash, now time.Time) []chainhash.Hash {
	var accepted []chainhash.Hash

	queue := append([]chainhash.Hash(nil), parents...)

	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		for _, child := range m.orphans.spending(parent) {
			childID := *child.TxIDChainHash()
			m.orphans.remove(childID)

			result, err := m.accept(ctx, child, now)
			if err != nil {
				switch {
				case errors.Is(err, errors.ErrTxMissingInputs):
					m.orphans.add(child)
				case errors.Is(err, errors.ErrTxAlreadyExists):
				default:
					m.rememberReject(childID, err)
					m.logger.Debugf("[Mempool][%s] orphan rejected: %v", childID, err)
				}

				continue
			}

			m.logger.Debugf("[Mempool][%s] orphan accepted after parent %s", childID, parent)

			accepted = append(accepted, result.TxID)
			queue = append(queue, result.TxID)
		}
	}

	return accepted
}

// IsOrphan reports whether txID is waiting in the orphan pool.
func (m *Mempool) IsOrphan(txID chainhash.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.orphans.has(txID)
}
