package chainstate

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/services/blockchain"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// prune deletes the bodies and undo records of active-chain blocks more than
// blockstore_pruneKeepBlocks below the tip. Pruned blocks can no longer be
// disconnected, so a reorg deeper than the kept window fails. The caller
// holds mu.
func (c *Chainstate) prune(ctx context.Context) error {
	if !c.settings.BlockStore.Prune {
		return nil
	}

	keep := uint32(c.settings.BlockStore.PruneKeepBlocks) //nolint:gosec // checked positive in New
	if c.tip.Height <= keep {
		return nil
	}

	target := c.tip.Height - keep
	if target <= c.pruneHeight {
		return nil
	}

	var (
		hashes []chainhash.Hash
		errs   []error
	)

	for height := c.pruneHeight + 1; height <= target; height++ {
		entry := c.index.Ancestor(c.tip, height)
		if entry == nil {
			break
		}

		if err := c.blockStore.Del(ctx, entry.Hash[:], blockFileOptions()...); err != nil {
			errs = append(errs, err)
			continue
		}

		c.index.SetStatus(entry, func(s blockchain.Status) blockchain.Status {
			s.HaveData = false
			s.HaveUndo = false

			return s
		})

		hashes = append(hashes, entry.Hash)
	}

	if len(hashes) > 0 {
		if err := c.utxoStore.DeleteUndo(ctx, hashes...); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		if err := c.indexStore.SetState(ctx, pruneHeightKey, encodeUint32(target)); err != nil {
			errs = append(errs, err)
		} else {
			c.pruneHeight = target
		}
	}

	prometheusChainstatePrunedBlocks.Add(float64(len(hashes)))

	c.logger.Debugf("[Chainstate] pruned %d blocks, prune height %d", len(hashes), c.pruneHeight)

	if err := errors.Join(errs...); err != nil {
		return errors.NewStorageError("[Chainstate] failed to prune blocks up to height %d", target, err)
	}

	return nil
}
