package chainstate

import (
	"bytes"
	"context"
	"slices"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockchain"
	"github.com/bsv-blockchain/chainstate/stores/blob/options"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/jellydator/ttlcache/v3"
)

const (
	objectBlock   = "block"
	objectHeaders = "headers"
	objectTx      = "tx"
)

type peerVerdict struct {
	fromPeer string
	verdict  Verdict
}

// blockFileOptions addresses a stored block body, <hash>.block in a file store.
func blockFileOptions(opts ...options.FileOption) []options.FileOption {
	return append([]options.FileOption{options.WithFileExtension(objectBlock)}, opts...)
}

// OnBlockReceived validates a serialized block from fromPeer, stores it and
// activates the best chain. A block whose parent is unknown is kept in the
// orphan block cache and processed again once the parent is accepted; the
// verdicts of such orphans are reported to the peer that sent them.
func (c *Chainstate) OnBlockReceived(ctx context.Context, raw []byte, fromPeer string) Verdict {
	block, err := model.NewBlockFromBytes(raw)
	if err != nil {
		verdict := verdictFromError(chainhash.Hash{}, err)
		c.report(objectBlock, []peerVerdict{{fromPeer: fromPeer, verdict: verdict}})

		return verdict
	}

	c.mu.Lock()

	var verdicts []peerVerdict

	if err = c.checkWritable(); err != nil {
		verdicts = append(verdicts, peerVerdict{fromPeer: fromPeer, verdict: verdictFromError(*block.Hash(), err)})
	} else {
		verdicts = c.processBlock(ctx, block, fromPeer)
	}

	c.mu.Unlock()

	c.report(objectBlock, verdicts)

	return verdicts[0].verdict
}

// processBlock handles one block and then every cached orphan that became
// connectable through it. The first verdict is the one of block. The caller
// holds mu.
func (c *Chainstate) processBlock(ctx context.Context, block *model.Block, fromPeer string) []peerVerdict {
	hash := *block.Hash()

	verdict, accepted := c.acceptBlock(ctx, block, fromPeer)
	verdicts := []peerVerdict{{fromPeer: fromPeer, verdict: verdict}}

	if !accepted {
		return verdicts
	}

	queue := []chainhash.Hash{hash}

	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		for _, orphan := range c.orphansOf(parent) {
			orphanHash := *orphan.block.Hash()
			c.orphanBlocks.Delete(orphanHash)

			v, ok := c.acceptBlock(ctx, orphan.block, orphan.fromPeer)
			verdicts = append(verdicts, peerVerdict{fromPeer: orphan.fromPeer, verdict: v})

			if ok {
				queue = append(queue, orphanHash)
			}
		}
	}

	prometheusChainstateOrphanBlocks.Set(float64(c.orphanBlocks.Len()))

	return verdicts
}

// orphansOf returns the cached orphans whose parent is hash, in hash order so
// that processing does not depend on map iteration.
func (c *Chainstate) orphansOf(hash chainhash.Hash) []*orphanBlock {
	var orphans []*orphanBlock

	for _, item := range c.orphanBlocks.Items() {
		if item.IsExpired() {
			continue
		}

		if orphan := item.Value(); orphan.block.Header.HashPrevBlock.IsEqual(&hash) {
			orphans = append(orphans, orphan)
		}
	}

	slices.SortFunc(orphans, func(a, b *orphanBlock) int {
		return bytes.Compare(a.block.Hash()[:], b.block.Hash()[:])
	})

	return orphans
}

// acceptBlock runs a block through the context-free checks, stores it and
// activates the best chain. accepted reports whether the block is now
// indexed with data, so that orphans waiting on it can follow.
func (c *Chainstate) acceptBlock(ctx context.Context, block *model.Block, fromPeer string) (verdict Verdict, accepted bool) {
	hash := *block.Hash()
	entry := c.index.Get(&hash)

	if entry != nil {
		status := c.index.Status(entry)

		if status.Failed {
			return verdictFromError(hash, errors.New(errors.ERR_BLOCK_DUPLICATE_INVALID, "[OnBlockReceived][%s] block is known to be invalid", hash)), false
		}

		if status.HaveData {
			return verdictFromError(hash, errors.NewBlockExistsError("[OnBlockReceived][%s] block already stored", hash)), false
		}
	}

	if err := c.validation.CheckBlockContextFree(ctx, block); err != nil {
		// a mutated body says nothing about the header: the real block may still arrive
		if entry != nil && isRuleViolation(err) && !errors.Is(err, errors.ErrBlockMutated) {
			if markErr := c.markFailed(&hash); markErr != nil {
				c.logger.Errorf("[OnBlockReceived][%s] failed to mark block failed: %v", hash, markErr)
			}
		}

		return verdictFromError(hash, err), false
	}

	if entry == nil && c.index.Get(block.Header.HashPrevBlock) == nil {
		c.addOrphan(block, fromPeer)
		return verdictFromError(hash, errors.NewBlockParentNotFoundError("[OnBlockReceived][%s] parent %s is unknown", hash, block.Header.HashPrevBlock)), false
	}

	if entry == nil {
		var err error

		if entry, err = c.index.AddHeader(block.Header); err != nil {
			return verdictFromError(hash, err), false
		}
	}

	if err := c.blockStore.Set(ctx, hash[:], block.Bytes(), blockFileOptions(options.WithAllowOverwrite(true))...); err != nil {
		return verdictFromError(hash, errors.NewStorageError("[OnBlockReceived][%s] failed to store block", hash, err)), false
	}

	c.index.SetStatus(entry, func(s blockchain.Status) blockchain.Status {
		s.HaveData = true
		return s
	})
	c.index.RaiseValidity(entry, blockchain.ValidityTree)

	result, err := c.activateBestChain(ctx)
	if flushErr := c.flushIndex(ctx); err == nil {
		err = flushErr
	}

	if err != nil {
		return verdictFromError(hash, err), true
	}

	if failure, ok := result.Failed[hash]; ok {
		return verdictFromError(hash, failure), false
	}

	if c.index.Status(entry).Failed {
		return verdictFromError(hash, errors.NewBlockParentInvalidError("[OnBlockReceived][%s] block descends from an invalid block", hash)), false
	}

	return Verdict{Result: Accepted, Hash: hash, Missing: result.Missing}, true
}

// addOrphan caches a block whose parent is unknown. When the cache is full
// the entry closest to expiry is dropped.
func (c *Chainstate) addOrphan(block *model.Block, fromPeer string) {
	c.orphanBlocks.Set(*block.Hash(), &orphanBlock{block: block, fromPeer: fromPeer}, ttlcache.DefaultTTL)
	prometheusChainstateOrphanBlocks.Set(float64(c.orphanBlocks.Len()))
}

// OnHeadersReceived adds a batch of headers, parents first, and returns the
// hashes of the blocks whose bodies are needed to reach the best header.
func (c *Chainstate) OnHeadersReceived(ctx context.Context, headers []*model.BlockHeader, fromPeer string) Verdict {
	c.mu.Lock()

	verdict := c.processHeaders(ctx, headers)

	c.mu.Unlock()

	c.report(objectHeaders, []peerVerdict{{fromPeer: fromPeer, verdict: verdict}})

	return verdict
}

func (c *Chainstate) processHeaders(ctx context.Context, headers []*model.BlockHeader) Verdict {
	if len(headers) == 0 {
		return Verdict{Result: AlreadyKnown}
	}

	if err := c.checkWritable(); err != nil {
		return verdictFromError(*headers[0].Hash(), err)
	}

	var (
		added   int
		lastErr error
		last    chainhash.Hash
	)

	for _, header := range headers {
		last = *header.Hash()

		if _, err := c.index.AddHeader(header); err != nil {
			if errors.Is(err, errors.ErrBlockExists) {
				continue
			}

			lastErr = err

			break
		}

		added++
	}

	if added == 0 && lastErr == nil {
		return Verdict{Result: AlreadyKnown, Kind: errors.KindDuplicate, Hash: last, Reason: "headers already known"}
	}

	result, err := c.activateBestChain(ctx)
	if flushErr := c.flushIndex(ctx); err == nil {
		err = flushErr
	}

	if lastErr != nil {
		verdict := verdictFromError(last, lastErr)
		if result != nil {
			verdict.Missing = result.Missing
		}

		return verdict
	}

	if err != nil {
		return verdictFromError(last, err)
	}

	return Verdict{Result: Accepted, Hash: last, Missing: result.Missing}
}

// report counts verdicts and hands them to the verdict handler. It must be
// called without mu held: handlers may call back into the chainstate.
func (c *Chainstate) report(object string, verdicts []peerVerdict) {
	for _, pv := range verdicts {
		prometheusChainstateVerdicts.WithLabelValues(object, pv.verdict.Result.String()).Inc()

		if pv.verdict.Result == InternalError {
			c.logger.Errorf("[Chainstate][%s] %s from %q: %v", pv.verdict.Hash, object, pv.fromPeer, pv.verdict.Err)
		} else {
			c.logger.Debugf("[Chainstate][%s] %s from %q: %s %s", pv.verdict.Hash, object, pv.fromPeer, pv.verdict.Result, pv.verdict.Reason)
		}

		if c.verdictHandler != nil {
			c.verdictHandler(pv.fromPeer, pv.verdict)
		}
	}
}
