package chainstate

import (
	"context"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// InvalidateBlock marks a block and its descendants failed, as if it had
// broken a rule, and moves the active tip off it. Genesis cannot be
// invalidated.
func (c *Chainstate) InvalidateBlock(ctx context.Context, hash *chainhash.Hash) (*ReorgResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkWritable(); err != nil {
		return nil, err
	}

	if err := c.markFailed(hash); err != nil {
		return nil, err
	}

	c.logger.Infof("[Chainstate][%s] invalidated by operator", hash)

	result, err := c.activateBestChain(ctx)
	if flushErr := c.flushIndex(ctx); err == nil {
		err = flushErr
	}

	return result, err
}

// ReconsiderBlock clears the failed flag of a block, its descendants and its
// ancestors and activates the best chain again. Blocks that still break a
// rule are marked failed again when they are connected.
func (c *Chainstate) ReconsiderBlock(ctx context.Context, hash *chainhash.Hash) (*ReorgResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkWritable(); err != nil {
		return nil, err
	}

	if err := c.index.ClearFailed(hash); err != nil {
		return nil, err
	}

	c.logger.Infof("[Chainstate][%s] reconsidered by operator", hash)

	result, err := c.activateBestChain(ctx)
	if flushErr := c.flushIndex(ctx); err == nil {
		err = flushErr
	}

	return result, err
}
