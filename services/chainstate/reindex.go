package chainstate

import (
	"context"
	"encoding/binary"
	"strings"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockchain"
	"github.com/bsv-blockchain/chainstate/util/tracing"
)

type ReindexMode string

const (
	// ReindexFull rebuilds the block index and the UTXO set from stored blocks.
	ReindexFull ReindexMode = "full"
	// ReindexChainstate keeps the block index and rebuilds the UTXO set.
	ReindexChainstate ReindexMode = "chainstate"
)

func ParseReindexMode(s string) (ReindexMode, error) {
	switch mode := ReindexMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case ReindexFull, ReindexChainstate:
		return mode, nil
	default:
		return "", errors.NewConfigurationError("unknown reindex mode %q, expected %q or %q", s, ReindexFull, ReindexChainstate)
	}
}

// Reindex rebuilds the chainstate from the stored blocks and clears the
// corrupt state. The mempool, the fee estimator history and the orphan
// blocks are dropped.
func (c *Chainstate) Reindex(ctx context.Context, mode ReindexMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.reindex(ctx, mode)
}

func (c *Chainstate) reindex(ctx context.Context, mode ReindexMode) (err error) {
	ctx, _, deferFn := tracer.Start(ctx, "Reindex",
		tracing.WithTag("mode", string(mode)),
		tracing.WithCounter(prometheusChainstateReindexes),
	)
	defer func() { deferFn(err) }()

	c.loadPruneHeight(ctx)

	if c.pruneHeight > 0 {
		return errors.NewConfigurationError("blocks up to height %d are pruned, the chainstate cannot be rebuilt from local blocks", c.pruneHeight)
	}

	c.logger.Infof("[Reindex] starting %s reindex", mode)

	c.mempool.Clear()
	c.feeEstimator.Reset()
	c.orphanBlocks.DeleteAll()
	prometheusChainstateOrphanBlocks.Set(0)

	if err := c.utxoStore.Clear(ctx); err != nil {
		return errors.NewStorageError("[Reindex] failed to clear the UTXO store", err)
	}

	switch mode {
	case ReindexFull:
		if err := c.reindexBlocks(ctx); err != nil {
			return err
		}
	case ReindexChainstate:
		c.resetValidity()
	default:
		return errors.NewInvalidArgumentError("unknown reindex mode %q", mode)
	}

	if err := c.connectGenesis(ctx); err != nil {
		return err
	}

	c.corrupt.Store(false)
	prometheusChainstateCorrupt.Set(0)

	c.mempool.SetTip(c.mempoolTip(c.tip))

	if _, err := c.activateBestChain(ctx); err != nil {
		return err
	}

	if err := c.flushIndex(ctx); err != nil {
		return err
	}

	c.logger.Infof("[Reindex] done, tip %s at height %d", c.tip.Hash, c.tip.Height)

	return nil
}

// reindexBlocks replaces the block index with one rebuilt from the headers
// of the old index and the stored block bodies. Failure flags are not
// carried over: every body is checked again.
func (c *Chainstate) reindexBlocks(ctx context.Context) error {
	type oldEntry struct {
		header   *model.BlockHeader
		haveData bool
	}

	old := make([]oldEntry, 0, c.index.Len())

	// arrival order puts every parent before its children
	for h := 1; h < c.index.Len(); h++ {
		entry := c.index.Entry(blockchain.Handle(h))
		old = append(old, oldEntry{header: entry.Header, haveData: c.index.Status(entry).HaveData})
	}

	if err := c.indexStore.Reset(ctx); err != nil {
		return errors.NewStorageError("[Reindex] failed to reset the block index store", err)
	}

	if err := c.resetIndex(); err != nil {
		return err
	}

	c.tip = c.index.Genesis()

	for _, o := range old {
		if err := ctx.Err(); err != nil {
			return errors.NewContextCanceledError("[Reindex] cancelled", err)
		}

		hash := o.header.Hash()

		entry, err := c.index.AddHeader(o.header)
		if err != nil {
			c.logger.Warnf("[Reindex][%s] header not re-indexed: %v", hash, err)
			continue
		}

		if !o.haveData {
			continue
		}

		block, err := c.readBlock(ctx, hash)
		if err != nil {
			c.logger.Warnf("[Reindex][%s] stored body not usable: %v", hash, err)
			continue
		}

		if err = c.validation.CheckBlockContextFree(ctx, block); err != nil {
			c.logger.Warnf("[Reindex][%s] stored body is invalid: %v", hash, err)

			if isRuleViolation(err) && !errors.Is(err, errors.ErrBlockMutated) {
				if err = c.markFailed(hash); err != nil {
					return err
				}
			}

			continue
		}

		c.index.SetStatus(entry, func(s blockchain.Status) blockchain.Status {
			s.HaveData = true
			return s
		})
		c.index.RaiseValidity(entry, blockchain.ValidityTree)

		prometheusChainstateReindexBlocks.Inc()
	}

	return nil
}

// resetValidity forgets which blocks were connected while keeping bodies
// and failure flags.
func (c *Chainstate) resetValidity() {
	for h := 1; h < c.index.Len(); h++ {
		entry := c.index.Entry(blockchain.Handle(h))

		c.index.SetStatus(entry, func(s blockchain.Status) blockchain.Status {
			if s.HaveData {
				s.Level = blockchain.ValidityTree
			} else {
				s.Level = blockchain.ValidityHeader
			}

			s.HaveUndo = false

			return s
		})
	}
}

func (c *Chainstate) loadPruneHeight(ctx context.Context) {
	data, err := c.indexStore.GetState(ctx, pruneHeightKey)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			c.logger.Warnf("[Chainstate] failed to read prune height: %v", err)
		}

		return
	}

	if height, ok := decodeUint32(data); ok {
		c.pruneHeight = height
	}
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)

	return b
}

func decodeUint32(b []byte) (uint32, bool) {
	if len(b) != 4 {
		return 0, false
	}

	return binary.LittleEndian.Uint32(b), true
}
