package chainstate

import (
	"context"
	"slices"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockchain"
	"github.com/bsv-blockchain/chainstate/services/blockvalidation"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/util/tracing"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

var tracer = tracing.Tracer("chainstate")

// ReorgResult reports what ActivateBestChain changed.
type ReorgResult struct {
	// Connected and Disconnected list blocks in the order they were applied.
	Connected    []chainhash.Hash
	Disconnected []chainhash.Hash
	// Failed holds blocks found invalid while connecting, with the reason.
	Failed map[chainhash.Hash]error
	// Missing lists blocks of the best header chain whose bodies are needed.
	Missing []chainhash.Hash
}

type connectedBlock struct {
	entry  *blockchain.Entry
	block  *model.Block
	result *blockvalidation.ConnectResult
}

// reorg is one attempt to move the active tip to a candidate.
type reorg struct {
	id      uuid.UUID
	machine *fsm.FSM
	from    *blockchain.Entry
	to      *blockchain.Entry
	fork    *blockchain.Entry
}

func (r *reorg) event(ctx context.Context, c *Chainstate, name string) {
	// the machine only records progress; its context must outlive a cancelled caller
	if err := r.machine.Event(context.WithoutCancel(ctx), name); err != nil {
		c.logger.Warnf("[Reorg][%s] unexpected event %s in state %s: %v", r.id, name, r.machine.Current(), err)
	}
}

// ActivateBestChain moves the active tip to the best chain that can be
// connected from stored blocks.
func (c *Chainstate) ActivateBestChain(ctx context.Context) (*ReorgResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkWritable(); err != nil {
		return nil, err
	}

	result, err := c.activateBestChain(ctx)

	if flushErr := c.flushIndex(ctx); err == nil {
		err = flushErr
	}

	return result, err
}

// activateBestChain is ActivateBestChain for callers holding mu. A candidate
// whose connect fails is marked failed and the next best candidate is tried.
func (c *Chainstate) activateBestChain(ctx context.Context) (result *ReorgResult, err error) {
	ctx, _, deferFn := tracer.Start(ctx, "ActivateBestChain",
		tracing.WithHistogram(prometheusChainstateActivate),
		tracing.WithTag("tip", c.tip.Hash.String()),
	)
	defer func() { deferFn(err) }()

	result = &ReorgResult{Failed: make(map[chainhash.Hash]error)}

	for {
		if err = ctx.Err(); err != nil {
			return result, errors.NewContextCanceledError("[ActivateBestChain] cancelled", err)
		}

		candidate := c.index.BestConnectable(c.tip)
		if candidate == nil {
			return result, errors.NewProcessingError("[ActivateBestChain] no connectable block, not even genesis")
		}

		if candidate == c.tip {
			if result.Missing = c.missingBodies(); len(result.Missing) > 0 {
				r := &reorg{id: uuid.New()}
				r.machine = NewReorgStateMachine(c.logger, r.id)

				r.event(ctx, c, EventValidateHeaders)
				r.event(ctx, c, EventRequestBodies)

				c.logger.Infof("[Reorg][%s] best header chain needs %d block bodies, first %s", r.id, len(result.Missing), result.Missing[0])
			}

			return result, nil
		}

		if err = c.reorganize(ctx, candidate, result); err != nil {
			return result, err
		}
	}
}

// missingBodies returns the blocks between the active chain and the best
// header that have no stored body, lowest first.
func (c *Chainstate) missingBodies() []chainhash.Hash {
	active := c.tip
	if c.index.Status(active).Failed {
		active = nil
	}

	best := c.index.BestCandidate(active)
	if best == nil || best == c.tip {
		return nil
	}

	var missing []chainhash.Hash

	for e := best; e != nil && !c.index.IsAncestor(e, c.tip); e = c.index.Parent(e) {
		if !c.index.Status(e).HaveData {
			missing = append(missing, e.Hash)
		}
	}

	slices.Reverse(missing)

	return missing
}

// reorganize disconnects the active chain down to the fork with candidate and
// connects candidate's branch, all in one view. Nothing is written unless
// every block connects. A block that breaks a rule is marked failed and the
// attempt is abandoned without error, so that the caller picks a new
// candidate.
func (c *Chainstate) reorganize(ctx context.Context, candidate *blockchain.Entry, result *ReorgResult) error {
	r := &reorg{
		id:   uuid.New(),
		from: c.tip,
		to:   candidate,
		fork: c.index.FindFork(c.tip, candidate),
	}
	r.machine = NewReorgStateMachine(c.logger, r.id)

	r.event(ctx, c, EventValidateHeaders)

	var disconnect []*blockchain.Entry
	for e := c.tip; e.Handle != r.fork.Handle; e = c.index.Parent(e) {
		disconnect = append(disconnect, e)
	}

	var connect []*blockchain.Entry
	for e := candidate; e.Handle != r.fork.Handle; e = c.index.Parent(e) {
		connect = append(connect, e)
	}

	slices.Reverse(connect)

	c.logger.Infof("[Reorg][%s] moving tip from %s (%d) to %s (%d), fork at %d: %d to disconnect, %d to connect",
		r.id, r.from.Hash, r.from.Height, r.to.Hash, r.to.Height, r.fork.Height, len(disconnect), len(connect))

	view := c.utxoStore.NewView()

	disconnected, err := c.stageDisconnect(ctx, r, view, disconnect)
	if err != nil {
		return c.abort(ctx, r, err)
	}

	connected := make([]connectedBlock, 0, len(connect))
	parent := r.fork

	for _, entry := range connect {
		if err = ctx.Err(); err != nil {
			return c.abort(ctx, r, errors.NewContextCanceledError("[Reorg][%s] cancelled", r.id, err))
		}

		r.event(ctx, c, EventValidateBlock)

		block, err := c.readBlock(ctx, &entry.Hash)
		if err != nil {
			return c.abort(ctx, r, err)
		}

		res, err := c.validation.CheckBlockContextual(ctx, block, parent, view)
		if err != nil {
			if !isRuleViolation(err) {
				return c.abort(ctx, r, err)
			}

			r.event(ctx, c, EventFail)

			c.logger.Warnf("[Reorg][%s] block %s at height %d is invalid, discarding the reorganization: %v", r.id, entry.Hash, entry.Height, err)

			if markErr := c.markFailed(&entry.Hash); markErr != nil {
				return markErr
			}

			result.Failed[entry.Hash] = err

			return nil
		}

		r.event(ctx, c, EventConnect)

		connected = append(connected, connectedBlock{entry: entry, block: block, result: res})
		parent = entry
	}

	if err = ctx.Err(); err != nil {
		return c.abort(ctx, r, errors.NewContextCanceledError("[Reorg][%s] cancelled before commit", r.id, err))
	}

	if err = c.utxoStore.Commit(context.WithoutCancel(ctx), view.ChangeSet()); err != nil {
		r.event(ctx, c, EventFail)
		c.latchCorrupt("chainstate commit failed", err)

		return errors.NewStorageError("[Reorg][%s] failed to commit", r.id, err)
	}

	c.afterCommit(ctx, r, disconnect, disconnected, connected, result)

	return nil
}

// stageDisconnect undoes the blocks in disconnect, tip first, in view and
// returns their bodies. A body that can no longer be read, e.g. pruned, is
// returned as nil: its transactions are then not offered back to the mempool.
func (c *Chainstate) stageDisconnect(ctx context.Context, r *reorg, view *utxo.View, disconnect []*blockchain.Entry) ([]*model.Block, error) {
	if len(disconnect) == 0 {
		return nil, nil
	}

	r.event(ctx, c, EventDisconnect)

	blocks := make([]*model.Block, 0, len(disconnect))

	for _, entry := range disconnect {
		undo, err := c.utxoStore.GetUndo(ctx, &entry.Hash)
		if err != nil {
			return nil, errors.NewStorageError("[Reorg][%s] no undo data for block %s at height %d", r.id, entry.Hash, entry.Height, err)
		}

		if err = view.UndoBlock(ctx, undo); err != nil {
			return nil, err
		}

		block, err := c.readBlock(ctx, &entry.Hash)
		if err != nil {
			c.logger.Warnf("[Reorg][%s] disconnected block %s has no stored body, its transactions are lost to the mempool: %v", r.id, entry.Hash, err)
		}

		blocks = append(blocks, block)
	}

	return blocks, nil
}

// abort discards the staged view, which is never written, and returns err.
// An undo record that disagrees with the UTXO set means the durable state is
// already inconsistent, so it latches the corrupt state.
func (c *Chainstate) abort(ctx context.Context, r *reorg, err error) error {
	r.event(ctx, c, EventFail)

	if errors.IsFatalError(err) {
		c.latchCorrupt("undo data does not match the chainstate", err)
	}

	c.logger.Warnf("[Reorg][%s] rolled back: %v", r.id, err)

	return err
}

// afterCommit moves the in-memory state to the committed tip.
func (c *Chainstate) afterCommit(ctx context.Context, r *reorg, disconnect []*blockchain.Entry, disconnected []*model.Block,
	connected []connectedBlock, result *ReorgResult) {
	c.tip = r.to

	for _, entry := range disconnect {
		c.index.SetStatus(entry, func(s blockchain.Status) blockchain.Status {
			s.HaveUndo = false
			return s
		})

		result.Disconnected = append(result.Disconnected, entry.Hash)
	}

	for _, cb := range connected {
		c.index.RaiseValidity(cb.entry, blockchain.ValidityChain)
		c.index.SetStatus(cb.entry, func(s blockchain.Status) blockchain.Status {
			s.HaveUndo = true
			return s
		})

		result.Connected = append(result.Connected, cb.entry.Hash)
	}

	if len(disconnect) > 0 {
		prometheusChainstateReorgs.Inc()
		prometheusChainstateReorgDepth.Observe(float64(len(disconnect)))
	}

	prometheusChainstateTipHeight.Set(float64(c.tip.Height))

	c.logger.Infof("[Reorg][%s] new tip %s at height %d", r.id, c.tip.Hash, c.tip.Height)

	c.updateMempool(ctx, disconnected, connected)

	if err := c.prune(ctx); err != nil {
		c.logger.Warnf("[Chainstate] pruning failed: %v", err)
	}
}

// updateMempool brings the mempool and the fee estimator to the new tip.
// Transactions of disconnected blocks go back into the pool first, oldest
// block first, so that connected blocks then remove whatever they confirm
// or conflict with.
func (c *Chainstate) updateMempool(ctx context.Context, disconnected []*model.Block, connected []connectedBlock) {
	if len(disconnected) > 0 {
		c.mempool.SetTip(c.mempoolTip(c.tip))

		var txs []*bt.Tx

		for i := len(disconnected) - 1; i >= 0; i-- {
			if disconnected[i] != nil {
				txs = append(txs, disconnected[i].Transactions...)
			}
		}

		reinserted := c.mempool.ReinsertDisconnected(ctx, txs)
		c.logger.Infof("[Chainstate] reinserted %d of %d disconnected transactions", reinserted, len(txs))
	}

	for _, cb := range connected {
		c.mempool.RemoveForBlock(ctx, cb.block, c.mempoolTip(cb.entry))
		c.feeEstimator.ProcessBlock(cb.entry.Height, cb.block.TxIDs())
	}

	if len(disconnected) > 0 {
		if removed := c.mempool.RemoveForReorg(ctx, c.mempoolTip(c.tip)); len(removed) > 0 {
			c.logger.Infof("[Chainstate] removed %d mempool transactions invalid after the reorganization", len(removed))
		}
	}

	if c.settings.Chainstate.CheckMempoolConsistency {
		if err := c.mempool.CheckConsistency(ctx); err != nil {
			c.logger.Errorf("[Chainstate] mempool inconsistent at tip %s: %v", c.tip.Hash, err)
		}
	}
}

func (c *Chainstate) markFailed(hash *chainhash.Hash) error {
	if err := c.index.MarkFailed(hash); err != nil {
		return err
	}

	prometheusChainstateFailedBlocks.Inc()

	return nil
}

func (c *Chainstate) readBlock(ctx context.Context, hash *chainhash.Hash) (*model.Block, error) {
	reader, err := c.blockStore.GetIoReader(ctx, hash[:], blockFileOptions()...)
	if err != nil {
		return nil, errors.NewStorageError("[Chainstate] block %s is not stored", hash, err)
	}

	defer reader.Close()

	block, err := model.NewBlockFromReader(reader)
	if err != nil {
		return nil, errors.NewStoreCorruptError("[Chainstate] stored block %s does not parse", hash, err)
	}

	if !block.Hash().IsEqual(hash) {
		return nil, errors.NewStoreCorruptError("[Chainstate] stored block %s has hash %s", hash, block.Hash())
	}

	return block, nil
}

// isRuleViolation reports whether err condemns the block itself, as opposed
// to a local failure or a cancellation.
func isRuleViolation(err error) bool {
	switch errors.KindOf(err) {
	case errors.KindStructural, errors.KindConsensus:
		return true
	default:
		return false
	}
}
