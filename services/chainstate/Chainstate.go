/*
Package chainstate ties the block index, the UTXO set, the mempool and the fee
estimator together behind one handle.

All mutations (block and transaction intake, reorganizations, invalidation,
reindex) run under the handle's write lock, so the UTXO set, the block index
and the mempool always describe the same tip. Read-only queries share a read
lock and run concurrently with each other.

Changes of the active tip go through ActivateBestChain: every disconnect and
connect of a reorganization is staged in a single UTXO view and committed in
one atomic write, and the mempool, fee estimator and block index are only
updated once that write succeeded. A failed commit latches the handle into a
read-only corrupt state that only a reindex clears.
*/
package chainstate

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/blockchain"
	"github.com/bsv-blockchain/chainstate/services/blockvalidation"
	"github.com/bsv-blockchain/chainstate/services/feeestimator"
	"github.com/bsv-blockchain/chainstate/services/mempool"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/blob"
	blockchain_store "github.com/bsv-blockchain/chainstate/stores/blockchain"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	utxofactory "github.com/bsv-blockchain/chainstate/stores/utxo/factory"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/atomic"
)

var _ mempool.FeeTracker = (*feeestimator.Estimator)(nil)

const pruneHeightKey = "pruneheight"

type orphanBlock struct {
	block    *model.Block
	fromPeer string
}

type Chainstate struct {
	logger   ulogger.Logger
	settings *settings.Settings
	params   *chaincfg.Params

	mu           sync.RWMutex
	index        *blockchain.Index
	indexStore   blockchain_store.Store
	utxoStore    utxo.Store
	blockStore   blob.Store
	txValidator  validator.Interface
	validation   *blockvalidation.BlockValidation
	mempool      *mempool.Mempool
	feeEstimator *feeestimator.Estimator
	orphanBlocks *ttlcache.Cache[chainhash.Hash, *orphanBlock]
	tip          *blockchain.Entry
	pruneHeight  uint32

	corrupt        *atomic.Bool
	verdictHandler VerdictHandler
	now            func() time.Time
}

// New opens a chainstate on the given stores. The block index is loaded from
// indexStore and the active tip is recovered from the UTXO store's best-block
// marker; blocks stored beyond it are replayed. When the chainstate_reindex
// setting is "full" or "chainstate" a reindex runs instead.
func New(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings, utxoStore utxo.Store,
	indexStore blockchain_store.Store, blockStore blob.Store, opts ...Option) (*Chainstate, error) {
	initPrometheusMetrics()

	if tSettings.BlockStore.Prune && tSettings.BlockStore.PruneKeepBlocks < 1 {
		return nil, errors.NewConfigurationError("blockstore_pruneKeepBlocks must be at least 1 when pruning, got %d", tSettings.BlockStore.PruneKeepBlocks)
	}

	c := &Chainstate{
		logger:     logger,
		settings:   tSettings,
		params:     tSettings.ChainCfgParams,
		utxoStore:  utxoStore,
		indexStore: indexStore,
		blockStore: blockStore,
		corrupt:    atomic.NewBool(false),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	txValidator, err := validator.NewTxValidator(logger, tSettings)
	if err != nil {
		return nil, err
	}

	c.txValidator = txValidator

	if c.feeEstimator, err = feeestimator.New(logger, tSettings); err != nil {
		return nil, err
	}

	if c.mempool, err = mempool.New(logger, tSettings, txValidator, utxoStore,
		mempool.WithFeeTracker(c.feeEstimator),
		mempool.WithClock(c.now),
	); err != nil {
		return nil, err
	}

	orphanOpts := []ttlcache.Option[chainhash.Hash, *orphanBlock]{
		ttlcache.WithTTL[chainhash.Hash, *orphanBlock](tSettings.BlockValidation.OrphanBlockTTL),
		ttlcache.WithDisableTouchOnHit[chainhash.Hash, *orphanBlock](),
	}

	if tSettings.BlockValidation.MaxOrphanBlocks > 0 {
		orphanOpts = append(orphanOpts, ttlcache.WithCapacity[chainhash.Hash, *orphanBlock](uint64(tSettings.BlockValidation.MaxOrphanBlocks)))
	}

	c.orphanBlocks = ttlcache.New[chainhash.Hash, *orphanBlock](orphanOpts...)

	if err = c.resetIndex(); err != nil {
		return nil, err
	}

	if err = c.index.LoadFromStore(ctx, indexStore); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if mode := tSettings.Chainstate.Reindex; mode != "" {
		reindexMode, err := ParseReindexMode(mode)
		if err != nil {
			return nil, err
		}

		if err = c.reindex(ctx, reindexMode); err != nil {
			return nil, err
		}

		return c, nil
	}

	if err = c.recover(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// NewFromSettings opens the stores configured in tSettings and a chainstate on them.
func NewFromSettings(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings, opts ...Option) (*Chainstate, error) {
	utxoStore, err := utxofactory.NewStore(ctx, logger, tSettings)
	if err != nil {
		return nil, err
	}

	indexStore, err := blockchain_store.NewStore(logger, tSettings.BlockChain.StoreURL, tSettings.DataFolder)
	if err != nil {
		_ = utxoStore.Close(ctx)
		return nil, err
	}

	blockStore, err := blob.NewStore(logger, blockStoreURL(tSettings))
	if err != nil {
		_ = utxoStore.Close(ctx)
		_ = indexStore.Close()

		return nil, err
	}

	c, err := New(ctx, logger, tSettings, utxoStore, indexStore, blockStore, opts...)
	if err != nil {
		_ = utxoStore.Close(ctx)
		_ = indexStore.Close()
		_ = blockStore.Close(ctx)

		return nil, err
	}

	return c, nil
}

func blockStoreURL(tSettings *settings.Settings) *url.URL {
	if tSettings.BlockStore.StoreURL != nil {
		return tSettings.BlockStore.StoreURL
	}

	return &url.URL{Scheme: "file", Path: tSettings.DataFolder + "/blocks"}
}

// resetIndex replaces the block index with one holding only genesis.
func (c *Chainstate) resetIndex() error {
	indexOpts := []blockchain.Option{blockchain.WithClock(c.now)}

	if d := c.settings.BlockValidation.MaxFutureBlockTime; d > 0 {
		indexOpts = append(indexOpts, blockchain.WithMaxFutureBlockTime(d))
	}

	index, err := blockchain.New(c.logger, c.params, indexOpts...)
	if err != nil {
		return err
	}

	c.index = index
	c.validation = blockvalidation.New(c.logger, c.settings, index, c.txValidator)

	return nil
}

// recover sets the active tip from the UTXO store's best-block marker and
// replays stored blocks beyond it. The caller holds mu.
func (c *Chainstate) recover(ctx context.Context) error {
	c.loadPruneHeight(ctx)

	best, err := c.utxoStore.GetBestBlock(ctx)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	if best == nil {
		c.logger.Infof("[Chainstate] empty chainstate, starting from genesis %s", c.params.GenesisHash)

		if err = c.connectGenesis(ctx); err != nil {
			return err
		}
	} else {
		entry := c.index.Get(&best.Hash)
		if entry == nil {
			return errors.NewStoreCorruptError("[Chainstate] best block %s is not in the block index, reindex required", best.Hash)
		}

		if entry.Height != best.Height {
			return errors.NewStoreCorruptError("[Chainstate] best block %s is at height %d in the block index, %d in the chainstate", best.Hash, entry.Height, best.Height)
		}

		// a crash between the UTXO commit and the index flush leaves the path below the tip behind
		for e := entry; e != nil && c.index.Status(e).Level < blockchain.ValidityChain; e = c.index.Parent(e) {
			c.index.RaiseValidity(e, blockchain.ValidityChain)
		}

		c.tip = entry
	}

	c.mempool.SetTip(c.mempoolTip(c.tip))
	prometheusChainstateTipHeight.Set(float64(c.tip.Height))

	c.logger.Infof("[Chainstate] recovered tip %s at height %d", c.tip.Hash, c.tip.Height)

	if _, err = c.activateBestChain(ctx); err != nil {
		return err
	}

	return c.flushIndex(ctx)
}

// connectGenesis commits the genesis block to an empty UTXO store. Genesis
// only sets the best-block marker; its coinbase is unspendable.
func (c *Chainstate) connectGenesis(ctx context.Context) error {
	genesis, err := model.GenesisBlock(c.params)
	if err != nil {
		return err
	}

	view := c.utxoStore.NewView()

	if _, err = view.ApplyBlock(ctx, genesis, 0); err != nil {
		return err
	}

	if err = c.utxoStore.Commit(ctx, view.ChangeSet()); err != nil {
		return err
	}

	c.tip = c.index.Genesis()
	prometheusChainstateTipHeight.Set(0)

	return nil
}

func (c *Chainstate) mempoolTip(entry *blockchain.Entry) mempool.Tip {
	return mempool.Tip{
		Hash:           entry.Hash,
		Height:         entry.Height,
		MedianTimePast: c.index.MedianTimePast(entry),
	}
}

// flushIndex persists every changed index entry. The index must never lag
// the UTXO store across a restart, so a failure latches the corrupt state.
func (c *Chainstate) flushIndex(ctx context.Context) error {
	if err := c.index.Flush(context.WithoutCancel(ctx), c.indexStore); err != nil {
		c.latchCorrupt("block index flush failed", err)
		return errors.NewStorageError("[Chainstate] failed to persist block index", err)
	}

	return nil
}

func (c *Chainstate) latchCorrupt(reason string, err error) {
	if c.corrupt.CompareAndSwap(false, true) {
		c.logger.Errorf("[Chainstate] %s, chainstate is read-only until reindex: %v", reason, err)
		prometheusChainstateCorrupt.Set(1)
	}
}

// checkWritable refuses mutations once the corrupt state is latched.
func (c *Chainstate) checkWritable() error {
	if c.corrupt.Load() {
		return errors.NewStoreCorruptError("chainstate is corrupt, reindex required")
	}

	return nil
}

// IsCorrupt reports whether a store failure latched the chainstate read-only.
func (c *Chainstate) IsCorrupt() bool {
	return c.corrupt.Load()
}

// Tip returns the active tip.
func (c *Chainstate) Tip() *blockchain.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.tip
}

// Close closes the stores.
func (c *Chainstate) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.orphanBlocks.DeleteAll()

	var errs []error

	if err := c.flushIndex(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := c.utxoStore.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := c.indexStore.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := c.blockStore.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
