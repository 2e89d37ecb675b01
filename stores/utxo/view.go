package utxo

import (
	"bytes"
	"context"
	"slices"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	"github.com/dolthub/swiss"
)

// bip30Exceptions are the two mainnet heights whose coinbase duplicates an
// earlier, still unspent coinbase.
var bip30Exceptions = map[uint32]struct{}{
	91842: {},
	91880: {},
}

type viewEntry struct {
	coin *Coin // nil when spent in this view
	// fresh means the backing store does not hold this outpoint, so spending it needs no delete.
	fresh bool
	dirty bool
}

// View is an in-memory overlay on a Reader. It is not safe for concurrent
// mutation; callers serialize writers.
type View struct {
	base    Reader
	entries *swiss.Map[Outpoint, *viewEntry]

	undoPuts    []*UndoData
	undoDeletes map[chainhash.Hash]struct{}

	best       *BestBlock
	bestLoaded bool
	bestDirty  bool
}

func NewView(base Reader) *View {
	return &View{
		base:        base,
		entries:     swiss.NewMap[Outpoint, *viewEntry](1024),
		undoDeletes: make(map[chainhash.Hash]struct{}),
	}
}

// GetCoin returns the coin at outpoint as seen through the view.
func (v *View) GetCoin(ctx context.Context, outpoint Outpoint) (*Coin, error) {
	entry, err := v.fetch(ctx, outpoint)
	if err != nil {
		return nil, err
	}

	if entry == nil || entry.coin == nil {
		return nil, errors.NewNotFoundError("coin %s not found", outpoint)
	}

	return entry.coin, nil
}

func (v *View) HaveCoin(ctx context.Context, outpoint Outpoint) (bool, error) {
	entry, err := v.fetch(ctx, outpoint)
	if err != nil {
		return false, err
	}

	return entry != nil && entry.coin != nil, nil
}

// AddCoin creates an unspent output. Adding over an unspent coin fails with
// ErrUtxoExists unless overwrite is set.
func (v *View) AddCoin(ctx context.Context, outpoint Outpoint, coin *Coin, overwrite bool) error {
	entry, err := v.fetch(ctx, outpoint)
	if err != nil {
		return err
	}

	if entry != nil && entry.coin != nil && !overwrite {
		return errors.NewUtxoExistsError("coin %s already exists", outpoint)
	}

	if entry == nil {
		v.entries.Put(outpoint, &viewEntry{coin: coin, fresh: true, dirty: true})
		return nil
	}

	entry.coin = coin
	entry.dirty = true

	return nil
}

// SpendCoin removes an unspent output and returns it.
func (v *View) SpendCoin(ctx context.Context, outpoint Outpoint) (*Coin, error) {
	entry, err := v.fetch(ctx, outpoint)
	if err != nil {
		return nil, err
	}

	if entry == nil || entry.coin == nil {
		return nil, errors.NewNotFoundError("coin %s not found or already spent", outpoint)
	}

	coin := entry.coin

	if entry.fresh {
		v.entries.Delete(outpoint)
		return coin, nil
	}

	entry.coin = nil
	entry.dirty = true

	return coin, nil
}

// fetch returns the view entry for outpoint, loading it from the base store
// on first access. A nil entry means the outpoint is unknown to both.
func (v *View) fetch(ctx context.Context, outpoint Outpoint) (*viewEntry, error) {
	if entry, ok := v.entries.Get(outpoint); ok {
		return entry, nil
	}

	coin, err := v.base.GetCoin(ctx, outpoint)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	entry := &viewEntry{coin: coin}
	v.entries.Put(outpoint, entry)

	return entry, nil
}

// BestBlock returns the block the view currently corresponds to, or nil for an empty chainstate.
func (v *View) BestBlock(ctx context.Context) (*BestBlock, error) {
	if v.bestLoaded {
		return v.best, nil
	}

	best, err := v.base.GetBestBlock(ctx)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	v.best = best
	v.bestLoaded = true

	return v.best, nil
}

func (v *View) SetBestBlock(hash *chainhash.Hash, height uint32) {
	v.best = &BestBlock{Hash: *hash, Height: height}
	v.bestLoaded = true
	v.bestDirty = true
}

// ApplyBlock connects block at height on top of the view's best block and
// returns the undo record. The genesis block only moves the marker: its
// coinbase is not spendable.
func (v *View) ApplyBlock(ctx context.Context, block *model.Block, height uint32) (*UndoData, error) {
	if err := checkHeight(height); err != nil {
		return nil, err
	}

	best, err := v.BestBlock(ctx)
	if err != nil {
		return nil, err
	}

	if best != nil && !best.Hash.IsEqual(block.Header.HashPrevBlock) {
		return nil, errors.NewProcessingError("[ApplyBlock][%s] parent %s is not the best block %s", block.Hash(), block.Header.HashPrevBlock, best.Hash)
	}

	undo := &UndoData{
		BlockHash: *block.Hash(),
		PrevHash:  *block.Header.HashPrevBlock,
		Height:    height,
	}

	if height > 0 {
		if err = v.connectTransactions(ctx, block, height, undo); err != nil {
			return nil, err
		}
	}

	v.putUndo(undo)
	v.SetBestBlock(block.Hash(), height)

	return undo, nil
}

func (v *View) connectTransactions(ctx context.Context, block *model.Block, height uint32, undo *UndoData) error {
	created := make(map[Outpoint]int)
	spentInBlock := make(map[int]struct{})

	_, bip30Exception := bip30Exceptions[height]

	for txIdx, tx := range block.Transactions {
		if err := ctx.Err(); err != nil {
			return errors.NewContextCanceledError("[ApplyBlock][%s] cancelled", block.Hash(), err)
		}

		isCoinbase := txIdx == 0

		if !isCoinbase {
			for _, input := range tx.Inputs {
				outpoint := OutpointFromInput(input)

				coin, err := v.SpendCoin(ctx, outpoint)
				if err != nil {
					if errors.Is(err, errors.ErrNotFound) {
						return errors.NewTxInvalidDoubleSpendError("[ApplyBlock][%s] tx %s spends missing or spent coin %s", block.Hash(), tx.TxIDChainHash(), outpoint)
					}

					return err
				}

				if idx, ok := created[outpoint]; ok {
					spentInBlock[idx] = struct{}{}
					continue
				}

				undo.Spent = append(undo.Spent, SpentCoin{Outpoint: outpoint, Coin: coin})
			}
		}

		txID := tx.TxIDChainHash()

		for i, output := range tx.Outputs {
			if output.LockingScript != nil && IsUnspendable(*output.LockingScript) {
				continue
			}

			index, err := safeconversion.IntToUint32(i)
			if err != nil {
				return errors.NewProcessingError("[ApplyBlock][%s] output index out of range", block.Hash(), err)
			}

			outpoint := NewOutpoint(txID, index)

			if err = v.AddCoin(ctx, outpoint, NewCoin(output, height, isCoinbase), isCoinbase && bip30Exception); err != nil {
				if errors.Is(err, errors.ErrUtxoExists) {
					return errors.NewBlockInvalidError("[ApplyBlock][%s] bad-txns-BIP30: tx %s overwrites unspent output", block.Hash(), txID, err)
				}

				return err
			}

			created[outpoint] = len(undo.Created)
			undo.Created = append(undo.Created, outpoint)
		}
	}

	if len(spentInBlock) > 0 {
		kept := undo.Created[:0]

		for i, outpoint := range undo.Created {
			if _, ok := spentInBlock[i]; !ok {
				kept = append(kept, outpoint)
			}
		}

		undo.Created = kept
	}

	return nil
}

// UndoBlock disconnects the view's best block. Any mismatch between the undo
// record and the coins in the view is reported as store corruption.
func (v *View) UndoBlock(ctx context.Context, undo *UndoData) error {
	best, err := v.BestBlock(ctx)
	if err != nil {
		return err
	}

	if best == nil || !best.Hash.IsEqual(&undo.BlockHash) {
		return errors.NewProcessingError("[UndoBlock][%s] block is not the best block", undo.BlockHash)
	}

	if undo.Height == 0 {
		return errors.NewProcessingError("[UndoBlock][%s] genesis block cannot be disconnected", undo.BlockHash)
	}

	for i := len(undo.Created) - 1; i >= 0; i-- {
		outpoint := undo.Created[i]

		coin, err := v.SpendCoin(ctx, outpoint)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return errors.NewStoreCorruptError("[UndoBlock][%s] created coin %s is missing", undo.BlockHash, outpoint)
			}

			return err
		}

		if coin.Height != undo.Height {
			return errors.NewStoreCorruptError("[UndoBlock][%s] created coin %s has height %d, expected %d", undo.BlockHash, outpoint, coin.Height, undo.Height)
		}
	}

	for i := len(undo.Spent) - 1; i >= 0; i-- {
		spent := undo.Spent[i]

		if err = v.AddCoin(ctx, spent.Outpoint, spent.Coin.Clone(), false); err != nil {
			if errors.Is(err, errors.ErrUtxoExists) {
				return errors.NewStoreCorruptError("[UndoBlock][%s] spent coin %s is unspent", undo.BlockHash, spent.Outpoint)
			}

			return err
		}
	}

	v.deleteUndo(undo.BlockHash)
	v.SetBestBlock(&undo.PrevHash, undo.Height-1)

	return nil
}

func (v *View) putUndo(undo *UndoData) {
	delete(v.undoDeletes, undo.BlockHash)
	v.undoPuts = append(v.undoPuts, undo)
}

func (v *View) deleteUndo(hash chainhash.Hash) {
	v.undoPuts = slices.DeleteFunc(v.undoPuts, func(u *UndoData) bool {
		return u.BlockHash.IsEqual(&hash)
	})
	v.undoDeletes[hash] = struct{}{}
}

// Len returns the number of cached entries.
func (v *View) Len() int {
	return v.entries.Count()
}

// ChangeSet returns the pending writes in a deterministic order.
func (v *View) ChangeSet() *ChangeSet {
	cs := &ChangeSet{}

	v.entries.Iter(func(outpoint Outpoint, entry *viewEntry) bool {
		if entry.dirty {
			cs.Coins = append(cs.Coins, CoinChange{Outpoint: outpoint, Coin: entry.coin})
		}

		return false
	})

	slices.SortFunc(cs.Coins, func(a, b CoinChange) int {
		return a.Outpoint.Compare(b.Outpoint)
	})

	cs.UndoPuts = append(cs.UndoPuts, v.undoPuts...)

	for hash := range v.undoDeletes {
		cs.UndoDeletes = append(cs.UndoDeletes, hash)
	}

	slices.SortFunc(cs.UndoDeletes, func(a, b chainhash.Hash) int {
		return bytes.Compare(a[:], b[:])
	})

	if v.bestDirty {
		best := *v.best
		cs.BestBlock = &best
	}

	return cs
}
