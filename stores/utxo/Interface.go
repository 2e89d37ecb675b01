// Package utxo defines the chainstate store: the set of unspent transaction
// outputs at the active tip, the undo records needed to disconnect blocks and
// the best-block marker that ties the two together.
//
// All mutations flow through a View. A View stages coin additions and spends
// in memory and produces a ChangeSet, which a Store commits as a single atomic
// write together with the undo records and the new best-block marker. A crash
// therefore leaves the store either entirely before or entirely after a commit.
//
// Backends:
//   - leveldb: "leveldb:///path/to/chainstate"
//   - memory:  "memory://" (tests and tooling)
package utxo

import (
	"context"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// CoinReader resolves unspent outputs. GetCoin returns an error matching
// errors.ErrNotFound when the outpoint is not in the set.
type CoinReader interface {
	GetCoin(ctx context.Context, outpoint Outpoint) (*Coin, error)
}

// Reader is the read side of a store that a View is layered on.
type Reader interface {
	CoinReader
	GetBestBlock(ctx context.Context) (*BestBlock, error)
}

// BestBlock is the block the store's coin set corresponds to.
type BestBlock struct {
	Hash   chainhash.Hash
	Height uint32
}

type Stats struct {
	Coins       uint64
	TotalValue  uint64
	UndoRecords uint64
	BestBlock   *BestBlock
}

// IterateFunc is called for every coin in the store. Returning an error stops the iteration.
type IterateFunc func(outpoint Outpoint, coin *Coin) error

// CoinChange is a pending coin write. A nil Coin deletes the outpoint.
type CoinChange struct {
	Outpoint Outpoint
	Coin     *Coin
}

// ChangeSet is everything a single commit writes.
type ChangeSet struct {
	Coins       []CoinChange
	UndoPuts    []*UndoData
	UndoDeletes []chainhash.Hash
	// BestBlock is written last; nil leaves the marker untouched.
	BestBlock *BestBlock
}

func (cs *ChangeSet) IsEmpty() bool {
	return cs == nil || (len(cs.Coins) == 0 && len(cs.UndoPuts) == 0 && len(cs.UndoDeletes) == 0 && cs.BestBlock == nil)
}

type Store interface {
	Reader

	// GetUndo returns the undo record of a connected block.
	GetUndo(ctx context.Context, blockHash *chainhash.Hash) (*UndoData, error)

	// ApplyBlock connects a block on top of the current best block and commits the result.
	ApplyBlock(ctx context.Context, block *model.Block, height uint32) (*UndoData, error)

	// UndoBlock disconnects the current best block using its undo record and commits the result.
	UndoBlock(ctx context.Context, undo *UndoData) error

	NewView() *View
	Commit(ctx context.Context, cs *ChangeSet) error

	// DeleteUndo removes undo records of blocks that can no longer be disconnected.
	DeleteUndo(ctx context.Context, blockHashes ...chainhash.Hash) error

	Iterate(ctx context.Context, fn IterateFunc) error

	// Clear removes every coin, undo record and the best-block marker.
	Clear(ctx context.Context) error

	Stats(ctx context.Context) (*Stats, error)
	Close(ctx context.Context) error
}

// ApplyBlock connects a block through a fresh view on store and commits it.
// Backends use it to implement Store.ApplyBlock.
func ApplyBlock(ctx context.Context, store Store, block *model.Block, height uint32) (*UndoData, error) {
	view := store.NewView()

	undo, err := view.ApplyBlock(ctx, block, height)
	if err != nil {
		return nil, err
	}

	if err = store.Commit(ctx, view.ChangeSet()); err != nil {
		return nil, err
	}

	return undo, nil
}

// UndoBlock disconnects the best block through a fresh view on store and commits it.
func UndoBlock(ctx context.Context, store Store, undo *UndoData) error {
	view := store.NewView()

	if err := view.UndoBlock(ctx, undo); err != nil {
		return err
	}

	return store.Commit(ctx, view.ChangeSet())
}
