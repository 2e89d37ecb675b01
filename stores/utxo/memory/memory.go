// Package memory is a volatile chainstate backend used by tests and tooling.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/dolthub/swiss"
)

var _ utxo.Store = (*Memory)(nil)

// Memory keeps coins in a swiss map, which uses a lot less memory than the
// standard map for large sets. Coins are stored encoded so that readers never
// share state with the writer.
type Memory struct {
	logger ulogger.Logger
	mu     sync.RWMutex
	coins  *swiss.Map[utxo.Outpoint, []byte]
	undos  map[chainhash.Hash][]byte
	best   *utxo.BestBlock
}

func New(logger ulogger.Logger) *Memory {
	return &Memory{
		logger: logger,
		coins:  swiss.NewMap[utxo.Outpoint, []byte](1024),
		undos:  make(map[chainhash.Hash][]byte),
	}
}

func (m *Memory) GetCoin(_ context.Context, outpoint utxo.Outpoint) (*utxo.Coin, error) {
	m.mu.RLock()
	value, ok := m.coins.Get(outpoint)
	m.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError("coin %s not found", outpoint)
	}

	return utxo.NewCoinFromBytes(value)
}

func (m *Memory) GetBestBlock(_ context.Context) (*utxo.BestBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.best == nil {
		return nil, errors.NewNotFoundError("no best block marker")
	}

	best := *m.best

	return &best, nil
}

func (m *Memory) GetUndo(_ context.Context, blockHash *chainhash.Hash) (*utxo.UndoData, error) {
	m.mu.RLock()
	value, ok := m.undos[*blockHash]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError("undo record for block %s not found", blockHash)
	}

	return utxo.NewUndoDataFromBytes(value)
}

func (m *Memory) ApplyBlock(ctx context.Context, block *model.Block, height uint32) (*utxo.UndoData, error) {
	return utxo.ApplyBlock(ctx, m, block, height)
}

func (m *Memory) UndoBlock(ctx context.Context, undo *utxo.UndoData) error {
	return utxo.UndoBlock(ctx, m, undo)
}

func (m *Memory) NewView() *utxo.View {
	return utxo.NewView(m)
}

func (m *Memory) Commit(_ context.Context, cs *utxo.ChangeSet) error {
	if cs.IsEmpty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, change := range cs.Coins {
		if change.Coin == nil {
			m.coins.Delete(change.Outpoint)
		} else {
			m.coins.Put(change.Outpoint, change.Coin.Bytes())
		}
	}

	for _, undo := range cs.UndoPuts {
		m.undos[undo.BlockHash] = undo.Bytes()
	}

	for _, hash := range cs.UndoDeletes {
		delete(m.undos, hash)
	}

	if cs.BestBlock != nil {
		best := *cs.BestBlock
		m.best = &best
	}

	return nil
}

func (m *Memory) DeleteUndo(_ context.Context, blockHashes ...chainhash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hash := range blockHashes {
		delete(m.undos, hash)
	}

	return nil
}

// Iterate visits coins in outpoint order, matching the leveldb backend.
func (m *Memory) Iterate(ctx context.Context, fn utxo.IterateFunc) error {
	type record struct {
		outpoint utxo.Outpoint
		value    []byte
	}

	m.mu.RLock()
	records := make([]record, 0, m.coins.Count())
	m.coins.Iter(func(outpoint utxo.Outpoint, value []byte) bool {
		records = append(records, record{outpoint: outpoint, value: value})
		return false
	})
	m.mu.RUnlock()

	slices.SortFunc(records, func(a, b record) int {
		return slices.Compare(a.outpoint.Bytes(), b.outpoint.Bytes())
	})

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return errors.NewContextCanceledError("[memory] iteration cancelled", err)
		}

		coin, err := utxo.NewCoinFromBytes(r.value)
		if err != nil {
			return err
		}

		if err = fn(r.outpoint, coin); err != nil {
			return err
		}
	}

	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.coins.Clear()
	m.undos = make(map[chainhash.Hash][]byte)
	m.best = nil

	return nil
}

func (m *Memory) Stats(_ context.Context) (*utxo.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &utxo.Stats{
		UndoRecords: uint64(len(m.undos)),
	}

	var err error

	m.coins.Iter(func(_ utxo.Outpoint, value []byte) bool {
		coin, decodeErr := utxo.NewCoinFromBytes(value)
		if decodeErr != nil {
			err = decodeErr
			return true
		}

		stats.Coins++
		stats.TotalValue += coin.Value

		return false
	})

	if err != nil {
		return nil, err
	}

	if m.best != nil {
		best := *m.best
		stats.BestBlock = &best
	}

	return stats, nil
}

func (m *Memory) Close(_ context.Context) error {
	return nil
}
