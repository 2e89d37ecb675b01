// Package leveldb is the durable chainstate backend. Every commit is a single
// synced leveldb batch, so coins, undo records and the best-block marker can
// never disagree after a crash.
package leveldb

import (
	"context"
	"encoding/binary"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/util"
)

const (
	prefixCoin = 'c'
	prefixUndo = 'u'
	keyBest    = 'B'

	clearBatchSize = 10_000
)

var _ utxo.Store = (*Store)(nil)

type Store struct {
	logger ulogger.Logger
	db     *leveldb.DB
	path   string
	sync   bool
	closed atomic.Bool
}

// New opens (or creates) the chainstate database at storeURL. A host of "."
// makes the path relative, as in leveldb://./data/chainstate.
func New(logger ulogger.Logger, storeURL *url.URL, sync bool) (*Store, error) {
	path := storeURL.Path
	if storeURL.Host == "." {
		path = storeURL.Path[1:]
	}

	return Open(logger, path, sync)
}

func Open(logger ulogger.Logger, path string, sync bool) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.NewStorageError("[leveldb] failed to create directory %s", path, err)
	}

	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: 64 * opt.MiB,
		WriteBuffer:        32 * opt.MiB,
	})
	if err != nil {
		return nil, errors.NewStorageError("[leveldb] failed to open %s", path, err)
	}

	logger.Infof("[leveldb] opened chainstate at %s (sync=%t)", path, sync)

	return &Store{
		logger: logger,
		db:     db,
		path:   path,
		sync:   sync,
	}, nil
}

func coinKey(outpoint utxo.Outpoint) []byte {
	key := make([]byte, 1, 1+utxo.OutpointSize)
	key[0] = prefixCoin

	return append(key, outpoint.Bytes()...)
}

func undoKey(hash *chainhash.Hash) []byte {
	key := make([]byte, 1, 1+chainhash.HashSize)
	key[0] = prefixUndo

	return append(key, hash[:]...)
}

func (s *Store) GetCoin(_ context.Context, outpoint utxo.Outpoint) (*utxo.Coin, error) {
	value, err := s.db.Get(coinKey(outpoint), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.NewNotFoundError("coin %s not found", outpoint)
		}

		return nil, errors.NewStorageError("[leveldb] failed to read coin %s", outpoint, err)
	}

	coin, err := utxo.NewCoinFromBytes(value)
	if err != nil {
		return nil, errors.NewStoreCorruptError("[leveldb] coin %s", outpoint, err)
	}

	return coin, nil
}

func (s *Store) GetBestBlock(_ context.Context) (*utxo.BestBlock, error) {
	value, err := s.db.Get([]byte{keyBest}, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.NewNotFoundError("no best block marker")
		}

		return nil, errors.NewStorageError("[leveldb] failed to read best block marker", err)
	}

	if len(value) != chainhash.HashSize+4 {
		return nil, errors.NewStoreCorruptError("[leveldb] best block marker has %d bytes", len(value))
	}

	best := &utxo.BestBlock{Height: binary.LittleEndian.Uint32(value[chainhash.HashSize:])}
	copy(best.Hash[:], value[:chainhash.HashSize])

	return best, nil
}

func (s *Store) GetUndo(_ context.Context, blockHash *chainhash.Hash) (*utxo.UndoData, error) {
	value, err := s.db.Get(undoKey(blockHash), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.NewNotFoundError("undo record for block %s not found", blockHash)
		}

		return nil, errors.NewStorageError("[leveldb] failed to read undo record %s", blockHash, err)
	}

	undo, err := utxo.NewUndoDataFromBytes(value)
	if err != nil {
		return nil, errors.NewStoreCorruptError("[leveldb] undo record %s", blockHash, err)
	}

	return undo, nil
}

func (s *Store) ApplyBlock(ctx context.Context, block *model.Block, height uint32) (*utxo.UndoData, error) {
	return utxo.ApplyBlock(ctx, s, block, height)
}

func (s *Store) UndoBlock(ctx context.Context, undo *utxo.UndoData) error {
	return utxo.UndoBlock(ctx, s, undo)
}

func (s *Store) NewView() *utxo.View {
	return utxo.NewView(s)
}

// Commit writes the change set as one batch. The best-block marker is the
// last record in the batch.
func (s *Store) Commit(ctx context.Context, cs *utxo.ChangeSet) error {
	if cs.IsEmpty() {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return errors.NewContextCanceledError("[leveldb] commit cancelled", err)
	}

	batch := new(leveldb.Batch)

	for _, change := range cs.Coins {
		if change.Coin == nil {
			batch.Delete(coinKey(change.Outpoint))
		} else {
			batch.Put(coinKey(change.Outpoint), change.Coin.Bytes())
		}
	}

	for _, undo := range cs.UndoPuts {
		batch.Put(undoKey(&undo.BlockHash), undo.Bytes())
	}

	for i := range cs.UndoDeletes {
		batch.Delete(undoKey(&cs.UndoDeletes[i]))
	}

	if cs.BestBlock != nil {
		value := make([]byte, chainhash.HashSize+4)
		copy(value, cs.BestBlock.Hash[:])
		binary.LittleEndian.PutUint32(value[chainhash.HashSize:], cs.BestBlock.Height)

		batch.Put([]byte{keyBest}, value)
	}

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: s.sync}); err != nil {
		return errors.NewStorageError("[leveldb] failed to commit %d records", batch.Len(), err)
	}

	return nil
}

func (s *Store) DeleteUndo(_ context.Context, blockHashes ...chainhash.Hash) error {
	if len(blockHashes) == 0 {
		return nil
	}

	batch := new(leveldb.Batch)
	for i := range blockHashes {
		batch.Delete(undoKey(&blockHashes[i]))
	}

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: s.sync}); err != nil {
		return errors.NewStorageError("[leveldb] failed to delete %d undo records", len(blockHashes), err)
	}

	return nil
}

// Iterate walks the coins in key order on a consistent snapshot.
func (s *Store) Iterate(ctx context.Context, fn utxo.IterateFunc) error {
	snapshot, err := s.db.GetSnapshot()
	if err != nil {
		return errors.NewStorageError("[leveldb] failed to take snapshot", err)
	}
	defer snapshot.Release()

	iter := snapshot.NewIterator(util.BytesPrefix([]byte{prefixCoin}), nil)
	defer iter.Release()

	for iter.Next() {
		if err = ctx.Err(); err != nil {
			return errors.NewContextCanceledError("[leveldb] iteration cancelled", err)
		}

		outpoint, decodeErr := utxo.NewOutpointFromBytes(iter.Key()[1:])
		if decodeErr != nil {
			return decodeErr
		}

		coin, decodeErr := utxo.NewCoinFromBytes(iter.Value())
		if decodeErr != nil {
			return errors.NewStoreCorruptError("[leveldb] coin %s", outpoint, decodeErr)
		}

		if err = fn(outpoint, coin); err != nil {
			return err
		}
	}

	if err = iter.Error(); err != nil {
		return errors.NewStorageError("[leveldb] iteration failed", err)
	}

	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	deleted := 0

	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))

		if batch.Len() >= clearBatchSize {
			if err := s.db.Write(batch, nil); err != nil {
				return errors.NewStorageError("[leveldb] failed to clear chainstate", err)
			}

			deleted += batch.Len()
			batch.Reset()

			if err := ctx.Err(); err != nil {
				return errors.NewContextCanceledError("[leveldb] clear cancelled", err)
			}
		}
	}

	if err := iter.Error(); err != nil {
		return errors.NewStorageError("[leveldb] failed to clear chainstate", err)
	}

	deleted += batch.Len()

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.NewStorageError("[leveldb] failed to clear chainstate", err)
	}

	s.logger.Infof("[leveldb] cleared %d records from %s", deleted, s.path)

	return nil
}

func (s *Store) Stats(ctx context.Context) (*utxo.Stats, error) {
	stats := &utxo.Stats{}

	err := s.Iterate(ctx, func(_ utxo.Outpoint, coin *utxo.Coin) error {
		stats.Coins++
		stats.TotalValue += coin.Value

		return nil
	})
	if err != nil {
		return nil, err
	}

	iter := s.db.NewIterator(util.BytesPrefix([]byte{prefixUndo}), nil)
	for iter.Next() {
		stats.UndoRecords++
	}

	iter.Release()

	best, err := s.GetBestBlock(ctx)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	stats.BestBlock = best

	return stats, nil
}

func (s *Store) Close(_ context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return errors.NewStorageError("[leveldb] failed to close %s", s.path, err)
	}

	return nil
}
