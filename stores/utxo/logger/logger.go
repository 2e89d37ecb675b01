// Package logger wraps a chainstate store and logs every call together with
// its result and the call site.
package logger

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

const modulePath = "github.com/bsv-blockchain/chainstate/"

type Store struct {
	logger ulogger.Logger
	store  utxo.Store
}

func New(logger ulogger.Logger, store utxo.Store) utxo.Store {
	return &Store{
		logger: logger,
		store:  store,
	}
}

func caller() string {
	var callers []string

	for i := 0; i < 3; i++ {
		pc, file, line, ok := runtime.Caller(2 + i)
		if !ok {
			break
		}

		if idx := strings.Index(file, modulePath); idx >= 0 {
			file = file[idx+len(modulePath):]
		} else {
			file = filepath.Base(file)
		}

		funcName := runtime.FuncForPC(pc).Name()
		funcPaths := strings.Split(funcName, "/")
		funcName = funcPaths[len(funcPaths)-1]

		callers = append(callers, fmt.Sprintf("called from %s: %s:%d", funcName, file, line))
	}

	return strings.Join(callers, ",")
}

func (s *Store) GetCoin(ctx context.Context, outpoint utxo.Outpoint) (*utxo.Coin, error) {
	coin, err := s.store.GetCoin(ctx, outpoint)
	s.logger.Infof("[UTXOStore][logger][GetCoin] outpoint %s coin %v err %v : %s", outpoint, coin, err, caller())

	return coin, err
}

func (s *Store) GetBestBlock(ctx context.Context) (*utxo.BestBlock, error) {
	best, err := s.store.GetBestBlock(ctx)
	s.logger.Infof("[UTXOStore][logger][GetBestBlock] best %v err %v : %s", best, err, caller())

	return best, err
}

func (s *Store) GetUndo(ctx context.Context, blockHash *chainhash.Hash) (*utxo.UndoData, error) {
	undo, err := s.store.GetUndo(ctx, blockHash)
	s.logger.Infof("[UTXOStore][logger][GetUndo] block %s err %v : %s", blockHash, err, caller())

	return undo, err
}

func (s *Store) ApplyBlock(ctx context.Context, block *model.Block, height uint32) (*utxo.UndoData, error) {
	undo, err := s.store.ApplyBlock(ctx, block, height)

	var spent, created int
	if undo != nil {
		spent, created = len(undo.Spent), len(undo.Created)
	}

	s.logger.Infof("[UTXOStore][logger][ApplyBlock] block %s height %d txs %d spent %d created %d err %v : %s",
		block.Hash(), height, len(block.Transactions), spent, created, err, caller())

	return undo, err
}

func (s *Store) UndoBlock(ctx context.Context, undo *utxo.UndoData) error {
	err := s.store.UndoBlock(ctx, undo)
	s.logger.Infof("[UTXOStore][logger][UndoBlock] block %s height %d restored %d removed %d err %v : %s",
		undo.BlockHash, undo.Height, len(undo.Spent), len(undo.Created), err, caller())

	return err
}

// NewView layers the view on the wrapper so that reads through it are logged too.
func (s *Store) NewView() *utxo.View {
	return utxo.NewView(s)
}

func (s *Store) Commit(ctx context.Context, cs *utxo.ChangeSet) error {
	err := s.store.Commit(ctx, cs)
	s.logger.Infof("[UTXOStore][logger][Commit] coins %d undoPuts %d undoDeletes %d best %v err %v : %s",
		len(cs.Coins), len(cs.UndoPuts), len(cs.UndoDeletes), cs.BestBlock, err, caller())

	return err
}

func (s *Store) DeleteUndo(ctx context.Context, blockHashes ...chainhash.Hash) error {
	err := s.store.DeleteUndo(ctx, blockHashes...)
	s.logger.Infof("[UTXOStore][logger][DeleteUndo] blocks %d err %v : %s", len(blockHashes), err, caller())

	return err
}

func (s *Store) Iterate(ctx context.Context, fn utxo.IterateFunc) error {
	err := s.store.Iterate(ctx, fn)
	s.logger.Infof("[UTXOStore][logger][Iterate] err %v : %s", err, caller())

	return err
}

func (s *Store) Clear(ctx context.Context) error {
	err := s.store.Clear(ctx)
	s.logger.Infof("[UTXOStore][logger][Clear] err %v : %s", err, caller())

	return err
}

func (s *Store) Stats(ctx context.Context) (*utxo.Stats, error) {
	stats, err := s.store.Stats(ctx)
	s.logger.Infof("[UTXOStore][logger][Stats] stats %v err %v : %s", stats, err, caller())

	return stats, err
}

func (s *Store) Close(ctx context.Context) error {
	err := s.store.Close(ctx)
	s.logger.Infof("[UTXOStore][logger][Close] err %v : %s", err, caller())

	return err
}
