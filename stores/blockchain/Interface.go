// Package blockchain persists the block index: one row per indexed header
// with its height, cumulative work and status, plus a small key/value state
// table.
package blockchain

import (
	"context"

	"github.com/bsv-blockchain/chainstate/model"
)

type Store interface {
	// StoreBlocks inserts or updates records in a single transaction. A
	// parent must be stored before its children, or precede them in records.
	StoreBlocks(ctx context.Context, records []*model.BlockIndexRecord) error

	// GetBlocks returns every record ordered by arrival.
	GetBlocks(ctx context.Context) ([]*model.BlockIndexRecord, error)

	// GetState returns a NotFound error for an unknown key.
	GetState(ctx context.Context, key string) ([]byte, error)
	SetState(ctx context.Context, key string, data []byte) error

	// Reset deletes all block records and state.
	Reset(ctx context.Context) error

	Close() error
}
