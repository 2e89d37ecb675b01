// Package blob stores raw serialized blocks keyed by block hash. The chainstate
// keeps every connected block here so that it can re-read blocks on a reorg and
// replay them on a reindex; pruning deletes the old ones.
package blob

import (
	"context"
	"io"

	"github.com/bsv-blockchain/chainstate/stores/blob/options"
)

// Store defines the blob storage operations.
//
// Implementations:
//   - memory: in-memory storage, used in tests
//   - file: filesystem storage, one file per blob
type Store interface {
	// Health returns an HTTP status code and a description of the store state.
	Health(ctx context.Context, checkLiveness bool) (int, string, error)

	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, key []byte, opts ...options.FileOption) (bool, error)

	// Get returns the blob stored under key, or a BlobNotFound error.
	Get(ctx context.Context, key []byte, opts ...options.FileOption) ([]byte, error)

	// GetIoReader streams the blob stored under key. The caller closes the reader.
	GetIoReader(ctx context.Context, key []byte, opts ...options.FileOption) (io.ReadCloser, error)

	// Set stores value under key. Unless AllowOverwrite is set, an existing blob
	// results in a BlobExists error.
	Set(ctx context.Context, key []byte, value []byte, opts ...options.FileOption) error

	// SetFromReader stores the content of value under key and closes value.
	SetFromReader(ctx context.Context, key []byte, value io.ReadCloser, opts ...options.FileOption) error

	// Del removes the blob stored under key. Deleting a missing blob is not an error.
	Del(ctx context.Context, key []byte, opts ...options.FileOption) error

	Close(ctx context.Context) error
}
