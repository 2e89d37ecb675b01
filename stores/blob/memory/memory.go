package memory

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/blob/options"
)

type Memory struct {
	mu         sync.RWMutex
	blobs      map[string][]byte
	options    *options.Options
	Counters   map[string]int
	countersMu sync.Mutex
}

func New(opts ...options.StoreOption) *Memory {
	return &Memory{
		blobs:    make(map[string][]byte),
		options:  options.NewStoreOptions(opts...),
		Counters: make(map[string]int),
	}
}

func (m *Memory) count(op string) {
	m.countersMu.Lock()
	m.Counters[op]++
	m.countersMu.Unlock()
}

// storeKey namespaces the key by extension and sub directory, the way the
// file store separates them on disk.
func storeKey(key []byte, merged *options.Options) string {
	return merged.SubDirectory + "/" + string(key) + "." + merged.Extension
}

func (m *Memory) Health(_ context.Context, _ bool) (int, string, error) {
	m.count("health")

	return http.StatusOK, "Memory Store", nil
}

func (m *Memory) Exists(_ context.Context, key []byte, opts ...options.FileOption) (bool, error) {
	m.count("exists")

	merged := options.MergeOptions(m.options, opts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blobs[storeKey(key, merged)]

	return ok, nil
}

func (m *Memory) Get(_ context.Context, key []byte, opts ...options.FileOption) ([]byte, error) {
	m.count("get")

	merged := options.MergeOptions(m.options, opts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.blobs[storeKey(key, merged)]
	if !ok {
		return nil, errors.NewBlobNotFoundError("blob %x not found", key)
	}

	return bytes.Clone(value), nil
}

func (m *Memory) GetIoReader(ctx context.Context, key []byte, opts ...options.FileOption) (io.ReadCloser, error) {
	value, err := m.Get(ctx, key, opts...)
	if err != nil {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(value)), nil
}

func (m *Memory) Set(_ context.Context, key []byte, value []byte, opts ...options.FileOption) error {
	m.count("set")

	merged := options.MergeOptions(m.options, opts)
	k := storeKey(key, merged)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[k]; ok && !merged.AllowOverwrite {
		return errors.NewBlobAlreadyExistsError("blob %x already exists", key)
	}

	m.blobs[k] = bytes.Clone(value)

	return nil
}

func (m *Memory) SetFromReader(ctx context.Context, key []byte, reader io.ReadCloser, opts ...options.FileOption) error {
	defer reader.Close()

	b, err := io.ReadAll(reader)
	if err != nil {
		return errors.NewStorageError("failed to read data from reader", err)
	}

	return m.Set(ctx, key, b, opts...)
}

func (m *Memory) Del(_ context.Context, key []byte, opts ...options.FileOption) error {
	m.count("del")

	merged := options.MergeOptions(m.options, opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, storeKey(key, merged))

	return nil
}

func (m *Memory) Close(_ context.Context) error {
	m.count("close")

	return nil
}
