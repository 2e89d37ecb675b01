package blockchain

import (
	"context"
	"sort"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	blockchain_store "github.com/bsv-blockchain/chainstate/stores/blockchain"
)

// Dirty returns the records of entries added or changed since they were last
// persisted, parents before children.
func (idx *Index) Dirty() []*model.BlockIndexRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	handles := make([]Handle, 0, len(idx.dirty))
	for h := range idx.dirty {
		handles = append(handles, h)
	}

	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	statuses := *idx.status.Load()
	records := make([]*model.BlockIndexRecord, 0, len(handles))

	for _, h := range handles {
		records = append(records, idx.record(idx.entries[h], statuses[h]))
	}

	return records
}

func (idx *Index) record(entry *Entry, status Status) *model.BlockIndexRecord {
	return &model.BlockIndexRecord{
		Header: entry.Header,
		Meta: model.BlockHeaderMeta{
			Height:    entry.Height,
			ChainWork: entry.ChainWork,
			Status:    status.Bits(),
			Seen:      entry.Seen,
		},
	}
}

// MarkPersisted clears the dirty flag of the given records. A record whose
// status changed after it was taken from Dirty stays dirty.
func (idx *Index) MarkPersisted(records []*model.BlockIndexRecord) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current := *idx.status.Load()
	next := make([]Status, len(current), cap(current))
	copy(next, current)

	for _, record := range records {
		h, ok := idx.byHash[*record.Hash()]
		if !ok || next[h].Bits() != record.Meta.Status {
			continue
		}

		next[h].Persisted = true
		delete(idx.dirty, h)
	}

	idx.status.Store(&next)
}

// Load rebuilds the index from persisted records ordered by arrival. The
// index must hold only genesis, and the first record must be genesis.
// Headers are not re-validated.
func (idx *Index) Load(records []*model.BlockIndexRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.entries) != 1 {
		return errors.NewProcessingError("block index already holds %d entries", len(idx.entries))
	}

	if len(records) == 0 {
		return nil
	}

	if *records[0].Hash() != idx.entries[0].Hash {
		return errors.NewStoreCorruptError("first block index record %s is not the genesis block %s", records[0].Hash(), idx.entries[0].Hash)
	}

	genesisStatus := StatusFromBits(records[0].Meta.Status)
	genesisStatus.Failed = false

	current := *idx.status.Load()
	next := make([]Status, len(current), cap(current))
	copy(next, current)
	next[0] = genesisStatus
	idx.status.Store(&next)

	delete(idx.dirty, 0)

	for _, record := range records[1:] {
		hash := record.Hash()

		if _, ok := idx.byHash[*hash]; ok {
			return errors.NewStoreCorruptError("block %s appears twice in the block index", hash)
		}

		parentHandle, ok := idx.byHash[*record.Header.HashPrevBlock]
		if !ok {
			return errors.NewStoreCorruptError("parent %s of stored block %s is missing", record.Header.HashPrevBlock, hash)
		}

		entry := idx.insert(record.Header, idx.entries[parentHandle], StatusFromBits(record.Meta.Status))

		if entry.Height != record.Meta.Height {
			return errors.NewStoreCorruptError("stored block %s has height %d, expected %d", hash, record.Meta.Height, entry.Height)
		}

		delete(idx.dirty, entry.Handle)
	}

	idx.logger.Infof("[BlockIndex] loaded %d entries", len(idx.entries))

	return nil
}

// Flush writes every dirty entry to store in one transaction.
func (idx *Index) Flush(ctx context.Context, store blockchain_store.Store) error {
	records := idx.Dirty()
	if len(records) == 0 {
		return nil
	}

	if err := store.StoreBlocks(ctx, records); err != nil {
		return err
	}

	idx.MarkPersisted(records)

	return nil
}

// LoadFromStore loads every record of store into the index.
func (idx *Index) LoadFromStore(ctx context.Context, store blockchain_store.Store) error {
	records, err := store.GetBlocks(ctx)
	if err != nil {
		return err
	}

	return idx.Load(records)
}
