package model

import (
	"math/big"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// BlockHeaderMeta is what the block index knows about a header beyond the header itself.
type BlockHeaderMeta struct {
	ID        uint64   `json:"id"`         // ID of the block in the block index DB.
	Height    uint32   `json:"height"`     // Height of the block in the blockchain.
	ChainWork *big.Int `json:"chain_work"` // Cumulative work up to and including the block.
	Status    uint32   `json:"status"`     // Packed validity status.
	Seen      uint64   `json:"seen"`       // Arrival order.
}

// BlockIndexRecord is a header together with its meta data, the unit the
// block index is persisted in.
type BlockIndexRecord struct {
	Header *BlockHeader
	Meta   BlockHeaderMeta
}

func (r *BlockIndexRecord) Hash() *chainhash.Hash {
	return r.Header.Hash()
}

// ChainWorkBytes returns the chain work as a 32-byte big-endian number, the
// form it is stored in.
func (m *BlockHeaderMeta) ChainWorkBytes() []byte {
	b := make([]byte, 32)
	if m.ChainWork != nil {
		m.ChainWork.FillBytes(b)
	}

	return b
}
