package utxo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// OutpointSize is the serialized size of an outpoint: txid followed by the little-endian output index.
const OutpointSize = chainhash.HashSize + 4

// Outpoint identifies a transaction output.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

func NewOutpoint(txID *chainhash.Hash, index uint32) Outpoint {
	return Outpoint{TxID: *txID, Index: index}
}

// OutpointFromInput returns the outpoint spent by the given input.
func OutpointFromInput(input *bt.Input) Outpoint {
	var op Outpoint

	if h := input.PreviousTxIDChainHash(); h != nil {
		op.TxID = *h
	}

	op.Index = input.PreviousTxOutIndex

	return op
}

func NewOutpointFromBytes(b []byte) (Outpoint, error) {
	var op Outpoint

	if len(b) != OutpointSize {
		return op, errors.NewStoreCorruptError("invalid outpoint length %d", len(b))
	}

	copy(op.TxID[:], b[:chainhash.HashSize])
	op.Index = binary.LittleEndian.Uint32(b[chainhash.HashSize:])

	return op, nil
}

// Bytes returns the 36 byte key form of the outpoint.
func (o Outpoint) Bytes() []byte {
	b := make([]byte, OutpointSize)
	copy(b, o.TxID[:])
	binary.LittleEndian.PutUint32(b[chainhash.HashSize:], o.Index)

	return b
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}

// Compare orders outpoints by txid bytes, then by index.
func (o Outpoint) Compare(other Outpoint) int {
	if c := bytes.Compare(o.TxID[:], other.TxID[:]); c != 0 {
		return c
	}

	switch {
	case o.Index < other.Index:
		return -1
	case o.Index > other.Index:
		return 1
	default:
		return 0
	}
}
