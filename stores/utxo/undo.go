package utxo

import (
	"encoding/binary"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/cespare/xxhash"
)

// SpentCoin is a coin consumed by a block, kept so the spend can be reverted.
type SpentCoin struct {
	Outpoint Outpoint
	Coin     *Coin
}

// UndoData holds the net effect of a connected block on the UTXO set. Coins
// created and spent inside the same block appear in neither list.
type UndoData struct {
	BlockHash chainhash.Hash
	PrevHash  chainhash.Hash
	Height    uint32
	Spent     []SpentCoin
	Created   []Outpoint
}

// Bytes serializes the undo record followed by an xxhash checksum of its body.
func (u *UndoData) Bytes() []byte {
	size := 2*chainhash.HashSize + 4 + 18 + len(u.Created)*OutpointSize + 8
	for _, s := range u.Spent {
		size += OutpointSize + 9 + 13 + len(s.Coin.Script)
	}

	b := make([]byte, 0, size)
	b = append(b, u.BlockHash[:]...)
	b = append(b, u.PrevHash[:]...)
	b = binary.LittleEndian.AppendUint32(b, u.Height)

	b = append(b, bt.VarInt(uint64(len(u.Spent))).Bytes()...)
	for _, s := range u.Spent {
		coinBytes := s.Coin.Bytes()

		b = append(b, s.Outpoint.Bytes()...)
		b = append(b, bt.VarInt(uint64(len(coinBytes))).Bytes()...)
		b = append(b, coinBytes...)
	}

	b = append(b, bt.VarInt(uint64(len(u.Created))).Bytes()...)
	for _, op := range u.Created {
		b = append(b, op.Bytes()...)
	}

	return binary.LittleEndian.AppendUint64(b, xxhash.Sum64(b))
}

// NewUndoDataFromBytes decodes an undo record, verifying its checksum.
func NewUndoDataFromBytes(b []byte) (*UndoData, error) {
	const minSize = 2*chainhash.HashSize + 4 + 1 + 1 + 8

	if len(b) < minSize {
		return nil, errors.NewStoreCorruptError("undo record too short: %d bytes", len(b))
	}

	body, sum := b[:len(b)-8], binary.LittleEndian.Uint64(b[len(b)-8:])
	if xxhash.Sum64(body) != sum {
		return nil, errors.NewStoreCorruptError("undo record checksum mismatch")
	}

	u := &UndoData{}
	copy(u.BlockHash[:], body[0:32])
	copy(u.PrevHash[:], body[32:64])
	u.Height = binary.LittleEndian.Uint32(body[64:68])

	r := body[68:]

	spentCount, n, err := readVarInt(r)
	if err != nil {
		return nil, err
	}

	r = r[n:]

	// every spent entry is at least an outpoint and a minimal coin
	if spentCount > uint64(len(r))/(OutpointSize+14) {
		return nil, errors.NewStoreCorruptError("undo record spent count %d exceeds record size", spentCount)
	}

	u.Spent = make([]SpentCoin, 0, spentCount)

	for i := uint64(0); i < spentCount; i++ {
		if len(r) < OutpointSize {
			return nil, errors.NewStoreCorruptError("undo record truncated in spent entry %d", i)
		}

		op, _ := NewOutpointFromBytes(r[:OutpointSize])
		r = r[OutpointSize:]

		coinLen, n, err := readVarInt(r)
		if err != nil {
			return nil, err
		}

		r = r[n:]

		if uint64(len(r)) < coinLen {
			return nil, errors.NewStoreCorruptError("undo record truncated in spent coin %d", i)
		}

		coin, err := NewCoinFromBytes(r[:coinLen])
		if err != nil {
			return nil, err
		}

		r = r[coinLen:]

		u.Spent = append(u.Spent, SpentCoin{Outpoint: op, Coin: coin})
	}

	createdCount, n, err := readVarInt(r)
	if err != nil {
		return nil, err
	}

	r = r[n:]

	if len(r)%OutpointSize != 0 || uint64(len(r)/OutpointSize) != createdCount {
		return nil, errors.NewStoreCorruptError("undo record created count %d does not match %d remaining bytes", createdCount, len(r))
	}

	u.Created = make([]Outpoint, 0, createdCount)

	for len(r) > 0 {
		op, _ := NewOutpointFromBytes(r[:OutpointSize])
		u.Created = append(u.Created, op)
		r = r[OutpointSize:]
	}

	return u, nil
}
