package model

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// BlockHeaderSize is the serialized size of a block header.
const BlockHeaderSize = 80

type BlockHeader struct {
	// Version of the block. This is not the same as the protocol version.
	Version uint32

	// Hash of the previous block header in the blockchain.
	HashPrevBlock *chainhash.Hash

	// Merkle tree reference to hash of all transactions for the block.
	HashMerkleRoot *chainhash.Hash

	// Time the block was created in unix time.
	Timestamp uint32

	// Difficulty target for the block.
	Bits NBit

	// Nonce used to generate the block.
	Nonce uint32
}

func NewBlockHeaderFromBytes(headerBytes []byte) (*BlockHeader, error) {
	if len(headerBytes) != BlockHeaderSize {
		return nil, errors.NewBlockMalformedError("block header should be %d bytes long, got %d", BlockHeaderSize, len(headerBytes))
	}

	hashPrevBlock, err := chainhash.NewHash(headerBytes[4:36])
	if err != nil {
		return nil, errors.NewBlockMalformedError("error creating previous block hash from bytes", err)
	}

	hashMerkleRoot, err := chainhash.NewHash(headerBytes[36:68])
	if err != nil {
		return nil, errors.NewBlockMalformedError("error creating merkle root hash from bytes", err)
	}

	return &BlockHeader{
		Version:        binary.LittleEndian.Uint32(headerBytes[:4]),
		HashPrevBlock:  hashPrevBlock,
		HashMerkleRoot: hashMerkleRoot,
		Timestamp:      binary.LittleEndian.Uint32(headerBytes[68:72]),
		Bits:           NewNBitFromUint32(binary.LittleEndian.Uint32(headerBytes[72:76])),
		Nonce:          binary.LittleEndian.Uint32(headerBytes[76:]),
	}, nil
}

func NewBlockHeaderFromString(headerHex string) (*BlockHeader, error) {
	headerBytes, err := hex.DecodeString(headerHex)
	if err != nil {
		return nil, errors.NewBlockMalformedError("error decoding hex string to bytes", err)
	}

	return NewBlockHeaderFromBytes(headerBytes)
}

// NewBlockHeaderFromReader reads exactly one serialized header from r.
func NewBlockHeaderFromReader(r io.Reader) (*BlockHeader, error) {
	var buf [BlockHeaderSize]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, errors.NewBlockMalformedError("error reading block header", err)
	}

	return NewBlockHeaderFromBytes(buf[:])
}

func (bh *BlockHeader) Hash() *chainhash.Hash {
	hash := chainhash.DoubleHashH(bh.Bytes())
	return &hash
}

func (bh *BlockHeader) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, BlockHeaderSize))

	var b4 [4]byte

	binary.LittleEndian.PutUint32(b4[:], bh.Version)
	buf.Write(b4[:])
	buf.Write(hashBytes(bh.HashPrevBlock))
	buf.Write(hashBytes(bh.HashMerkleRoot))
	binary.LittleEndian.PutUint32(b4[:], bh.Timestamp)
	buf.Write(b4[:])
	binary.LittleEndian.PutUint32(b4[:], bh.Bits.Uint32())
	buf.Write(b4[:])
	binary.LittleEndian.PutUint32(b4[:], bh.Nonce)
	buf.Write(b4[:])

	return buf.Bytes()
}

// HasMetTargetDifficulty checks the proof of work of the header against the
// target encoded in its own bits.
func (bh *BlockHeader) HasMetTargetDifficulty() (bool, *chainhash.Hash, error) {
	target := bh.Bits.CalculateTarget()
	if target.Sign() <= 0 {
		return false, nil, errors.New(errors.ERR_BLOCK_BAD_DIFFBITS, "block bits %s encode a non-positive target", bh.Bits)
	}

	hash := bh.Hash()

	if util.HashToBig(hash).Cmp(target) > 0 {
		return false, hash, nil
	}

	return true, hash, nil
}

func (bh *BlockHeader) String() string {
	return fmt.Sprintf("%s (prev %s, time %d, bits %s)", bh.Hash(), bh.HashPrevBlock, bh.Timestamp, bh.Bits)
}

func hashBytes(h *chainhash.Hash) []byte {
	if h == nil {
		return make([]byte, chainhash.HashSize)
	}

	return h[:]
}
