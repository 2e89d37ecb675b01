package model

import (
	"bytes"
	"io"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
)

// Block is a header together with its full list of transactions, coinbase first.
type Block struct {
	Header       *BlockHeader
	Transactions []*bt.Tx

	// local
	size int
	hash *chainhash.Hash
}

func NewBlock(header *BlockHeader, txs []*bt.Tx) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// NewBlockFromBytes parses a serialized block. Any failure, including
// trailing bytes, is a structural error.
func NewBlockFromBytes(blockBytes []byte) (*Block, error) {
	if len(blockBytes) < BlockHeaderSize+1 {
		return nil, errors.NewBlockMalformedError("block is too short: %d bytes", len(blockBytes))
	}

	header, err := NewBlockHeaderFromBytes(blockBytes[:BlockHeaderSize])
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(blockBytes[BlockHeaderSize:])

	var txCount bt.VarInt
	if _, err = txCount.ReadFrom(r); err != nil {
		return nil, errors.NewBlockMalformedError("error reading transaction count", err)
	}

	// every transaction is at least 10 bytes, so a count this large cannot be honest
	if uint64(txCount) > uint64(r.Len())/10 {
		return nil, errors.NewBlockMalformedError("transaction count %d exceeds block size", txCount)
	}

	txs := make([]*bt.Tx, 0, txCount)

	for i := uint64(0); i < uint64(txCount); i++ {
		tx := &bt.Tx{}
		if _, err = tx.ReadFrom(r); err != nil {
			return nil, errors.NewBlockMalformedError("error reading transaction %d", i, err)
		}

		txs = append(txs, tx)
	}

	if r.Len() != 0 {
		return nil, errors.NewBlockMalformedError("block has %d trailing bytes", r.Len())
	}

	return &Block{
		Header:       header,
		Transactions: txs,
		size:         len(blockBytes),
	}, nil
}

func NewBlockFromReader(r io.Reader) (*Block, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewBlockMalformedError("error reading block", err)
	}

	return NewBlockFromBytes(b)
}

// GenesisBlock returns the genesis block of the given network.
func GenesisBlock(params *chaincfg.Params) (*Block, error) {
	var buf bytes.Buffer

	if err := params.GenesisBlock.Serialize(&buf); err != nil {
		return nil, errors.NewProcessingError("failed to serialize genesis block", err)
	}

	return NewBlockFromBytes(buf.Bytes())
}

func (b *Block) Hash() *chainhash.Hash {
	if b.hash == nil {
		b.hash = b.Header.Hash()
	}

	return b.hash
}

func (b *Block) String() string {
	return b.Hash().String()
}

func (b *Block) CoinbaseTx() *bt.Tx {
	if len(b.Transactions) == 0 {
		return nil
	}

	return b.Transactions[0]
}

func (b *Block) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, b.Size()))

	buf.Write(b.Header.Bytes())
	buf.Write(bt.VarInt(uint64(len(b.Transactions))).Bytes())

	for _, tx := range b.Transactions {
		buf.Write(tx.Bytes())
	}

	return buf.Bytes()
}

// Size returns the serialized size of the block in bytes.
func (b *Block) Size() int {
	if b.size == 0 {
		b.size = BlockHeaderSize + bt.VarInt(uint64(len(b.Transactions))).Length()
		for _, tx := range b.Transactions {
			b.size += tx.Size()
		}
	}

	return b.size
}

func (b *Block) TxIDs() []chainhash.Hash {
	ids := make([]chainhash.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = *tx.TxIDChainHash()
	}

	return ids
}

// CalculateMerkleRoot returns the merkle root of the transactions and whether
// the transaction list is a mutation of a shorter one.
func (b *Block) CalculateMerkleRoot() (*chainhash.Hash, bool) {
	root, mutated := util.BuildMerkleRoot(b.TxIDs())

	return &root, mutated
}

// CheckMerkleRoot verifies that the header commits to exactly this
// transaction list.
func (b *Block) CheckMerkleRoot() error {
	root, mutated := b.CalculateMerkleRoot()

	if mutated {
		return errors.NewBlockMutatedError("[CheckMerkleRoot][%s] duplicate transaction subtree", b.Hash())
	}

	if b.Header.HashMerkleRoot == nil || !root.IsEqual(b.Header.HashMerkleRoot) {
		return errors.NewBlockMutatedError("[CheckMerkleRoot][%s] merkle root mismatch, header %s calculated %s", b.Hash(), b.Header.HashMerkleRoot, root)
	}

	return nil
}
