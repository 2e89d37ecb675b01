package test

import (
	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
)

// BlockInterval is the timestamp spacing of mined test blocks.
const BlockInterval = 600

// OpTrueScript is an anyone-can-spend locking script, satisfied by an empty unlocking script.
var OpTrueScript = []byte{bscript.OpTRUE}

// OutputRef points at an output of a transaction built in a test.
type OutputRef struct {
	Tx   *bt.Tx
	Vout uint32
}

// Chain is a linear sequence of mined blocks starting at genesis.
type Chain struct {
	Params *chaincfg.Params
	Blocks []*model.Block
	// Tag is mixed into every coinbase so that forks produce distinct blocks.
	Tag string
}

func NewChain(params *chaincfg.Params) (*Chain, error) {
	genesis, err := model.GenesisBlock(params)
	if err != nil {
		return nil, err
	}

	return &Chain{
		Params: params,
		Blocks: []*model.Block{genesis},
	}, nil
}

func (c *Chain) Genesis() *model.Block {
	return c.Blocks[0]
}

func (c *Chain) Tip() *model.Block {
	return c.Blocks[len(c.Blocks)-1]
}

func (c *Chain) Height() uint32 {
	return uint32(len(c.Blocks) - 1) //nolint:gosec // test chains are short
}

// Fork returns a chain sharing this chain's blocks up to and including height.
func (c *Chain) Fork(height uint32, tag string) *Chain {
	return &Chain{
		Params: c.Params,
		Blocks: append([]*model.Block(nil), c.Blocks[:height+1]...),
		Tag:    tag,
	}
}

// MineBlock mines a block with the given transactions on top of the tip and appends it.
func (c *Chain) MineBlock(txs ...*bt.Tx) (*model.Block, error) {
	height := c.Height() + 1

	block, err := BuildBlock(c.Params, c.Tip().Header, append([]*bt.Tx{CoinbaseTx(c.Params, height, c.Tag)}, txs...))
	if err != nil {
		return nil, err
	}

	c.Blocks = append(c.Blocks, block)

	return block, nil
}

func (c *Chain) MineBlocks(n int) error {
	for i := 0; i < n; i++ {
		if _, err := c.MineBlock(); err != nil {
			return err
		}
	}

	return nil
}

// Coinbase returns the coinbase of the block at height.
func (c *Chain) Coinbase(height uint32) *bt.Tx {
	return c.Blocks[height].CoinbaseTx()
}

// BuildBlock assembles and mines a block on top of parent. txs must start with the coinbase.
func BuildBlock(params *chaincfg.Params, parent *model.BlockHeader, txs []*bt.Tx) (*model.Block, error) {
	header := &model.BlockHeader{
		Version:       0x20000000,
		HashPrevBlock: parent.Hash(),
		Timestamp:     parent.Timestamp + BlockInterval,
		Bits:          model.NewNBitFromUint32(params.PowLimitBits),
	}

	block := model.NewBlock(header, txs)
	header.HashMerkleRoot, _ = block.CalculateMerkleRoot()

	if err := Mine(header); err != nil {
		return nil, err
	}

	return model.NewBlock(header, txs), nil
}

// Mine searches for a nonce that satisfies the header's target.
func Mine(header *model.BlockHeader) error {
	for nonce := uint32(0); ; nonce++ {
		header.Nonce = nonce

		ok, _, err := header.HasMetTargetDifficulty()
		if err != nil {
			return err
		}

		if ok {
			return nil
		}

		if nonce == ^uint32(0) {
			return errors.NewProcessingError("nonce space exhausted")
		}
	}
}

// CoinbaseTx returns a coinbase paying the full subsidy at height to OpTrueScript.
func CoinbaseTx(params *chaincfg.Params, height uint32, tag string) *bt.Tx {
	unlocking := append(util.SerializeHeight(height), 0x08)
	unlocking = append(unlocking, []byte("testnode")...)

	if tag != "" {
		unlocking = append(unlocking, byte(len(tag)))
		unlocking = append(unlocking, tag...)
	}

	tx := bt.NewTx()

	input := &bt.Input{
		PreviousTxOutIndex: 0xffffffff,
		SequenceNumber:     0xffffffff,
		UnlockingScript:    bscript.NewFromBytes(unlocking),
	}
	_ = input.PreviousTxIDAdd(&chainhash.Hash{})

	tx.Inputs = append(tx.Inputs, input)
	tx.AddOutput(&bt.Output{
		Satoshis:      util.GetBlockSubsidy(height, params),
		LockingScript: bscript.NewFromBytes(OpTrueScript),
	})

	return tx
}

// NewTx spends the given outputs into new OpTrueScript outputs with the given values.
func NewTx(inputs []OutputRef, values ...uint64) *bt.Tx {
	tx := bt.NewTx()

	for _, in := range inputs {
		input := &bt.Input{
			PreviousTxOutIndex: in.Vout,
			PreviousTxSatoshis: in.Tx.Outputs[in.Vout].Satoshis,
			PreviousTxScript:   in.Tx.Outputs[in.Vout].LockingScript,
			SequenceNumber:     0xffffffff,
			UnlockingScript:    &bscript.Script{},
		}
		_ = input.PreviousTxIDAdd(in.Tx.TxIDChainHash())

		tx.Inputs = append(tx.Inputs, input)
	}

	for _, value := range values {
		tx.AddOutput(&bt.Output{
			Satoshis:      value,
			LockingScript: bscript.NewFromBytes(OpTrueScript),
		})
	}

	return tx
}

// SpendTx spends a single output of parent.
func SpendTx(parent *bt.Tx, vout uint32, values ...uint64) *bt.Tx {
	return NewTx([]OutputRef{{Tx: parent, Vout: vout}}, values...)
}

// WithSequence sets the sequence number of every input, e.g. to signal replaceability.
func WithSequence(tx *bt.Tx, sequence uint32) *bt.Tx {
	for _, input := range tx.Inputs {
		input.SequenceNumber = sequence
	}

	return tx
}
