package utxo

import (
	"encoding/binary"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
)

// MaxCoinHeight is the largest height that fits in the 31 bits reserved for it in a coin record.
const MaxCoinHeight = 1<<31 - 1

// Coin is an unspent transaction output together with the height of the block that created it.
type Coin struct {
	Value    uint64
	Script   []byte
	Height   uint32
	Coinbase bool
}

func NewCoin(output *bt.Output, height uint32, coinbase bool) *Coin {
	var script []byte
	if output.LockingScript != nil {
		script = append(script, *output.LockingScript...)
	}

	return &Coin{
		Value:    output.Satoshis,
		Script:   script,
		Height:   height,
		Coinbase: coinbase,
	}
}

// NewCoinFromBytes decodes a coin record. Any decoding failure means the
// chainstate is corrupt.
func NewCoinFromBytes(b []byte) (*Coin, error) {
	if len(b) < 13 {
		return nil, errors.NewStoreCorruptError("coin record too short: %d bytes", len(b))
	}

	code := binary.LittleEndian.Uint32(b[0:4])

	scriptLen, n, err := readVarInt(b[12:])
	if err != nil {
		return nil, err
	}

	offset := 12 + n

	if uint64(len(b)-offset) != scriptLen {
		return nil, errors.NewStoreCorruptError("coin record script length %d does not match remaining %d bytes", scriptLen, len(b)-offset)
	}

	return &Coin{
		Height:   code >> 1,
		Coinbase: code&1 == 1,
		Value:    binary.LittleEndian.Uint64(b[4:12]),
		Script:   append([]byte(nil), b[offset:]...),
	}, nil
}

// Bytes serializes the coin as height<<1|coinbase, value, script length and script.
func (c *Coin) Bytes() []byte {
	scriptLen := bt.VarInt(uint64(len(c.Script)))

	b := make([]byte, 12, 12+scriptLen.Length()+len(c.Script))

	code := c.Height << 1
	if c.Coinbase {
		code |= 1
	}

	binary.LittleEndian.PutUint32(b[0:4], code)
	binary.LittleEndian.PutUint64(b[4:12], c.Value)

	b = append(b, scriptLen.Bytes()...)
	b = append(b, c.Script...)

	return b
}

// Output returns the coin as a transaction output, used for script verification.
func (c *Coin) Output() *bt.Output {
	return &bt.Output{
		Satoshis:      c.Value,
		LockingScript: bscript.NewFromBytes(c.Script),
	}
}

// IsMature reports whether a coinbase coin may be spent in a block at spendHeight.
func (c *Coin) IsMature(spendHeight uint32, maturity uint16) bool {
	if !c.Coinbase {
		return true
	}

	return spendHeight >= c.Height && spendHeight-c.Height >= uint32(maturity)
}

func (c *Coin) Clone() *Coin {
	clone := *c
	clone.Script = append([]byte(nil), c.Script...)

	return &clone
}

// IsUnspendable reports whether a locking script can never be satisfied,
// in which case the output is not added to the UTXO set.
func IsUnspendable(script []byte) bool {
	if len(script) > 0 && script[0] == bscript.OpRETURN {
		return true
	}

	return len(script) > 1 && script[0] == bscript.OpFALSE && script[1] == bscript.OpRETURN
}

// readVarInt decodes a bitcoin varint, refusing to read past the end of b.
func readVarInt(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, errors.NewStoreCorruptError("missing varint")
	}

	size := 1

	switch b[0] {
	case 0xfd:
		size = 3
	case 0xfe:
		size = 5
	case 0xff:
		size = 9
	}

	if len(b) < size {
		return 0, 0, errors.NewStoreCorruptError("truncated varint, need %d bytes, have %d", size, len(b))
	}

	v, n := bt.NewVarIntFromBytes(b[:size])

	return uint64(v), n, nil
}

// checkHeight validates that a block height can be stored in a coin record.
func checkHeight(height uint32) error {
	if height > MaxCoinHeight {
		return errors.NewInvalidArgumentError("height %d exceeds maximum coin height", height)
	}

	return nil
}
