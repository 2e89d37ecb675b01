package utxo

import (
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinBytes(t *testing.T) {
	coin := &Coin{
		Value:    5_000_000_000,
		Script:   []byte{0x76, 0xa9, 0x14},
		Height:   12345,
		Coinbase: true,
	}

	b := coin.Bytes()
	assert.Equal(t, []byte{0x73, 0x60, 0x00, 0x00}, b[:4]) // 12345<<1 | 1
	assert.Len(t, b, 12+1+3)

	decoded, err := NewCoinFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, coin, decoded)
}

func TestCoinBytesLargeScript(t *testing.T) {
	coin := &Coin{Value: 1, Script: make([]byte, 300), Height: 7}

	decoded, err := NewCoinFromBytes(coin.Bytes())
	require.NoError(t, err)
	assert.Equal(t, coin.Script, decoded.Script)
	assert.False(t, decoded.Coinbase)
}

func TestNewCoinFromBytesCorrupt(t *testing.T) {
	good := (&Coin{Value: 10, Script: []byte{0x51}, Height: 1}).Bytes()

	tests := map[string][]byte{
		"empty":            {},
		"short":            good[:10],
		"script too long":  append(append([]byte(nil), good...), 0x00),
		"script truncated": good[:len(good)-1],
		"truncated varint": append(append([]byte(nil), good[:12]...), 0xfd, 0x01),
	}

	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewCoinFromBytes(b)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrStoreCorrupt)
			assert.Equal(t, errors.KindStore, errors.KindOf(err))
		})
	}
}

func TestIsUnspendable(t *testing.T) {
	assert.True(t, IsUnspendable([]byte{0x6a}))
	assert.True(t, IsUnspendable([]byte{0x00, 0x6a, 0x01, 0x02}))
	assert.False(t, IsUnspendable([]byte{0x51}))
	assert.False(t, IsUnspendable(nil))
	assert.False(t, IsUnspendable([]byte{0x00}))
}

func TestCoinIsMature(t *testing.T) {
	coin := &Coin{Height: 10, Coinbase: true}

	assert.False(t, coin.IsMature(109, 100))
	assert.True(t, coin.IsMature(110, 100))
	assert.True(t, (&Coin{Height: 10}).IsMature(10, 100))
}

func TestOutpointBytes(t *testing.T) {
	txID := chainhash.HashH([]byte("tx"))
	op := NewOutpoint(&txID, 258)

	b := op.Bytes()
	require.Len(t, b, OutpointSize)
	assert.Equal(t, []byte{0x02, 0x01, 0x00, 0x00}, b[32:])

	decoded, err := NewOutpointFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, op, decoded)

	_, err = NewOutpointFromBytes(b[:35])
	require.Error(t, err)
}

func TestUndoDataBytes(t *testing.T) {
	txID := chainhash.HashH([]byte("parent"))

	undo := &UndoData{
		BlockHash: chainhash.HashH([]byte("block")),
		PrevHash:  chainhash.HashH([]byte("prev")),
		Height:    42,
		Spent: []SpentCoin{
			{Outpoint: NewOutpoint(&txID, 0), Coin: &Coin{Value: 100, Script: []byte{0x51}, Height: 40}},
			{Outpoint: NewOutpoint(&txID, 3), Coin: &Coin{Value: 5, Script: []byte{}, Height: 1, Coinbase: true}},
		},
		Created: []Outpoint{NewOutpoint(&txID, 9)},
	}

	b := undo.Bytes()

	decoded, err := NewUndoDataFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, undo.BlockHash, decoded.BlockHash)
	assert.Equal(t, undo.PrevHash, decoded.PrevHash)
	assert.Equal(t, undo.Height, decoded.Height)
	assert.Equal(t, undo.Created, decoded.Created)
	require.Len(t, decoded.Spent, 2)
	assert.Equal(t, undo.Spent[0].Coin.Value, decoded.Spent[0].Coin.Value)
	assert.True(t, decoded.Spent[1].Coin.Coinbase)
	assert.Equal(t, b, decoded.Bytes())

	t.Run("checksum mismatch", func(t *testing.T) {
		corrupt := append([]byte(nil), b...)
		corrupt[70] ^= 0xff

		_, err := NewUndoDataFromBytes(corrupt)
		assert.ErrorIs(t, err, errors.ErrStoreCorrupt)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := NewUndoDataFromBytes(b[:40])
		assert.ErrorIs(t, err, errors.ErrStoreCorrupt)
	})
}
