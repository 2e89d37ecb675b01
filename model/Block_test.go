package model

import (
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisBlock(t *testing.T) {
	genesis, err := GenesisBlock(&chaincfg.MainNetParams)
	require.NoError(t, err)

	require.Len(t, genesis.Transactions, 1)
	assert.True(t, genesis.CoinbaseTx().IsCoinbase())
	assert.Equal(t, "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b", genesis.CoinbaseTx().TxID())
	assert.Equal(t, 285, genesis.Size())

	require.NoError(t, genesis.CheckMerkleRoot())
}

func TestBlockBytesRoundTrip(t *testing.T) {
	genesis, err := GenesisBlock(&chaincfg.RegressionNetParams)
	require.NoError(t, err)

	b := genesis.Bytes()
	assert.Len(t, b, genesis.Size())

	parsed, err := NewBlockFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, genesis.Hash(), parsed.Hash())
	assert.Equal(t, b, parsed.Bytes())

	// a freshly built block computes the same size
	rebuilt := NewBlock(parsed.Header, parsed.Transactions)
	assert.Equal(t, len(b), rebuilt.Size())
}

func TestNewBlockFromBytesMalformed(t *testing.T) {
	genesis, err := GenesisBlock(&chaincfg.MainNetParams)
	require.NoError(t, err)

	b := genesis.Bytes()

	tests := map[string][]byte{
		"too short":      b[:50],
		"truncated tx":   b[:len(b)-5],
		"trailing bytes": append(append([]byte{}, b...), 0x00),
		"huge tx count":  append(append([]byte{}, b[:80]...), 0xfe, 0xff, 0xff, 0xff, 0x0f),
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewBlockFromBytes(data)
			require.Error(t, err)
			assert.Equal(t, errors.KindStructural, errors.KindOf(err))
		})
	}
}

func TestCheckMerkleRootMismatch(t *testing.T) {
	genesis, err := GenesisBlock(&chaincfg.MainNetParams)
	require.NoError(t, err)

	header := *genesis.Header
	header.HashMerkleRoot = genesis.Header.HashPrevBlock

	block := NewBlock(&header, genesis.Transactions)

	err = block.CheckMerkleRoot()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBlockMutated))

	// a duplicated transaction list is reported even though the root matches
	mutated := NewBlock(genesis.Header, append(genesis.Transactions, genesis.Transactions[0]))
	err = mutated.CheckMerkleRoot()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBlockMutated))
}
