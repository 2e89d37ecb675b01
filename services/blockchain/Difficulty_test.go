package blockchain

import (
	"testing"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDAAIndex returns a mainnet index with the DAA active from genesis and
// n entries at a fixed difficulty spaced by spacing seconds, inserted
// without header checks.
func newDAAIndex(t *testing.T, n int, spacing uint32) (*Index, *Entry) {
	t.Helper()

	params := chaincfg.MainNetParams
	params.DaaForkHeight = 0

	idx, err := New(ulogger.TestLogger{}, &params)
	require.NoError(t, err)

	tip := idx.Genesis()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i := 0; i < n; i++ {
		header := &model.BlockHeader{
			Version:        1,
			HashPrevBlock:  &tip.Hash,
			HashMerkleRoot: &chainhash.Hash{},
			Timestamp:      tip.Header.Timestamp + spacing,
			Bits:           model.NewNBitFromUint32(0x1c00ffff),
			Nonce:          uint32(i), //nolint:gosec // small test values
		}

		tip = idx.insert(header, tip, Status{Level: ValidityHeader})
	}

	return idx, tip
}

func TestDAAKeepsDifficultyAtTargetSpacing(t *testing.T) {
	idx, tip := newDAAIndex(t, 200, 600)

	bits := idx.NextWorkRequired(tip, tip.Header.Timestamp+600)
	assert.Equal(t, uint32(0x1c00ffff), bits)
}

func TestDAALowersDifficultyWhenBlocksAreSlow(t *testing.T) {
	idx, tip := newDAAIndex(t, 200, 1200)

	bits := idx.NextWorkRequired(tip, tip.Header.Timestamp+1200)

	current := util.CalculateTarget(tip.Header.Bits.Uint32())
	next := util.CalculateTarget(bits)

	assert.Equal(t, 1, next.Cmp(current))
}

func TestDAARaisesDifficultyWhenBlocksAreFast(t *testing.T) {
	idx, tip := newDAAIndex(t, 200, 300)

	bits := idx.NextWorkRequired(tip, tip.Header.Timestamp+300)

	current := util.CalculateTarget(tip.Header.Bits.Uint32())
	next := util.CalculateTarget(bits)

	assert.Equal(t, -1, next.Cmp(current))
}

func TestDAAUsesPowLimitForShortChains(t *testing.T) {
	idx, tip := newDAAIndex(t, 100, 300)

	assert.Equal(t, idx.Params().PowLimitBits, idx.NextWorkRequired(tip, tip.Header.Timestamp+300))
}

func TestRegtestKeepsParentBits(t *testing.T) {
	idx, err := New(ulogger.TestLogger{}, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	genesis := idx.Genesis()
	assert.Equal(t, genesis.Header.Bits.Uint32(), idx.NextWorkRequired(genesis, genesis.Header.Timestamp+600))
}
