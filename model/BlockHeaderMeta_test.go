package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockHeaderMetaChainWorkBytes(t *testing.T) {
	t.Run("nil chain work", func(t *testing.T) {
		m := &BlockHeaderMeta{}
		assert.Equal(t, make([]byte, 32), m.ChainWorkBytes())
	})

	t.Run("big endian", func(t *testing.T) {
		m := &BlockHeaderMeta{ChainWork: big.NewInt(0x0102)}

		b := m.ChainWorkBytes()
		assert.Len(t, b, 32)
		assert.Equal(t, byte(0x01), b[30])
		assert.Equal(t, byte(0x02), b[31])
		assert.Equal(t, 0, new(big.Int).SetBytes(b).Cmp(m.ChainWork))
	})
}
