package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeHeight(t *testing.T) {
	tests := []struct {
		height uint32
		want   []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x51}},
		{16, []byte{0x60}},
		{17, []byte{0x01, 0x11}},
		{127, []byte{0x01, 0x7f}},
		{128, []byte{0x02, 0x80, 0x00}},
		{227836, []byte{0x03, 0xfc, 0x79, 0x03}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SerializeHeight(tt.height), "height %d", tt.height)

		height, err := ExtractCoinbaseHeight(append(SerializeHeight(tt.height), 0xde, 0xad))
		require.NoError(t, err)
		assert.Equal(t, tt.height, height)
	}
}

func TestCheckCoinbaseHeight(t *testing.T) {
	script := append(SerializeHeight(500), []byte("/miner/")...)

	assert.True(t, CheckCoinbaseHeight(script, 500))
	assert.False(t, CheckCoinbaseHeight(script, 501))
	assert.False(t, CheckCoinbaseHeight(nil, 0))
}

func TestExtractCoinbaseHeightErrors(t *testing.T) {
	_, err := ExtractCoinbaseHeight(nil)
	require.Error(t, err)

	_, err = ExtractCoinbaseHeight([]byte{0x03, 0x01})
	require.Error(t, err)
}
