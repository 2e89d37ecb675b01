package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"0", 0},
		{"512", 512},
		{"300MB", 300 * MB},
		{"300 mb", 300 * MB},
		{"1.5GB", 1_500_000_000},
		{"2KiB", 2048},
		{"1MiB", 1 << 20},
		{"4G", 4 * GB},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "MB", "12XB", "-5"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "300.00 MB", (300 * MB).String())
	assert.Equal(t, "999 B", ByteSize(999).String())
}
