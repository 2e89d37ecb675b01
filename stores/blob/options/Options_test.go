package options

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsCalculatePrefix(t *testing.T) {
	tests := []struct {
		filename   string
		hashPrefix int
		expected   string
	}{
		{"1234567890abcdef", 0, ""},
		{"1234567890abcdef", 1, "1"},
		{"1234567890abcdef", 3, "123"},
		{"1234567890abcdef", -1, "f"},
		{"1234567890abcdef", -3, "def"},
		{"12", 3, ""},
	}

	for _, test := range tests {
		o := &Options{HashPrefix: test.hashPrefix}
		assert.Equal(t, test.expected, o.CalculatePrefix(test.filename))
	}
}

func TestOptionsConstructFilename(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name         string
		key          []byte
		storeOptions []StoreOption
		fileOptions  []FileOption
		expected     string
	}{
		{
			name:     "Default",
			key:      []byte{0x01, 0xab},
			expected: filepath.Join(base, "ab01"),
		},
		{
			name:         "With SubDirectory",
			key:          []byte{0x01},
			storeOptions: []StoreOption{WithDefaultSubDirectory("blocks")},
			expected:     filepath.Join(base, "blocks", "01"),
		},
		{
			name:         "SubDirectory and extension",
			key:          []byte{0x01},
			storeOptions: []StoreOption{WithDefaultSubDirectory("blocks")},
			fileOptions:  []FileOption{WithFileExtension("block")},
			expected:     filepath.Join(base, "blocks", "01.block"),
		},
		{
			name:        "With FileExtension",
			key:         []byte{0x01},
			fileOptions: []FileOption{WithFileExtension("block")},
			expected:    filepath.Join(base, "01.block"),
		},
		{
			name:         "WithHashPrefix and extension",
			key:          []byte{0x12, 0x34},
			storeOptions: []StoreOption{WithHashPrefix(-2)},
			fileOptions:  []FileOption{WithFileExtension("block")},
			expected:     filepath.Join(base, "12", "3412.block"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := MergeOptions(NewStoreOptions(tt.storeOptions...), tt.fileOptions)

			result, err := o.ConstructFilename(base, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}

	t.Run("empty key", func(t *testing.T) {
		_, err := NewStoreOptions().ConstructFilename(base, nil)
		require.Error(t, err)
	})
}

func TestMergeOptionsDoesNotModifyStoreOptions(t *testing.T) {
	storeOptions := NewStoreOptions(WithDefaultSubDirectory("blocks"))

	merged := MergeOptions(storeOptions, []FileOption{WithFileExtension("block"), WithAllowOverwrite(true)})

	assert.Equal(t, "blocks", merged.SubDirectory)
	assert.Equal(t, "block", merged.Extension)
	assert.True(t, merged.AllowOverwrite)
	assert.Empty(t, storeOptions.Extension)
	assert.False(t, storeOptions.AllowOverwrite)
}
