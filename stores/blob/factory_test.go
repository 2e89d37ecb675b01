package blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/blob/options"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	memoryURL, err := url.Parse("memory://")
	require.NoError(t, err)

	fileURL, err := url.Parse("file://" + t.TempDir() + "?hashPrefix=2")
	require.NoError(t, err)

	result := map[string]Store{}

	for name, u := range map[string]*url.URL{"memory": memoryURL, "file": fileURL} {
		store, err := NewStore(ulogger.TestLogger{}, u, options.WithDefaultSubDirectory("blocks"))
		require.NoError(t, err)

		result[name] = store
	}

	return result
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	key := []byte{0x01, 0x02, 0x03, 0x04}

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			code, _, err := store.Health(ctx, true)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, code)

			exists, err := store.Exists(ctx, key, options.WithFileExtension("block"))
			require.NoError(t, err)
			assert.False(t, exists)

			_, err = store.Get(ctx, key, options.WithFileExtension("block"))
			require.ErrorIs(t, err, errors.ErrBlobNotFound)

			require.NoError(t, store.Set(ctx, key, []byte("block data"), options.WithFileExtension("block")))

			// same key with another extension is another blob
			exists, err = store.Exists(ctx, key, options.WithFileExtension("undo"))
			require.NoError(t, err)
			assert.False(t, exists)

			value, err := store.Get(ctx, key, options.WithFileExtension("block"))
			require.NoError(t, err)
			assert.Equal(t, []byte("block data"), value)

			err = store.Set(ctx, key, []byte("other"), options.WithFileExtension("block"))
			require.Error(t, err)
			assert.Equal(t, errors.KindDuplicate, errors.KindOf(err))

			require.NoError(t, store.Set(ctx, key, []byte("other"), options.WithFileExtension("block"), options.WithAllowOverwrite(true)))

			reader, err := store.GetIoReader(ctx, key, options.WithFileExtension("block"))
			require.NoError(t, err)

			streamed, err := io.ReadAll(reader)
			require.NoError(t, err)
			require.NoError(t, reader.Close())
			assert.Equal(t, []byte("other"), streamed)

			require.NoError(t, store.Del(ctx, key, options.WithFileExtension("block")))
			require.NoError(t, store.Del(ctx, key, options.WithFileExtension("block")))

			exists, err = store.Exists(ctx, key, options.WithFileExtension("block"))
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, store.SetFromReader(ctx, key, io.NopCloser(bytes.NewReader([]byte("streamed")))))

			value, err = store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []byte("streamed"), value)

			require.NoError(t, store.Close(ctx))
		})
	}
}

func TestNewStoreUnknownScheme(t *testing.T) {
	u, err := url.Parse("s3://bucket/blocks")
	require.NoError(t, err)

	_, err = NewStore(ulogger.TestLogger{}, u)
	require.ErrorIs(t, err, errors.ErrConfiguration)

	_, err = NewStore(ulogger.TestLogger{}, nil)
	require.ErrorIs(t, err, errors.ErrConfiguration)
}
