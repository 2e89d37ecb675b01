package blob

import (
	"net/url"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/blob/file"
	"github.com/bsv-blockchain/chainstate/stores/blob/memory"
	"github.com/bsv-blockchain/chainstate/stores/blob/options"
	"github.com/bsv-blockchain/chainstate/ulogger"
)

// NewStore creates the blob store described by storeURL.
func NewStore(logger ulogger.Logger, storeURL *url.URL, opts ...options.StoreOption) (store Store, err error) {
	if storeURL == nil {
		return nil, errors.NewConfigurationError("blob store url is nil")
	}

	switch storeURL.Scheme {
	case "memory":
		store = memory.New(opts...)

	case "file":
		store, err = file.New(logger, storeURL, opts...)
		if err != nil {
			return nil, errors.NewStorageError("error creating file blob store", err)
		}

	default:
		return nil, errors.NewConfigurationError("unknown blob store type: %s", storeURL.Scheme)
	}

	return store, nil
}
