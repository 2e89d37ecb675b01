// Package factory creates chainstate stores from a store URL.
//
// Supported schemes:
//   - leveldb: "leveldb://./data/chainstate" (relative) or "leveldb:///var/lib/chainstate"
//   - memory:  "memory://"
//
// Adding logging=true to the URL wraps the store in a logger that traces every call.
package factory

import (
	"context"
	"net/url"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	storelogger "github.com/bsv-blockchain/chainstate/stores/utxo/logger"
	"github.com/bsv-blockchain/chainstate/ulogger"
)

type dbInitFunc func(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings, storeURL *url.URL) (utxo.Store, error)

var availableDatabases = map[string]dbInitFunc{}

// NewStore opens the store configured in tSettings.UtxoStore.
func NewStore(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings) (utxo.Store, error) {
	storeURL := tSettings.UtxoStore.StoreURL
	if storeURL == nil {
		return nil, errors.NewConfigurationError("utxostore setting is not set")
	}

	return NewStoreFromURL(ctx, logger, tSettings, storeURL)
}

func NewStoreFromURL(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings, storeURL *url.URL) (utxo.Store, error) {
	dbInit, ok := availableDatabases[storeURL.Scheme]
	if !ok {
		return nil, errors.NewConfigurationError("unknown utxo store scheme: %s", storeURL.Scheme)
	}

	logger.Infof("[UTXOStore] connecting to %s store at %s", storeURL.Scheme, storeURL.Host+storeURL.Path)

	store, err := dbInit(ctx, logger, tSettings, storeURL)
	if err != nil {
		return nil, err
	}

	if storeURL.Query().Get("logging") == "true" {
		logger.Infof("[UTXOStore] enabling store logging")
		store = storelogger.New(logger, store)
	}

	return store, nil
}
