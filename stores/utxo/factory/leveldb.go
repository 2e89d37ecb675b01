package factory

import (
	"context"
	"net/url"

	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/leveldb"
	"github.com/bsv-blockchain/chainstate/ulogger"
)

func init() {
	availableDatabases["leveldb"] = func(_ context.Context, logger ulogger.Logger, tSettings *settings.Settings, storeURL *url.URL) (utxo.Store, error) {
		return leveldb.New(logger, storeURL, tSettings.UtxoStore.Sync)
	}
}
