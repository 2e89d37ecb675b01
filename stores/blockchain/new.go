package blockchain

import (
	"net/url"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/blockchain/sql"
	"github.com/bsv-blockchain/chainstate/ulogger"
)

func NewStore(logger ulogger.Logger, storeURL *url.URL, dataFolder string) (Store, error) {
	if storeURL == nil {
		return nil, errors.NewConfigurationError("blockchain store url is nil")
	}

	switch storeURL.Scheme {
	case "postgres", "sqlitememory", "sqlite":
		return sql.New(logger, storeURL, dataFolder)
	}

	return nil, errors.NewConfigurationError("unknown scheme: %s", storeURL.Scheme)
}
