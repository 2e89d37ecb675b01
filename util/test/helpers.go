// Package test holds helpers shared by package tests: regtest settings and a
// chain builder that mines real blocks.
package test

import (
	"net/url"

	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/go-chaincfg"
)

// CreateBaseTestSettings returns regtest settings backed by in-memory stores,
// with a coinbase maturity of 1 so tests can spend coinbases right away.
func CreateBaseTestSettings() *settings.Settings {
	tSettings := settings.NewSettings()

	params := chaincfg.RegressionNetParams
	params.CoinbaseMaturity = 1
	tSettings.ChainCfgParams = &params

	tSettings.UtxoStore.StoreURL = mustParseURL("memory://")
	tSettings.BlockChain.StoreURL = mustParseURL("sqlitememory:///blockindex")
	tSettings.BlockStore.StoreURL = mustParseURL("memory://")
	tSettings.Validator.ScriptVerifier = "GoBT"
	tSettings.BlockValidation.Workers = 4

	return tSettings
}

func mustParseURL(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		panic(err)
	}

	return u
}
