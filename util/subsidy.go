package util

import (
	"github.com/bsv-blockchain/go-chaincfg"
)

const baseSubsidy = 50 * 100_000_000

// GetBlockSubsidy returns the coinbase reward available at height.
func GetBlockSubsidy(height uint32, params *chaincfg.Params) uint64 {
	if params.SubsidyReductionInterval <= 0 {
		return baseSubsidy
	}

	halvings := height / uint32(params.SubsidyReductionInterval) //nolint:gosec // checked positive
	if halvings >= 64 {
		return 0
	}

	return baseSubsidy >> halvings
}
