package settings

import (
	"testing"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// check settings object is initialised
func TestInitialiseSettings(t *testing.T) {
	tSettings := NewSettings()

	require.NotNil(t, tSettings.ChainCfgParams)
	require.NotNil(t, tSettings.Policy)
	require.NotNil(t, tSettings.UtxoStore.StoreURL)
	require.NotNil(t, tSettings.BlockChain.StoreURL)
	require.NotNil(t, tSettings.BlockStore.StoreURL)

	assert.Equal(t, 25, tSettings.Mempool.MaxAncestorCount)
	assert.Equal(t, 101000, tSettings.Mempool.MaxDescendantSize)
	assert.Equal(t, uint64(1000), tSettings.Mempool.MinRelayFeeSatsPerKB)
	assert.Equal(t, int64(300_000_000), tSettings.Mempool.MaxSizeBytes)
	assert.Equal(t, 336*time.Hour, tSettings.Mempool.Expiry)
	assert.Equal(t, "optin", tSettings.Mempool.RBFPolicy)
	assert.Equal(t, 100, tSettings.Mempool.MaxReplacementEvictions)
	assert.Equal(t, 25, tSettings.FeeEstimator.MaxTarget)
	assert.InDelta(t, 0.998, tSettings.FeeEstimator.Decay, 1e-9)
	assert.Equal(t, "GoBT", tSettings.Validator.ScriptVerifier)
}

func TestNetworkSelection(t *testing.T) {
	tests := []struct {
		network string
		genesis string
	}{
		{"mainnet", chaincfg.MainNetParams.GenesisHash.String()},
		{"regtest", chaincfg.RegressionNetParams.GenesisHash.String()},
		{"testnet", chaincfg.TestNetParams.GenesisHash.String()},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			t.Setenv("network", tt.network)

			tSettings := NewSettings()
			assert.Equal(t, tt.genesis, tSettings.ChainCfgParams.GenesisHash.String())
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("mempool_rbfPolicy", "full")
	t.Setenv("mempool_maxSize", "5MB")
	t.Setenv("mempool_expiry", "90m")
	t.Setenv("mempool_minRelayFeeSatsPerKB", "250")
	t.Setenv("feeestimator_decay", "0.5")
	t.Setenv("blockstore_prune", "true")

	tSettings := NewSettings()

	assert.Equal(t, "full", tSettings.Mempool.RBFPolicy)
	assert.Equal(t, int64(5_000_000), tSettings.Mempool.MaxSizeBytes)
	assert.Equal(t, 90*time.Minute, tSettings.Mempool.Expiry)
	assert.Equal(t, uint64(250), tSettings.Mempool.MinRelayFeeSatsPerKB)
	assert.InDelta(t, 0.5, tSettings.FeeEstimator.Decay, 1e-9)
	assert.True(t, tSettings.BlockStore.Prune)
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("mempool_expiry", "not-a-duration")
	t.Setenv("feeestimator_successThreshold", "abc")

	tSettings := NewSettings()

	assert.Equal(t, 336*time.Hour, tSettings.Mempool.Expiry)
	assert.InDelta(t, 0.85, tSettings.FeeEstimator.SuccessThreshold, 1e-9)
}
