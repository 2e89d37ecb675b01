// Package settings loads the chainstate configuration from gocore (settings.conf,
// settings_local.conf and environment overrides) into typed, grouped structs.
package settings

import (
	"time"

	"github.com/bsv-blockchain/chainstate/util/bytesize"
	"github.com/bsv-blockchain/go-chaincfg"
)

func NewSettings() *Settings {
	params, err := chaincfg.GetChainParams(getString("network", "mainnet"))
	if err != nil {
		panic(err)
	}

	mempoolMaxSize, err := bytesize.Parse(getString("mempool_maxSize", "300MB"))
	if err != nil {
		panic(err)
	}

	return &Settings{
		ClientName:     getString("clientName", "chainstate"),
		DataFolder:     getString("dataFolder", "data"),
		LogLevel:       getString("logLevel", "INFO"),
		PrettyLogs:     getBool("PRETTY_LOGS", true),
		ChainCfgParams: params,
		Policy: &PolicySettings{
			ExcessiveBlockSize:           getInt("excessiveblocksize", 4294967296), // 4GB
			MaxTxSizePolicy:              getInt("maxtxsizepolicy", 10485760),      // 10MB
			MaxScriptSizePolicy:          getInt("maxscriptsizepolicy", 500000),
			MaxUnlockingScriptSizePolicy: getInt("maxunlockingscriptsizepolicy", 1650),
			MaxTxSigopsCountsPolicy:      getInt64("maxtxsigopscountspolicy", 0), // 0 is unlimited
			DustLimit:                    getUint64("dustlimit", 1),
			RequireStandard:              getBool("requirestandard", true),
			AcceptNonStdOutputs:          getBool("acceptnonstdoutputs", true),
			DataCarrierSize:              getInt("datacarriersize", 0), // 0 is unlimited
		},
		Mempool: MempoolSettings{
			MaxSizeBytes:            mempoolMaxSize.Int64(),
			MinRelayFeeSatsPerKB:    getUint64("mempool_minRelayFeeSatsPerKB", 1000),
			MaxAncestorCount:        getInt("mempool_maxAncestorCount", 25),
			MaxAncestorSize:         getInt("mempool_maxAncestorSize", 101000),
			MaxDescendantCount:      getInt("mempool_maxDescendantCount", 25),
			MaxDescendantSize:       getInt("mempool_maxDescendantSize", 101000),
			MaxPackageFee:           getUint64("mempool_maxPackageFee", 0),
			RBFPolicy:               getString("mempool_rbfPolicy", "optin"),
			MaxReplacementEvictions: getInt("mempool_maxReplacementEvictions", 100),
			Expiry:                  getDuration("mempool_expiry", 336*time.Hour),
			OrphanExpiry:            getDuration("mempool_orphanExpiry", 20*time.Minute),
			MaxOrphanTxs:            getInt("mempool_maxOrphanTxs", 100),
			RecentRejectsCapacity:   getUint64("mempool_recentRejectsCapacity", 120000),
		},
		BlockValidation: BlockValidationSettings{
			Workers:            getInt("blockvalidation_workers", 16),
			MaxFutureBlockTime: getDuration("blockvalidation_maxFutureBlockTime", 2*time.Hour),
			OrphanBlockTTL:     getDuration("blockvalidation_orphanBlockTTL", 10*time.Minute),
			MaxOrphanBlocks:    getInt("blockvalidation_maxOrphanBlocks", 750),
		},
		Validator: ValidatorSettings{
			ScriptVerifier: getString("validator_scriptVerifier", "GoBT"),
		},
		UtxoStore: UtxoStoreSettings{
			StoreURL: getURL("utxostore", "leveldb://./data/chainstate"),
			Sync:     getBool("utxostore_sync", true),
		},
		BlockChain: BlockChainSettings{
			StoreURL: getURL("blockchain_store", "sqlite:///blockindex"),
		},
		BlockStore: BlockStoreSettings{
			StoreURL:        getURL("blockstore", "file://./data/blocks"),
			Prune:           getBool("blockstore_prune", false),
			PruneKeepBlocks: getInt("blockstore_pruneKeepBlocks", 288),
		},
		FeeEstimator: FeeEstimatorSettings{
			MaxTarget:        getInt("feeestimator_maxTarget", 25),
			Decay:            getFloat64("feeestimator_decay", 0.998),
			SuccessThreshold: getFloat64("feeestimator_successThreshold", 0.85),
			SufficientTxs:    getFloat64("feeestimator_sufficientTxs", 1),
			BucketSpacing:    getFloat64("feeestimator_bucketSpacing", 1.05),
			MinBucketFeeRate: getFloat64("feeestimator_minBucketFeeRate", 1),   // sat/kB
			MaxBucketFeeRate: getFloat64("feeestimator_maxBucketFeeRate", 1e7), // sat/kB
		},
		Chainstate: ChainstateSettings{
			Reindex:                 getString("reindex", ""),
			PrometheusListenAddress: getString("prometheus_listenAddress", ":9091"),
			StatsPrefix:             getString("stats_prefix", "chainstate"),
			CheckMempoolConsistency: getBool("chainstate_checkMempool", false),
		},
		Tracing: TracingSettings{
			Enabled:      getBool("tracing_enabled", false),
			SampleRate:   getFloat64("tracing_SampleRate", 0.01),
			CollectorURL: getURL("tracing_collector_url", "http://localhost:4318"),
			ServiceName:  getString("tracing_serviceName", "chainstate"),
			Version:      getString("version", "dev"),
		},
	}
}
