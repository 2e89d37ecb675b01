package settings

import (
	"net/url"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

type Settings struct {
	ClientName      string
	DataFolder      string
	LogLevel        string
	PrettyLogs      bool
	ChainCfgParams  *chaincfg.Params
	Policy          *PolicySettings
	Mempool         MempoolSettings
	BlockValidation BlockValidationSettings
	Validator       ValidatorSettings
	UtxoStore       UtxoStoreSettings
	BlockChain      BlockChainSettings
	BlockStore      BlockStoreSettings
	FeeEstimator    FeeEstimatorSettings
	Chainstate      ChainstateSettings
	Tracing         TracingSettings
}

type PolicySettings struct {
	ExcessiveBlockSize           int
	MaxTxSizePolicy              int
	MaxScriptSizePolicy          int
	MaxUnlockingScriptSizePolicy int
	MaxTxSigopsCountsPolicy      int64
	DustLimit                    uint64
	RequireStandard              bool
	AcceptNonStdOutputs          bool
	DataCarrierSize              int
}

func (ps *PolicySettings) GetExcessiveBlockSize() int {
	return ps.ExcessiveBlockSize
}

func (ps *PolicySettings) GetMaxTxSizePolicy() int {
	return ps.MaxTxSizePolicy
}

func (ps *PolicySettings) GetMaxScriptSizePolicy() int {
	return ps.MaxScriptSizePolicy
}

func (ps *PolicySettings) GetMaxTxSigopsCountsPolicy() int64 {
	return ps.MaxTxSigopsCountsPolicy
}

func (ps *PolicySettings) GetDustLimit() uint64 {
	return ps.DustLimit
}

type MempoolSettings struct {
	MaxSizeBytes            int64
	MinRelayFeeSatsPerKB    uint64
	MaxAncestorCount        int
	MaxAncestorSize         int
	MaxDescendantCount      int
	MaxDescendantSize       int
	MaxPackageFee           uint64
	RBFPolicy               string
	MaxReplacementEvictions int
	Expiry                  time.Duration
	OrphanExpiry            time.Duration
	MaxOrphanTxs            int
	RecentRejectsCapacity   uint64
}

type BlockValidationSettings struct {
	Workers            int
	MaxFutureBlockTime time.Duration
	OrphanBlockTTL     time.Duration
	MaxOrphanBlocks    int
}

type ValidatorSettings struct {
	ScriptVerifier string
}

type UtxoStoreSettings struct {
	StoreURL *url.URL
	Sync     bool
}

type BlockChainSettings struct {
	StoreURL *url.URL
}

type BlockStoreSettings struct {
	StoreURL        *url.URL
	Prune           bool
	PruneKeepBlocks int
}

type FeeEstimatorSettings struct {
	MaxTarget        int
	Decay            float64
	SuccessThreshold float64
	SufficientTxs    float64
	BucketSpacing    float64
	MinBucketFeeRate float64
	MaxBucketFeeRate float64
}

type ChainstateSettings struct {
	Reindex                 string
	PrometheusListenAddress string
	StatsPrefix             string
	CheckMempoolConsistency bool
}

type TracingSettings struct {
	Enabled      bool
	SampleRate   float64
	CollectorURL *url.URL
	ServiceName  string
	Version      string
}
