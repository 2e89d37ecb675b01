package chainstate

import (
	"sync"

	"github.com/bsv-blockchain/chainstate/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusChainstateVerdicts      *prometheus.CounterVec
	prometheusChainstateActivate      prometheus.Histogram
	prometheusChainstateReorgs        prometheus.Counter
	prometheusChainstateReorgDepth    prometheus.Histogram
	prometheusChainstateFailedBlocks  prometheus.Counter
	prometheusChainstateTipHeight     prometheus.Gauge
	prometheusChainstateOrphanBlocks  prometheus.Gauge
	prometheusChainstatePrunedBlocks  prometheus.Counter
	prometheusChainstateCorrupt       prometheus.Gauge
	prometheusChainstateReindexBlocks prometheus.Counter
	prometheusChainstateReindexes     prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusChainstateVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "verdicts",
			Help:      "Number of verdicts by object type and result",
		},
		[]string{"object", "result"},
	)

	prometheusChainstateActivate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "activate_best_chain",
			Help:      "Histogram of ActivateBestChain runs",
			Buckets:   util.MetricsBucketsMilliLongSeconds,
		},
	)

	prometheusChainstateReorgs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "reorgs",
			Help:      "Number of committed reorganizations that disconnected blocks",
		},
	)

	prometheusChainstateReorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "reorg_depth",
			Help:      "Number of blocks disconnected per reorganization",
			Buckets:   []float64{1, 2, 3, 4, 6, 10, 20, 50, 100},
		},
	)

	prometheusChainstateFailedBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "failed_blocks",
			Help:      "Number of blocks marked failed",
		},
	)

	prometheusChainstateTipHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "tip_height",
			Help:      "Height of the active tip",
		},
	)

	prometheusChainstateOrphanBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "orphan_blocks",
			Help:      "Number of blocks waiting for their parent",
		},
	)

	prometheusChainstatePrunedBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "pruned_blocks",
			Help:      "Number of block files and undo records pruned",
		},
	)

	prometheusChainstateCorrupt = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "corrupt",
			Help:      "1 while the chainstate is latched read-only after a store failure",
		},
	)

	prometheusChainstateReindexBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "reindex_blocks",
			Help:      "Number of stored blocks re-indexed by a full reindex",
		},
	)

	prometheusChainstateReindexes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "chainstate",
			Name:      "reindexes",
			Help:      "Number of reindex runs",
		},
	)
}
