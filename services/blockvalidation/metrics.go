package blockvalidation

import (
	"sync"

	"github.com/bsv-blockchain/chainstate/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusBlockValidationContextFree  prometheus.Histogram
	prometheusBlockValidationContextual   prometheus.Histogram
	prometheusBlockValidationScripts      prometheus.Histogram
	prometheusBlockValidationTransactions prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

// initPrometheusMetrics uses sync.Once so that repeated construction does not
// register the collectors twice.
func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusBlockValidationContextFree = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "blockvalidation",
			Name:      "check_context_free",
			Help:      "Histogram of context-free block checks",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusBlockValidationContextual = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "blockvalidation",
			Name:      "check_contextual",
			Help:      "Histogram of contextual block checks, including the UTXO connect",
			Buckets:   util.MetricsBucketsMilliLongSeconds,
		},
	)

	prometheusBlockValidationScripts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainstate",
			Subsystem: "blockvalidation",
			Name:      "verify_scripts",
			Help:      "Histogram of parallel script verification per block",
			Buckets:   util.MetricsBucketsSeconds,
		},
	)

	prometheusBlockValidationTransactions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "blockvalidation",
			Name:      "transactions",
			Help:      "Number of transactions in blocks that passed contextual validation",
		},
	)
}
