package feeestimator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusFeeEstimatorTracked   prometheus.Gauge
	prometheusFeeEstimatorConfirmed prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusFeeEstimatorTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainstate",
			Subsystem: "feeestimator",
			Name:      "tracked",
			Help:      "Number of mempool transactions tracked for fee estimation",
		},
	)

	prometheusFeeEstimatorConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainstate",
			Subsystem: "feeestimator",
			Name:      "confirmed",
			Help:      "Number of tracked transactions seen confirmed in a block",
		},
	)
}
