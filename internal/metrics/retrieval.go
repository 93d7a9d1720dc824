package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ragserver"

// Retrieval Prometheus metrics.
var (
	DualWriteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dual_write_total",
			Help:      "Dual writes by operation and outcome",
		},
		[]string{"op", "outcome"}, // outcome: ok / partial / failed
	)

	CompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensating deletes issued after a partial write",
		},
		[]string{"store", "outcome"},
	)

	SearchStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_stage_duration_seconds",
			Help:      "Query stage duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	SearchDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_degraded_total",
			Help:      "Hybrid queries answered with one retrieval axis missing",
		},
		[]string{"axis"},
	)

	RerankTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_total",
			Help:      "Rerank attempts by method and outcome",
		},
		[]string{"method", "outcome"}, // outcome: applied / fallback
	)

	RerankModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_model_load_total",
			Help:      "Cross-encoder model load attempts",
		},
		[]string{"outcome"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers the dual-write, search and rerank metrics.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		DualWriteTotal,
		CompensationsTotal,
		SearchStageDuration,
		SearchDegradedTotal,
		RerankTotal,
		RerankModelLoadTotal,
	)
	retrievalMetricsRegistered = true
}
