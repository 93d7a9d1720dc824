package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding provider metrics, recorded by transport/openai and repository/embcache.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding provider calls by outcome",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "request_duration_seconds",
			Help:      "Embedding provider call latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	// EmbeddingBatchTexts is the number of texts sent per provider call: 1 for queries,
	// up to embedding.batch_size for ingestion.
	EmbeddingBatchTexts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "batch_texts",
			Help:      "Texts per embedding provider call",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
		[]string{"provider"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "tokens_total",
			Help:      "Tokens billed by the embedding provider",
		},
		[]string{"provider", "model", "type"}, // type: prompt / total
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "errors_total",
			Help:      "Embedding failures by kind",
		},
		[]string{"provider", "model", "error_type"}, // api_error / empty_response / dimension_mismatch
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_total",
			Help:      "Embedding cache lookups",
		},
		[]string{"result"}, // hit / miss
	)
)

var embMetricsRegistered bool

// RegisterEmbeddingMetrics registers the embedding collectors on the default registry.
// Repeated calls are no-ops.
func RegisterEmbeddingMetrics() {
	if embMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingBatchTexts,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingCacheTotal,
	)
	embMetricsRegistered = true
}
