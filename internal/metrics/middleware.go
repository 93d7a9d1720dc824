package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// EmbeddingTokensHeader is set by the HTTP layer on responses that called the embedding provider.
const EmbeddingTokensHeader = "X-Embedding-Tokens"

// unmatchedRoute labels requests no route matched, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			// query latency spans a fast vector pass to a slow LLM rerank
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)

	httpEmbeddingTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "embedding_tokens_total",
			Help:      "Embedding tokens spent serving requests, by route",
		},
		[]string{"route"},
	)
)

var httpMetricsRegistered bool

// RegisterHTTPMetrics registers the HTTP collectors on the default registry.
// Repeated calls are no-ops.
func RegisterHTTPMetrics() {
	if httpMetricsRegistered {
		return
	}
	prometheus.MustRegister(httpRequestDuration, httpRequestsTotal, httpInFlight, httpEmbeddingTokens)
	httpMetricsRegistered = true
}

// Middleware records latency, count and embedding spend per chi route pattern.
// It must run inside the chi router so the route pattern is resolved.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			route := routeLabel(r)
			status := strconv.Itoa(ww.status)
			httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()

			if tokens, err := strconv.Atoi(ww.Header().Get(EmbeddingTokensHeader)); err == nil && tokens > 0 {
				httpEmbeddingTokens.WithLabelValues(route).Add(float64(tokens))
			}
		})
	}
}

func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b) //nolint:wrapcheck // delegating to underlying ResponseWriter
}
