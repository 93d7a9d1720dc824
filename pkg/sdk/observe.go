package mathagent

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/domain"
)

type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	items      *prometheus.HistogramVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragserver", Subsystem: "sdk", Name: "operations_total",
			Help: "SDK operations by type and outcome.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragserver", Subsystem: "sdk", Name: "operation_duration_seconds",
			Help:    "SDK operation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		items: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragserver", Subsystem: "sdk", Name: "operation_items",
			Help:    "Knowledge points written, deleted or returned per successful SDK operation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"operation"}),
	}
	for _, err := range []error{
		registerOrReuse(reg, &m.operations),
		registerOrReuse(reg, &m.duration),
		registerOrReuse(reg, &m.items),
	} {
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// registerOrReuse registers c, or points it at the collector already registered under its name.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("mathagent: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("mathagent: metric already registered with incompatible type: %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// outcome classifies err for the status label. Caller mistakes are not failures of the engine.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

type observer struct {
	logger  *zap.Logger
	metrics *sdkMetrics
}

func newObserver(logger *zap.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if reg != nil {
		m, err := newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

// span times one SDK call.
type span struct {
	obs   *observer
	op    string
	start time.Time
}

func (o *observer) begin(op string) span {
	return span{obs: o, op: op, start: time.Now()}
}

// end records the call. items counts the knowledge points it touched and is ignored on error.
func (s span) end(items int, err error) {
	o := s.obs
	if o == nil {
		return
	}
	dur := time.Since(s.start)
	status := outcome(err)

	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(s.op, status).Inc()
		o.metrics.duration.WithLabelValues(s.op).Observe(dur.Seconds())
		if err == nil {
			o.metrics.items.WithLabelValues(s.op).Observe(float64(items))
		}
	}

	switch status {
	case "ok":
		o.logger.Debug("Operation completed",
			zap.String("op", s.op), zap.Int("items", items), zap.Duration("duration", dur))
	case "error":
		o.logger.Warn("Operation failed",
			zap.String("op", s.op), zap.Duration("duration", dur), zap.Error(err))
	default:
		o.logger.Debug("Operation rejected",
			zap.String("op", s.op), zap.String("status", status), zap.Error(err))
	}
}
