package rerank

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/metrics"
)

// ModelState is the load state of the cross-encoder model.
type ModelState string

// Model states.
const (
	ModelUnloaded ModelState = "unloaded"
	ModelLoading  ModelState = "loading"
	ModelLoaded   ModelState = "loaded"
)

// DefaultModelLoadTimeout bounds one load attempt.
const DefaultModelLoadTimeout = 120 * time.Second

// loadAttempt is the memoized result of one load. done is closed once err is final.
type loadAttempt struct {
	done chan struct{}
	err  error
}

// lazyModel loads a model on first use. Concurrent callers share a single attempt; a failed
// attempt resets the state so the next caller starts a new one.
type lazyModel struct {
	load    func(ctx context.Context) error
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	state   ModelState
	attempt *loadAttempt
}

func newLazyModel(load func(ctx context.Context) error, timeout time.Duration, logger *zap.Logger) *lazyModel {
	if timeout <= 0 {
		timeout = DefaultModelLoadTimeout
	}
	return &lazyModel{
		load:    load,
		timeout: timeout,
		logger:  logger,
		state:   ModelUnloaded,
	}
}

// ensure returns once the model is loaded, the shared attempt failed, or ctx is done.
// The load itself is detached from ctx so an impatient first caller does not abort it.
func (m *lazyModel) ensure(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case ModelLoaded:
		m.mu.Unlock()
		return nil
	case ModelUnloaded:
		m.attempt = &loadAttempt{done: make(chan struct{})}
		m.state = ModelLoading
		go m.run(context.WithoutCancel(ctx), m.attempt)
	}
	attempt := m.attempt
	m.mu.Unlock()

	select {
	case <-attempt.done:
		return attempt.err
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for model load: %w", domain.ErrRerankFailure, ctx.Err())
	}
}

func (m *lazyModel) run(ctx context.Context, attempt *loadAttempt) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := m.load(ctx)

	m.mu.Lock()
	if err != nil {
		m.state = ModelUnloaded
		attempt.err = fmt.Errorf("%w: model load: %w", domain.ErrRerankFailure, err)
	} else {
		m.state = ModelLoaded
	}
	m.mu.Unlock()
	close(attempt.done)

	if err != nil {
		metrics.RerankModelLoadTotal.WithLabelValues("failed").Inc()
		m.logger.Warn("rerank model load failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	metrics.RerankModelLoadTotal.WithLabelValues("ok").Inc()
	m.logger.Info("rerank model loaded", zap.Duration("elapsed", time.Since(start)))
}

func (m *lazyModel) State() ModelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
