package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure with at least one store up.
	Degraded Status = "degraded"
	// Unhealthy indicates both stores are down.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names in Report.Checks.
const (
	VectorStore    = "vector_store"
	TextIndex      = "text_index"
	EmbeddingModel = "embedding_model"
	RerankModel    = "rerank_model"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 5 * time.Second

// Report aggregates health check results. The rerank_model check holds the model load state.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	vec       Pinger
	text      Pinger
	embedding EmbeddingChecker
	rerank    ModelStater
	timeout   time.Duration
}

// New creates a Service. embedding and rerank can be nil.
func New(vec, text Pinger, embedding EmbeddingChecker, rerank ModelStater) *Service {
	return &Service{
		vec:       vec,
		text:      text,
		embedding: embedding,
		rerank:    rerank,
		timeout:   DefaultCheckTimeout,
	}
}

// Check runs health checks against all components concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var vecRes, textRes, embRes CheckResult
	var g errgroup.Group
	g.Go(func() error {
		vecRes = s.probe(ctx, s.vec.Ping)
		return nil
	})
	g.Go(func() error {
		textRes = s.probe(ctx, s.text.Ping)
		return nil
	})
	if s.embedding != nil {
		g.Go(func() error {
			embRes = s.probe(ctx, s.embedding.HealthCheck)
			return nil
		})
	}
	_ = g.Wait()

	checks := map[string]CheckResult{
		VectorStore: vecRes,
		TextIndex:   textRes,
	}
	if s.embedding != nil {
		checks[EmbeddingModel] = embRes
	}
	if s.rerank != nil {
		checks[RerankModel] = CheckResult(s.rerank.ModelState())
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if vecRes == CheckError && textRes == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) probe(ctx context.Context, fn func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
