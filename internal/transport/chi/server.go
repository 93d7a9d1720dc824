package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/request"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	logpkg "github.com/codevoyager1984/math-agent/internal/logger"
	"github.com/codevoyager1984/math-agent/internal/metrics"
	healthuc "github.com/codevoyager1984/math-agent/internal/usecase/health"
	searchuc "github.com/codevoyager1984/math-agent/internal/usecase/search"
)

const (
	maxBatchSize = 100
	// maxBodyBytes bounds request bodies: a full batch of maximum-size knowledge points.
	maxBodyBytes = maxBatchSize * (document.MaxContentSize + 64<<10)
)

// Engine is the retrieval engine served over HTTP.
type Engine interface {
	Ingest(ctx context.Context, docs []document.Document) error
	Upsert(ctx context.Context, docs []document.Document) error
	Delete(ctx context.Context, ids []string) error
	ClearAll(ctx context.Context) error
	Query(ctx context.Context, req *request.Request) (result.Response, error)
	GetByID(ctx context.Context, id string) (result.RankedResult, error)
	Health(ctx context.Context) healthuc.Report
	Stats(ctx context.Context) searchuc.Stats
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, write bool) bool

// Server holds the HTTP handlers of the knowledge point API.
type Server struct {
	engine        Engine
	defaults      request.Defaults
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(engine Engine, logger *zap.Logger) *Server {
	s := &Server{engine: engine, logger: logger}
	// Order matters: a joined error carrying both ErrStoreUnavailable and ErrDocumentNotFound
	// is reported as unavailable.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed, true),
		sentinelHandler(domain.ErrPartialWrite, http.StatusBadGateway, CodePartialWrite, true),
		sentinelHandler(domain.ErrTextSearchNotSupported,
			http.StatusNotImplemented, CodeTextSearchNotSupp, false),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable, false),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound, true),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadGateway, CodeVectorDimMismatch, false),
		sentinelHandler(domain.ErrEmbeddingFailure, http.StatusBadGateway, CodeEmbeddingFailure, false),
	}
	return s
}

// WithQueryDefaults sets the values used for query fields a client leaves unset.
func (s *Server) WithQueryDefaults(d request.Defaults) *Server {
	s.defaults = d
	return s
}

// Ingest handles POST /v1/knowledge-points. Entries without an id get a generated one.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, true, s.engine.Ingest)
}

// Upsert handles PUT /v1/knowledge-points. Every entry must carry an id.
func (s *Server) Upsert(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, false, s.engine.Upsert)
}

func (s *Server) write(
	w http.ResponseWriter,
	r *http.Request,
	assignIDs bool,
	op func(context.Context, []document.Document) error,
) {
	var req KnowledgePointsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.KnowledgePoints) == 0 {
		writeWriteError(w, http.StatusBadRequest, CodeValidationFailed, "knowledge_points must not be empty")
		return
	}
	if len(req.KnowledgePoints) > maxBatchSize {
		writeWriteError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("batch size exceeds maximum of %d", maxBatchSize))
		return
	}

	docs, err := DocumentsFromDTO(req.KnowledgePoints, assignIDs)
	if err != nil {
		s.handleDomainError(w, r, err, true)
		return
	}
	ctx, usage := domain.NewContextWithUsage(r.Context())
	if err := op(ctx, docs); err != nil {
		s.handleDomainError(w, r, err, true)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, WriteResponse{Success: true, IDs: document.IDs(docs)})
}

// BulkDelete handles POST /v1/knowledge-points/delete.
func (s *Server) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeWriteError(w, http.StatusBadRequest, CodeValidationFailed, "ids must not be empty")
		return
	}
	if len(req.IDs) > maxBatchSize {
		writeWriteError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("batch size exceeds maximum of %d", maxBatchSize))
		return
	}
	s.deleteIDs(w, r, req.IDs)
}

// DeleteKnowledgePoint handles DELETE /v1/knowledge-points/{id}.
func (s *Server) DeleteKnowledgePoint(w http.ResponseWriter, r *http.Request) {
	s.deleteIDs(w, r, []string{chi.URLParam(r, "id")})
}

func (s *Server) deleteIDs(w http.ResponseWriter, r *http.Request, ids []string) {
	if err := s.engine.Delete(r.Context(), ids); err != nil {
		s.handleDomainError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Success: true, IDs: ids})
}

// ClearAll handles DELETE /v1/knowledge-points.
func (s *Server) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearAll(r.Context()); err != nil {
		s.handleDomainError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Success: true})
}

// GetKnowledgePoint handles GET /v1/knowledge-points/{id}.
func (s *Server) GetKnowledgePoint(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, RankedResultFromResult(&res))
}

// Query handles POST /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var body QueryRequest
	if !s.decode(w, r, &body) {
		return
	}

	req, err := queryRequestFromDTO(&body, s.defaults)
	if err != nil {
		s.handleDomainError(w, r, err, false)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.engine.Query(ctx, &req)
	if err != nil {
		s.handleDomainError(w, r, err, false)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, QueryResponseFromResult(req.Query(), &resp))
}

// Stats handles GET /v1/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Stats(r.Context())
	writeJSON(w, http.StatusOK, StatsFromResult(&st))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Health(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthFromReport(&report))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Used() {
		w.Header().Set(metrics.EmbeddingTokensHeader, strconv.Itoa(usage.Total()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// writeWriteError is writeError for mutating endpoints, whose bodies carry "success": false.
func writeWriteError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	ok := false
	writeJSON(w, status, ErrorResponse{
		Success: &ok,
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns the message exposed to clients. Validation errors keep their
// detail, a partial write reports which store failed, and everything else is reduced to its
// sentinel.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidInput) {
		return err.Error()
	}
	var pw *domain.PartialWriteError
	if errors.As(err, &pw) {
		return pw.Summary()
	}
	if errors.Is(err, domain.ErrPartialWrite) {
		return domain.ErrPartialWrite.Error()
	}
	sentinels := []error{
		domain.ErrTextSearchNotSupported,
		domain.ErrStoreUnavailable,
		domain.ErrDocumentNotFound,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingFailure,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler maps a sentinel to a status. detailed exposes the safe domain message instead
// of the bare sentinel text.
func sentinelHandler(sentinel error, status int, code ErrorCode, detailed bool) errorHandler {
	return func(w http.ResponseWriter, err error, write bool) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if detailed {
			msg = safeDomainMessage(err)
		}
		if write {
			writeWriteError(w, status, code, msg)
		} else {
			writeError(w, status, code, msg)
		}
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error, write bool) {
	log := logpkg.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err, write) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	if write {
		writeWriteError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
		return
	}
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
