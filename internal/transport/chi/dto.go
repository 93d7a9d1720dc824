package chi

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/mode"
	"github.com/codevoyager1984/math-agent/internal/domain/search/request"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
	healthuc "github.com/codevoyager1984/math-agent/internal/usecase/health"
	searchuc "github.com/codevoyager1984/math-agent/internal/usecase/search"
)

// ErrorCode is a machine-readable error code.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeDocumentNotFound  ErrorCode = "document_not_found"
	CodePartialWrite      ErrorCode = "partial_write"
	CodeStoreUnavailable  ErrorCode = "store_unavailable"
	CodeEmbeddingFailure  ErrorCode = "embedding_failure"
	CodeVectorDimMismatch ErrorCode = "vector_dim_mismatch"
	CodeTextSearchNotSupp ErrorCode = "text_search_not_supported"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every error. Success is set on write endpoints only.
type ErrorResponse struct {
	Success *bool     `json:"success,omitempty"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// WriteResponse is the body of a successful write.
type WriteResponse struct {
	Success bool     `json:"success"`
	IDs     []string `json:"ids,omitempty"`
}

// ExampleDTO is a worked problem.
type ExampleDTO struct {
	Question   string `json:"question"`
	Solution   string `json:"solution"`
	Difficulty string `json:"difficulty,omitempty"`
}

// KnowledgePointDTO is one knowledge point in a write request. Content is composed from the
// metadata when omitted.
type KnowledgePointDTO struct {
	ID          string       `json:"id,omitempty"`
	Content     string       `json:"content,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    string       `json:"category,omitempty"`
	Examples    []ExampleDTO `json:"examples,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// KnowledgePointsRequest is the body of the ingest and upsert endpoints.
type KnowledgePointsRequest struct {
	KnowledgePoints []KnowledgePointDTO `json:"knowledge_points"`
}

// DeleteRequest is the body of the bulk delete endpoint.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Query        string   `json:"query"`
	NResults     int      `json:"n_results,omitempty"`
	SearchMode   string   `json:"search_mode,omitempty"`
	VectorWeight *float64 `json:"vector_weight,omitempty"`
	TextWeight   *float64 `json:"text_weight,omitempty"`
	EnableRerank *bool    `json:"enable_rerank,omitempty"`
	RerankMethod string   `json:"rerank_method,omitempty"`
	RerankTopK   int      `json:"rerank_top_k,omitempty"`
}

// WeightsDTO holds the fusion weights.
type WeightsDTO struct {
	Vector float64 `json:"vector"`
	Text   float64 `json:"text"`
}

// SearchMetadataDTO describes how a hybrid score was composed.
type SearchMetadataDTO struct {
	VectorScore float64    `json:"vector_score"`
	TextScore   float64    `json:"text_score"`
	Weights     WeightsDTO `json:"weights"`
}

// RankedResultDTO is one query result.
type RankedResultDTO struct {
	ID              string              `json:"id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Category        string              `json:"category"`
	Content         string              `json:"content"`
	Examples        []ExampleDTO        `json:"examples"`
	Tags            []string            `json:"tags"`
	CreatedAt       *time.Time          `json:"created_at,omitempty"`
	UpdatedAt       *time.Time          `json:"updated_at,omitempty"`
	Distance        *float64            `json:"distance,omitempty"`
	VectorScore     *float64            `json:"vector_score,omitempty"`
	TextScore       *float64            `json:"text_score,omitempty"`
	FusionScore     *float64            `json:"fusion_score,omitempty"`
	RerankScore     *float64            `json:"rerank_score,omitempty"`
	RerankMethod    string              `json:"rerank_method,omitempty"`
	FinalScore      *float64            `json:"final_score,omitempty"`
	SimilarityScore float64             `json:"similarity_score"`
	SearchMetadata  *SearchMetadataDTO  `json:"search_metadata,omitempty"`
	Highlight       map[string][]string `json:"highlight,omitempty"`
}

// TimingDTO holds stage durations in milliseconds.
type TimingDTO struct {
	VectorSearch float64 `json:"vector_search"`
	TextSearch   float64 `json:"text_search"`
	Fusion       float64 `json:"fusion"`
	Rerank       float64 `json:"rerank"`
	Total        float64 `json:"total"`
}

// SearchStatsDTO summarizes how a query was answered.
type SearchStatsDTO struct {
	SearchMode      string   `json:"search_mode"`
	VectorResults   int      `json:"vector_results"`
	TextResults     int      `json:"text_results"`
	FusedResults    int      `json:"fused_results"`
	TotalCandidates int      `json:"total_candidates"`
	RerankEnabled   bool     `json:"rerank_enabled"`
	RerankMethod    string   `json:"rerank_method,omitempty"`
	RerankApplied   bool     `json:"rerank_applied"`
	RerankedResults int      `json:"reranked_results"`
	FinalResults    int      `json:"final_results"`
	Degraded        []string `json:"degraded,omitempty"`
	RerankError     string   `json:"rerank_error,omitempty"`
}

// QueryResponse is the body of a successful query.
type QueryResponse struct {
	Results      []RankedResultDTO `json:"results"`
	Query        string            `json:"query"`
	TotalResults int               `json:"total_results"`
	SearchMode   string            `json:"search_mode"`
	Timing       TimingDTO         `json:"timing"`
	SearchStats  SearchStatsDTO    `json:"search_stats"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StoreStatsDTO is the document count of one store.
type StoreStatsDTO struct {
	Status    string `json:"status"`
	Documents int    `json:"documents"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	VectorStore StoreStatsDTO `json:"vector_store"`
	TextIndex   StoreStatsDTO `json:"text_index"`
}

// DocumentsFromDTO validates a write batch. When assignIDs is set, entries without an id get
// a random one; otherwise an id is required.
func DocumentsFromDTO(items []KnowledgePointDTO, assignIDs bool) ([]document.Document, error) {
	docs := make([]document.Document, 0, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" && assignIDs {
			id = uuid.NewString()
		}

		md := document.Metadata{
			Title:       item.Title,
			Description: item.Description,
			Category:    item.Category,
			Tags:        item.Tags,
		}
		for _, ex := range item.Examples {
			md.Examples = append(md.Examples, document.Example{
				Question:   ex.Question,
				Solution:   ex.Solution,
				Difficulty: document.Difficulty(ex.Difficulty),
			})
		}

		content := item.Content
		if strings.TrimSpace(content) == "" {
			content = document.ComposeContent(&md)
		}

		doc, err := document.New(id, content, md)
		if err != nil {
			return nil, fmt.Errorf("%w: knowledge point %d: %w", domain.ErrInvalidInput, i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func queryRequestFromDTO(req *QueryRequest, defaults request.Defaults) (request.Request, error) {
	r, err := request.New(defaults.Apply(request.Params{
		Query:        req.Query,
		N:            req.NResults,
		Mode:         mode.Mode(req.SearchMode),
		VectorWeight: req.VectorWeight,
		TextWeight:   req.TextWeight,
		EnableRerank: req.EnableRerank,
		RerankMethod: score.Method(req.RerankMethod),
		RerankTopK:   req.RerankTopK,
	}))
	if err != nil {
		return request.Request{}, fmt.Errorf("build query request: %w", err)
	}
	return r, nil
}

// RankedResultFromResult renders one result.
func RankedResultFromResult(r *result.RankedResult) RankedResultDTO {
	examples := make([]ExampleDTO, len(r.Examples))
	for i, ex := range r.Examples {
		examples[i] = ExampleDTO{Question: ex.Question, Solution: ex.Solution, Difficulty: string(ex.Difficulty)}
	}
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}

	out := RankedResultDTO{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		Category:        r.Category,
		Content:         r.Content,
		Examples:        examples,
		Tags:            tags,
		CreatedAt:       timePtr(r.CreatedAt),
		UpdatedAt:       timePtr(r.UpdatedAt),
		Distance:        r.Scores.Distance,
		VectorScore:     r.Scores.VectorScore,
		TextScore:       r.Scores.TextScore,
		FusionScore:     r.Scores.FusionScore,
		RerankScore:     r.Scores.RerankScore,
		RerankMethod:    string(r.Scores.RerankMethod),
		FinalScore:      r.Scores.FinalScore,
		SimilarityScore: r.Scores.SimilarityScore,
		Highlight:       r.Highlight,
	}
	if r.Fusion != nil {
		out.SearchMetadata = &SearchMetadataDTO{
			VectorScore: r.Fusion.VectorScore,
			TextScore:   r.Fusion.TextScore,
			Weights:     WeightsDTO{Vector: r.Fusion.VectorWeight, Text: r.Fusion.TextWeight},
		}
	}
	return out
}

// QueryResponseFromResult renders a query response.
func QueryResponseFromResult(query string, resp *result.Response) QueryResponse {
	results := make([]RankedResultDTO, len(resp.Results))
	for i := range resp.Results {
		results[i] = RankedResultFromResult(&resp.Results[i])
	}

	st := resp.Stats
	var degraded []string
	for _, m := range st.Degraded {
		degraded = append(degraded, string(m))
	}

	return QueryResponse{
		Results:      results,
		Query:        query,
		TotalResults: len(results),
		SearchMode:   string(st.SearchMode),
		Timing: TimingDTO{
			VectorSearch: millis(resp.Timing.VectorSearch),
			TextSearch:   millis(resp.Timing.TextSearch),
			Fusion:       millis(resp.Timing.Fusion),
			Rerank:       millis(resp.Timing.Rerank),
			Total:        millis(resp.Timing.Total),
		},
		SearchStats: SearchStatsDTO{
			SearchMode:      string(st.SearchMode),
			VectorResults:   st.VectorResults,
			TextResults:     st.TextResults,
			FusedResults:    st.FusedResults,
			TotalCandidates: st.TotalCandidates,
			RerankEnabled:   st.RerankEnabled,
			RerankMethod:    string(st.RerankMethod),
			RerankApplied:   st.RerankApplied,
			RerankedResults: st.RerankedResults,
			FinalResults:    st.FinalResults,
			Degraded:        degraded,
			RerankError:     st.RerankError,
		},
	}
}

// HealthFromReport renders a health report.
func HealthFromReport(report *healthuc.Report) HealthResponse {
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthResponse{Status: string(report.Status), Checks: checks}
}

// StatsFromResult renders per-store counts.
func StatsFromResult(st *searchuc.Stats) StatsResponse {
	return StatsResponse{
		VectorStore: storeStatsToDTO(st.VectorStore),
		TextIndex:   storeStatsToDTO(st.TextIndex),
	}
}

func storeStatsToDTO(c searchuc.StoreCount) StoreStatsDTO {
	if c.Err != nil {
		return StoreStatsDTO{Status: "error"}
	}
	return StoreStatsDTO{Status: "ok", Documents: c.Documents}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
