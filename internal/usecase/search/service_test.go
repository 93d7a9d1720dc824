package search

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/mode"
	"github.com/codevoyager1984/math-agent/internal/domain/search/request"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
	"github.com/codevoyager1984/math-agent/internal/usecase/rerank"
)

// --- Mocks ---

type mockVec struct {
	results []result.Candidate
	err     error
	docs    map[string]document.Document
	getErr  error
	count   int
	lastK   int
	called  bool
}

func (m *mockVec) QueryByVector(_ context.Context, _ []float32, k int) ([]result.Candidate, error) {
	m.called = true
	m.lastK = k
	return m.results, m.err
}

func (m *mockVec) Get(_ context.Context, id string) (document.Document, error) {
	if m.getErr != nil {
		return document.Document{}, m.getErr
	}
	doc, ok := m.docs[id]
	if !ok {
		return document.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (m *mockVec) Count(context.Context) (int, error) { return m.count, m.err }

type mockText struct {
	results []result.Candidate
	err     error
	docs    map[string]document.Document
	count   int
	called  bool
}

func (m *mockText) QueryByText(_ context.Context, _ string, _ int) ([]result.Candidate, error) {
	m.called = true
	return m.results, m.err
}

func (m *mockText) Get(_ context.Context, id string) (document.Document, error) {
	if m.err != nil {
		return document.Document{}, m.err
	}
	doc, ok := m.docs[id]
	if !ok {
		return document.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (m *mockText) Count(context.Context) (int, error) { return m.count, m.err }

type mockEmbedder struct {
	err    error
	called bool
}

func (m *mockEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	m.called = true
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type mockReranker struct {
	rerankFn func(cands []result.Candidate, topK int) ([]result.Candidate, rerank.Outcome)
	called   bool
}

func (m *mockReranker) Rerank(
	_ context.Context, _ string, cands []result.Candidate, topK int, method score.Method,
) ([]result.Candidate, rerank.Outcome) {
	m.called = true
	if m.rerankFn == nil {
		return cands[:min(topK, len(cands))], rerank.Outcome{Method: method, Err: domain.ErrRerankFailure}
	}
	return m.rerankFn(cands, topK)
}

// reverseReranker reverses the candidates and scores them with an llm-scale score.
func reverseReranker() *mockReranker {
	return &mockReranker{rerankFn: func(cands []result.Candidate, topK int) ([]result.Candidate, rerank.Outcome) {
		out := slices.Clone(cands)
		slices.Reverse(out)
		for i := range out {
			out[i].Scores.RerankScore = score.Ptr(float64(90 - 10*i))
			out[i].Scores.RerankMethod = score.LLM
		}
		return out[:min(topK, len(out))], rerank.Outcome{Applied: true, Method: score.LLM}
	}}
}

func kp(id, title string) document.Document {
	return document.Reconstruct(id, "content "+id, document.Metadata{Title: title, Category: "algebra"})
}

func vecHit(id string, distance float64) result.Candidate {
	return result.Candidate{ID: id, Document: kp(id, "title "+id), Distance: score.Ptr(distance)}
}

func textHit(id string, lexical float64) result.Candidate {
	return result.Candidate{
		ID:           id,
		Document:     kp(id, "title "+id),
		LexicalScore: score.Ptr(lexical),
		Highlight:    map[string][]string{"title": {"<em>title</em> " + id}},
	}
}

func makeRequest(t *testing.T, p request.Params) *request.Request {
	t.Helper()
	if p.Query == "" {
		p.Query = "quadratic equation"
	}
	req, err := request.New(p)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return &req
}

func noRerank() *bool {
	v := false
	return &v
}

func resultIDs(rs []result.RankedResult) []string {
	out := make([]string, len(rs))
	for i := range rs {
		out[i] = rs[i].ID
	}
	return out
}

// --- Query ---

func TestQuery_Hybrid(t *testing.T) {
	vec := &mockVec{results: []result.Candidate{vecHit("a", 0.1), vecHit("b", 0.3)}}
	text := &mockText{results: []result.Candidate{textHit("b", 9), textHit("c", 3)}}
	svc := New(vec, text, &mockEmbedder{}, nil, zap.NewNop())

	resp, err := svc.Query(context.Background(), makeRequest(t, request.Params{N: 3, EnableRerank: noRerank()}))
	if err != nil {
		t.Fatal(err)
	}

	if vec.lastK != 6 {
		t.Errorf("candidate k = %d, want n*2", vec.lastK)
	}
	// a: 0.6*0.9 = 0.54, b: 0.6*0.7 + 0.4 = 0.82, c: 0
	if ids := resultIDs(resp.Results); !slices.Equal(ids, []string{"b", "a", "c"}) {
		t.Fatalf("order = %v", ids)
	}
	b := resp.Results[0]
	if b.Fusion == nil || b.Fusion.VectorWeight != 0.6 || b.Fusion.TextScore != 1 {
		t.Errorf("fusion info = %+v", b.Fusion)
	}
	if !near(b.Scores.SimilarityScore, 82) {
		t.Errorf("similarity = %f, want 82", b.Scores.SimilarityScore)
	}
	if len(b.Highlight["title"]) != 1 {
		t.Errorf("highlight = %v", b.Highlight)
	}

	st := resp.Stats
	if st.VectorResults != 2 || st.TextResults != 2 || st.FusedResults != 3 || st.TotalCandidates != 3 {
		t.Errorf("stats = %+v", st)
	}
	if st.FinalResults != 3 || st.RerankEnabled || st.RerankApplied || len(st.Degraded) != 0 {
		t.Errorf("stats = %+v", st)
	}
	if resp.Timing.Total <= 0 {
		t.Error("total timing not recorded")
	}
}

func TestQuery_SingleMode(t *testing.T) {
	tests := []struct {
		name      string
		mode      mode.Mode
		wantVec   bool
		wantText  bool
		wantFirst string
		wantSimil float64
	}{
		{"vector", mode.Vector, true, false, "a", 90},
		{"text", mode.Text, false, true, "b", 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			emb := &mockEmbedder{}
			vec := &mockVec{results: []result.Candidate{vecHit("a", 0.1)}}
			text := &mockText{results: []result.Candidate{textHit("b", 9), textHit("c", 3)}}
			svc := New(vec, text, emb, nil, zap.NewNop())

			resp, err := svc.Query(context.Background(),
				makeRequest(t, request.Params{Mode: tc.mode, EnableRerank: noRerank()}))
			if err != nil {
				t.Fatal(err)
			}
			if vec.called != tc.wantVec || emb.called != tc.wantVec || text.called != tc.wantText {
				t.Errorf("passes: vector=%v embed=%v text=%v", vec.called, emb.called, text.called)
			}
			first := resp.Results[0]
			if first.ID != tc.wantFirst || !near(first.Scores.SimilarityScore, tc.wantSimil) {
				t.Errorf("first = %s (%f)", first.ID, first.Scores.SimilarityScore)
			}
			if first.Fusion != nil || first.Scores.FusionScore != nil || resp.Stats.FusedResults != 0 {
				t.Error("single mode ran fusion")
			}
		})
	}
}

func TestQuery_SingleModeFailure(t *testing.T) {
	tests := []struct {
		name    string
		mode    mode.Mode
		emb     *mockEmbedder
		vec     *mockVec
		text    *mockText
		wantErr error
	}{
		{
			name:    "vector store down",
			mode:    mode.Vector,
			emb:     &mockEmbedder{},
			vec:     &mockVec{err: domain.ErrStoreUnavailable},
			text:    &mockText{},
			wantErr: domain.ErrStoreUnavailable,
		},
		{
			name:    "embedding failure",
			mode:    mode.Vector,
			emb:     &mockEmbedder{err: domain.ErrEmbeddingFailure},
			vec:     &mockVec{},
			text:    &mockText{},
			wantErr: domain.ErrEmbeddingFailure,
		},
		{
			name:    "text index down",
			mode:    mode.Text,
			emb:     &mockEmbedder{},
			vec:     &mockVec{},
			text:    &mockText{err: domain.ErrStoreUnavailable},
			wantErr: domain.ErrStoreUnavailable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(tc.vec, tc.text, tc.emb, nil, zap.NewNop())
			_, err := svc.Query(context.Background(), makeRequest(t, request.Params{Mode: tc.mode}))
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestQuery_HybridDegrades(t *testing.T) {
	tests := []struct {
		name     string
		emb      *mockEmbedder
		vec      *mockVec
		text     *mockText
		degraded mode.Mode
		wantIDs  []string
	}{
		{
			name:     "text index down",
			emb:      &mockEmbedder{},
			vec:      &mockVec{results: []result.Candidate{vecHit("a", 0.5), vecHit("b", 0.2)}},
			text:     &mockText{err: domain.ErrStoreUnavailable},
			degraded: mode.Text,
			wantIDs:  []string{"b", "a"},
		},
		{
			name:     "embedding down",
			emb:      &mockEmbedder{err: domain.ErrEmbeddingFailure},
			vec:      &mockVec{},
			text:     &mockText{results: []result.Candidate{textHit("c", 1), textHit("d", 5)}},
			degraded: mode.Vector,
			wantIDs:  []string{"d", "c"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(tc.vec, tc.text, tc.emb, nil, zap.NewNop())
			resp, err := svc.Query(context.Background(), makeRequest(t, request.Params{EnableRerank: noRerank()}))
			if err != nil {
				t.Fatalf("degraded query failed: %v", err)
			}
			if !slices.Equal(resp.Stats.Degraded, []mode.Mode{tc.degraded}) {
				t.Errorf("degraded = %v", resp.Stats.Degraded)
			}
			if ids := resultIDs(resp.Results); !slices.Equal(ids, tc.wantIDs) {
				t.Errorf("order = %v, want %v", ids, tc.wantIDs)
			}
		})
	}
}

func TestQuery_HybridBothFail(t *testing.T) {
	vec := &mockVec{err: errors.New("connection refused")}
	text := &mockText{err: domain.ErrStoreUnavailable}
	svc := New(vec, text, &mockEmbedder{}, nil, zap.NewNop())

	_, err := svc.Query(context.Background(), makeRequest(t, request.Params{}))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestQuery_Rerank(t *testing.T) {
	vec := &mockVec{results: []result.Candidate{vecHit("a", 0.1), vecHit("b", 0.2), vecHit("c", 0.3)}}
	rr := reverseReranker()
	svc := New(vec, &mockText{}, &mockEmbedder{}, rr, zap.NewNop())

	resp, err := svc.Query(context.Background(),
		makeRequest(t, request.Params{N: 2, RerankMethod: score.LLM, RerankTopK: 3}))
	if err != nil {
		t.Fatal(err)
	}

	if ids := resultIDs(resp.Results); !slices.Equal(ids, []string{"c", "b"}) {
		t.Errorf("order = %v, want reranked and cut to n", ids)
	}
	first := resp.Results[0].Scores
	if *first.FinalScore != 90 || first.SimilarityScore != 90 {
		t.Errorf("scores = %+v", first)
	}
	st := resp.Stats
	if !st.RerankApplied || st.RerankMethod != score.LLM || st.RerankedResults != 3 || st.FinalResults != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestQuery_RerankFallback(t *testing.T) {
	vec := &mockVec{results: []result.Candidate{vecHit("a", 0.1), vecHit("b", 0.2), vecHit("c", 0.3)}}
	rr := &mockReranker{}
	svc := New(vec, &mockText{}, &mockEmbedder{}, rr, zap.NewNop())

	resp, err := svc.Query(context.Background(), makeRequest(t, request.Params{N: 2}))
	if err != nil {
		t.Fatal(err)
	}
	if !rr.called {
		t.Fatal("reranker not called")
	}
	if ids := resultIDs(resp.Results); !slices.Equal(ids, []string{"a", "b"}) {
		t.Errorf("order = %v, want fusion order", ids)
	}
	if resp.Stats.RerankApplied || resp.Stats.RerankError == "" {
		t.Errorf("stats = %+v", resp.Stats)
	}
	// fusion-based similarity: 0.6 * 0.9
	if !near(resp.Results[0].Scores.SimilarityScore, 54) {
		t.Errorf("similarity = %f", resp.Results[0].Scores.SimilarityScore)
	}
}

func TestQuery_NoCandidatesSkipsRerank(t *testing.T) {
	rr := reverseReranker()
	svc := New(&mockVec{}, &mockText{}, &mockEmbedder{}, rr, zap.NewNop())

	resp, err := svc.Query(context.Background(), makeRequest(t, request.Params{}))
	if err != nil {
		t.Fatal(err)
	}
	if rr.called || len(resp.Results) != 0 {
		t.Errorf("rerank called = %v, results = %d", rr.called, len(resp.Results))
	}
}

func TestQuery_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	vec := &mockVec{results: []result.Candidate{vecHit("a", 0.1)}}
	svc := New(vec, &mockText{}, &mockEmbedder{}, nil, zap.NewNop())

	_, err := svc.Query(ctx, makeRequest(t, request.Params{}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// --- GetByID ---

func TestGetByID(t *testing.T) {
	doc := kp("kp-1", "Quadratic equations")
	tests := []struct {
		name    string
		vec     *mockVec
		text    *mockText
		wantErr error
	}{
		{
			name: "from vector store",
			vec:  &mockVec{docs: map[string]document.Document{"kp-1": doc}},
			text: &mockText{err: domain.ErrStoreUnavailable},
		},
		{
			name: "falls back to text index",
			vec:  &mockVec{getErr: domain.ErrStoreUnavailable},
			text: &mockText{docs: map[string]document.Document{"kp-1": doc}},
		},
		{
			name:    "missing everywhere",
			vec:     &mockVec{},
			text:    &mockText{},
			wantErr: domain.ErrDocumentNotFound,
		},
		{
			name:    "both stores down",
			vec:     &mockVec{getErr: domain.ErrStoreUnavailable},
			text:    &mockText{err: domain.ErrStoreUnavailable},
			wantErr: domain.ErrStoreUnavailable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(tc.vec, tc.text, &mockEmbedder{}, nil, zap.NewNop())
			got, err := svc.GetByID(context.Background(), "kp-1")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.ID != "kp-1" || got.Title != "Quadratic equations" {
				t.Errorf("got %+v", got)
			}
			if got.Scores.SimilarityScore != 100 || *got.Scores.FinalScore != 1 {
				t.Errorf("scores = %+v", got.Scores)
			}
		})
	}
}

// --- Stats ---

func TestStats(t *testing.T) {
	svc := New(&mockVec{count: 7}, &mockText{err: domain.ErrStoreUnavailable}, &mockEmbedder{}, nil, zap.NewNop())
	st := svc.Stats(context.Background())
	if st.VectorStore.Documents != 7 || st.VectorStore.Err != nil {
		t.Errorf("vector = %+v", st.VectorStore)
	}
	if !errors.Is(st.TextIndex.Err, domain.ErrStoreUnavailable) {
		t.Errorf("text = %+v", st.TextIndex)
	}
}
