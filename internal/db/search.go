package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // defaults to "vector"
	Vector       []float32
	K            int
	ReturnFields []string
}

// Highlight asks the backend to wrap matched terms of the listed fields in tags.
type Highlight struct {
	Fields   []string
	OpenTag  string
	CloseTag string
}

// TextQuery is the input for BM25 text search. Query is free user text; the backend
// tokenizes it and matches any term against every TEXT field of the index.
type TextQuery struct {
	IndexName    string
	Query        string
	TopK         int
	ReturnFields []string
	Highlight    *Highlight
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// Score is the raw distance for KNN queries and the BM25 score for text queries.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
