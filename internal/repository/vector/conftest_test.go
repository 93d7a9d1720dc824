package vector

import (
	"context"

	"github.com/codevoyager1984/math-agent/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	pingFn        func(ctx context.Context) error
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	hgetAllFn     func(ctx context.Context, key string) (map[string]string, error)
	delMultiFn    func(ctx context.Context, keys []string) (int, error)
	existsMultiFn func(ctx context.Context, keys []string) ([]bool, error)
	scanFn        func(ctx context.Context, pattern string) ([]string, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchCountFn func(ctx context.Context, index, prefix string) (int, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) DelMulti(ctx context.Context, keys []string) (int, error) {
	if m.delMultiFn != nil {
		return m.delMultiFn(ctx, keys)
	}
	return len(keys), nil
}

func (m *mockStore) ExistsMulti(ctx context.Context, keys []string) ([]bool, error) {
	if m.existsMultiFn != nil {
		return m.existsMultiFn(ctx, keys)
	}
	return make([]bool, len(keys)), nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, prefix string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index, prefix)
	}
	return 0, nil
}
