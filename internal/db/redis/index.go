package redis

import (
	"context"

	"github.com/codevoyager1984/math-agent/internal/db"
)

// CreateIndex issues FT.CREATE for def.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := def.CreateArgs()
	if err != nil {
		return err
	}

	err = s.do(ctx, s.b().Arbitrary("FT.CREATE").Args(args...).Build()).Error()
	switch {
	case err == nil:
		return nil
	case isRedisErr(err, "index already exists"):
		return db.ErrIndexExists
	default:
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
}

// IndexExists probes the index with FT.INFO.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	err := s.do(ctx, s.b().Arbitrary("FT.INFO").Args(name).Build()).Error()
	switch {
	case err == nil:
		return true, nil
	case isUnknownIndex(err):
		return false, nil
	default:
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
}

// SupportsTextSearch reports whether the server has TEXT fields and BM25 scoring.
// valkey-search only indexes vectors, tags and numerics.
func (s *Store) SupportsTextSearch(_ context.Context) bool {
	return s.flavor != FlavorValkey
}

// Redis answers "Unknown index name", valkey-search answers "Index with name ... not found".
func isUnknownIndex(err error) bool {
	return isRedisErr(err, "unknown index name") || isRedisErr(err, "not found")
}
