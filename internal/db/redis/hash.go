package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/codevoyager1984/math-agent/internal/db"
)

// hsetTxLen is the number of commands per hash in HSetMulti: MULTI, DEL, HSET, EXEC.
const hsetTxLen = 4

// HSetMulti stores multiple hashes in a single DoMulti round-trip.
// Each hash is replaced inside its own MULTI/EXEC, so fields absent from the new version do
// not linger and a failure never leaves the key deleted without its new fields.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, 0, len(items)*hsetTxLen)
	for _, item := range items {
		hset := s.b().Hset().Key(item.Key).FieldValue()
		for k, v := range item.Fields {
			hset = hset.FieldValue(k, v)
		}
		cmds = append(cmds,
			s.b().Multi().Build(),
			s.b().Del().Key(item.Key).Build(),
			hset.Build(),
			s.b().Exec().Build(),
		)
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		err := res.Error()
		if err == nil && i%hsetTxLen == hsetTxLen-1 {
			err = execError(res)
		}
		if err != nil {
			return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", items[i/hsetTxLen].Key, err)}
		}
	}
	return nil
}

// execError returns the first error among the replies of an EXEC.
func execError(res rueidis.RedisResult) error {
	replies, err := res.ToArray()
	if err != nil {
		return err
	}
	for _, r := range replies {
		if err := r.Error(); err != nil {
			return err
		}
	}
	return nil
}

// HGetAll returns all fields of a hash. A missing key yields db.ErrKeyNotFound.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cmd := s.b().Hgetall().Key(key).Build()
	m, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	if len(m) == 0 {
		return nil, db.ErrKeyNotFound
	}
	return m, nil
}

// DelMulti deletes keys in batches and returns how many existed.
func (s *Store) DelMulti(ctx context.Context, keys []string) (int, error) {
	const batch = 500

	var deleted int64
	for start := 0; start < len(keys); start += batch {
		end := min(start+batch, len(keys))
		cmd := s.b().Del().Key(keys[start:end]...).Build()
		n, err := s.do(ctx, cmd).AsInt64()
		if err != nil {
			return int(deleted), &db.Error{Op: db.OpDel, Err: err}
		}
		deleted += n
	}
	return int(deleted), nil
}

// ExistsMulti checks several keys in a single DoMulti round-trip.
func (s *Store) ExistsMulti(ctx context.Context, keys []string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Exists().Key(key).Build()
	}

	out := make([]bool, len(keys))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		n, err := res.AsInt64()
		if err != nil {
			return nil, &db.Error{Op: db.OpExists, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
		out[i] = n > 0
	}
	return out, nil
}

// Scan iterates keys matching a pattern.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(100).Build()
		res, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
