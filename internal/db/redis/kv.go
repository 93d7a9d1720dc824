package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/codevoyager1984/math-agent/internal/db"
)

// Get returns the value at key, or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.do(ctx, s.b().Get().Key(key).Build()).AsBytes()
	switch {
	case err == nil:
		return data, nil
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	default:
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
}

// SetWithTTL stores value at key. A ttl below one second stores it without expiry.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := s.b().Set().Key(key).Value(rueidis.BinaryString(value))
	var cmd rueidis.Completed
	if ttl >= time.Second {
		cmd = set.Ex(ttl).Build()
	} else {
		cmd = set.Build()
	}
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}
