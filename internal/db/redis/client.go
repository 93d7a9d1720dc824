// Package redis implements db.Store on rueidis for Redis 8+ (RediSearch) and Valkey (valkey-search).
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/codevoyager1984/math-agent/internal/db"
)

var _ db.Store = (*Store)(nil)

// Flavor selects the search module dialect spoken by the server.
type Flavor string

const (
	// FlavorRedis is Redis 8+ with RediSearch: TEXT fields, BM25 and HIGHLIGHT.
	FlavorRedis Flavor = "redis"
	// FlavorValkey is Valkey with valkey-search, which indexes vectors only.
	FlavorValkey Flavor = "valkey"
)

const defaultClientName = "ragserver"

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	Flavor     Flavor
	ClientName string        // CLIENT SETNAME; defaults to "ragserver"
	Timeout    time.Duration // per-connection write timeout; zero keeps the rueidis default
}

// Store talks to one Redis or Valkey deployment. It is safe for concurrent use.
type Store struct {
	client rueidis.Client
	flavor Flavor
}

// NewStore connects to the server. rueidis dials eagerly, so an unreachable address fails here.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: at least one address is required")
	}
	switch cfg.Flavor {
	case "":
		cfg.Flavor = FlavorRedis
	case FlavorRedis, FlavorValkey:
	default:
		return nil, fmt.Errorf("redis: unknown flavor %q", cfg.Flavor)
	}
	if cfg.ClientName == "" {
		cfg.ClientName = defaultClientName
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      cfg.Addrs,
		Username:         cfg.Username,
		Password:         cfg.Password,
		SelectDB:         cfg.DB,
		ClientName:       cfg.ClientName,
		ConnWriteTimeout: cfg.Timeout,
		DisableCache:     true,
		// FT.SEARCH replies are parsed as RESP2 arrays
		AlwaysRESP2: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: connect %v: %w", cfg.Addrs, err)
	}
	return &Store{client: client, flavor: cfg.Flavor}, nil
}

// Flavor returns the search dialect the store was opened with.
func (s *Store) Flavor() Flavor { return s.flavor }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady pings with a doubling delay, capped at one second, until the server answers or
// timeout expires. The last ping error is reported on timeout.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	delay := 50 * time.Millisecond
	for {
		lastErr := s.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", errors.Join(ctx.Err(), lastErr))
		case <-time.After(delay):
		}
		delay = min(2*delay, time.Second)
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// isRedisErr reports whether err is a server error reply whose message contains substr, ignoring case.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
