package proxycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one cached upstream response.
type Entry struct {
	ContentType string
	Body        []byte
}

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

// Store is the Redis-backed response cache. Every Set also records the key
// in the owning service's index set so invalidation can drop a service's
// entries in one pass.
type Store struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// Get returns the cached entry for key, reporting false on a miss.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis HGETALL %q: %w", key, err)
	}
	body, ok := vals["body"]
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{ContentType: vals["ct"], Body: []byte(body)}, true, nil
}

// Set stores an entry under key with ttl and indexes it for service. The
// index set outlives individual entries by one ttl; stale index members are
// harmless, deletion of a missing key is a no-op.
func (s *Store) Set(ctx context.Context, service, key string, e Entry, ttl time.Duration) error {
	idx := IndexKey(service)
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "ct", e.ContentType, "body", e.Body)
		p.Expire(ctx, key, ttl)
		p.SAdd(ctx, idx, key)
		p.Expire(ctx, idx, 2*ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

// Del removes explicit keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

// InvalidateService drops every cached response recorded for service and
// returns how many entries were deleted.
func (s *Store) InvalidateService(ctx context.Context, service string) (int, error) {
	idx := IndexKey(service)
	keys, err := s.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("redis SMEMBERS %q: %w", idx, err)
	}
	if len(keys) == 0 {
		return 0, s.rdb.Del(ctx, idx).Err()
	}
	if err := s.rdb.Del(ctx, append(keys, idx)...).Err(); err != nil {
		return 0, fmt.Errorf("redis DEL %d keys: %w", len(keys)+1, err)
	}
	return len(keys), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
