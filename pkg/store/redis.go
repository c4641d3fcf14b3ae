package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed incr.lua
var incrLua string

var incrScript = redis.NewScript(incrLua)

const defaultOpTimeout = time.Second

// RedisStore is a distributed counter store. Increments run through a Lua
// script so the read/compute/write cycle is atomic server-side; this is what
// makes the store safe to share across many application instances.
type RedisStore struct {
	client    redis.UniversalClient
	opTimeout time.Duration
	ownClient bool
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithOpTimeout bounds each store operation. Defaults to 1s; operations that
// exceed it fail with ErrStoreUnavailable rather than blocking the request.
func WithOpTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// NewRedisStore wraps an existing client. The caller keeps ownership of the
// client and is responsible for closing it.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, opTimeout: defaultOpTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisStoreFromURI connects to the target described by a redis:// URI.
// The returned store owns the client; Close releases it.
func NewRedisStoreFromURI(uri string, opts ...RedisOption) (*RedisStore, error) {
	ropts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse storage uri: %w", err)
	}
	s := NewRedisStore(redis.NewClient(ropts), opts...)
	s.ownClient = true
	return s, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration, amount int64) (int64, time.Duration, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds(), amount).Result()
	if err != nil {
		return 0, 0, &UnavailableError{Op: "incr", Err: err}
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, &UnavailableError{Op: "incr", Err: fmt.Errorf("unexpected script result: %v", res)}
	}
	count, _ := vals[0].(int64)
	ttlMillis, _ := vals[1].(int64)
	return count, time.Duration(ttlMillis) * time.Millisecond, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, time.Duration, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, &UnavailableError{Op: "get", Err: err}
	}

	count, err := getCmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, &UnavailableError{Op: "get", Err: err}
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return count, ttl, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return &UnavailableError{Op: "reset", Err: err}
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return &UnavailableError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the client when the store owns it.
func (s *RedisStore) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

func (s *RedisStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}
