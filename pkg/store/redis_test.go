package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func redisStoreForTest(t *testing.T) (*RedisStore, *redis.Client) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client), client
}

func TestRedisStore_Integration(t *testing.T) {
	st, client := redisStoreForTest(t)
	ctx := context.Background()

	key := fmt.Sprintf("it_store_%d", time.Now().UnixNano())
	defer client.Del(ctx, key)

	count, ttl, err := st.Incr(ctx, key, 10*time.Second, 1)
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}
	if ttl <= 0 || ttl > 10*time.Second {
		t.Errorf("Expected TTL in (0, 10s], got %v", ttl)
	}

	count, _, err = st.Incr(ctx, key, 10*time.Second, 4)
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Errorf("Expected count 5, got %d", count)
	}

	count, _, err = st.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Errorf("Expected Get to see 5, got %d", count)
	}

	// Compensating decrement must not go below zero.
	count, _, err = st.Incr(ctx, key, 10*time.Second, -100)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("Expected clamp at 0, got %d", count)
	}

	if err := st.Reset(ctx, key); err != nil {
		t.Fatal(err)
	}
	count, _, _ = st.Get(ctx, key)
	if count != 0 {
		t.Errorf("Expected 0 after reset, got %d", count)
	}
}

func TestRedisStore_GetMissingKey(t *testing.T) {
	st, _ := redisStoreForTest(t)

	count, ttl, err := st.Get(context.Background(), fmt.Sprintf("missing_%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("Get on missing key should not error: %v", err)
	}
	if count != 0 || ttl != 0 {
		t.Errorf("Expected zero count and TTL, got %d / %v", count, ttl)
	}
}

func TestRedisStore_UnavailableWrapsSentinel(t *testing.T) {
	// Point at a port nothing listens on; every operation must surface
	// ErrStoreUnavailable.
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	st := NewRedisStore(client, WithOpTimeout(200*time.Millisecond))

	ctx := context.Background()
	if _, _, err := st.Incr(ctx, "k", time.Second, 1); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Incr: expected ErrStoreUnavailable, got %v", err)
	}
	if _, _, err := st.Get(ctx, "k"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Get: expected ErrStoreUnavailable, got %v", err)
	}
	if err := st.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Ping: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestNewRedisStoreFromURI(t *testing.T) {
	if _, err := NewRedisStoreFromURI("not a uri"); err == nil {
		t.Error("Expected error for malformed URI")
	}

	st, err := NewRedisStoreFromURI("redis://localhost:6379/0")
	if err != nil {
		t.Fatalf("ParseURL failed: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		t.Skipf("Skipping liveness check: Redis not available (%v)", err)
	}
}
