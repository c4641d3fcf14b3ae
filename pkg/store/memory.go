package store

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultMaxKeys = 65536

type counter struct {
	count   int64
	expires time.Time
	elem    *list.Element
}

// MemoryStore is a process-local counter store guarded by a single mutex.
// TTLs are enforced by storing an absolute expiry and evicting lazily on
// access; a bounded LRU list caps the number of tracked keys so long-lived
// processes with high-cardinality keys do not grow without bound.
//
// State is not shared across processes. Use it as the fallback backend or for
// single-process deployments.
type MemoryStore struct {
	mu      sync.Mutex
	keys    map[string]*counter
	order   *list.List
	maxKeys int

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:    make(map[string]*counter),
		order:   list.New(),
		maxKeys: defaultMaxKeys,
		now:     time.Now,
	}
}

func (m *MemoryStore) Incr(ctx context.Context, key string, window time.Duration, amount int64) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c := m.live(key, now)
	if c == nil {
		if amount < 0 {
			// Compensating a counter that already expired is a no-op.
			return 0, 0, nil
		}
		c = &counter{expires: now.Add(window)}
		c.elem = m.order.PushFront(key)
		m.keys[key] = c
		m.evictLocked()
	} else {
		m.order.MoveToFront(c.elem)
	}

	c.count += amount
	if c.count < 0 {
		c.count = 0
	}
	return c.count, c.expires.Sub(now), nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c := m.live(key, now)
	if c == nil {
		return 0, 0, nil
	}
	return c.count, c.expires.Sub(now), nil
}

func (m *MemoryStore) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drop(key)
	return nil
}

// Ping always succeeds: the local store has no failure mode.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Clear drops every counter. Used when leaving fallback mode so stale local
// counts do not carry over after the primary store recovers.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = make(map[string]*counter)
	m.order.Init()
}

// Len reports the number of live counters.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := m.now()
	for _, c := range m.keys {
		if c.expires.After(now) {
			n++
		}
	}
	return n
}

// live returns the counter for key, evicting it first if expired.
func (m *MemoryStore) live(key string, now time.Time) *counter {
	c, ok := m.keys[key]
	if !ok {
		return nil
	}
	if !c.expires.After(now) {
		m.drop(key)
		return nil
	}
	return c
}

func (m *MemoryStore) drop(key string) {
	if c, ok := m.keys[key]; ok {
		m.order.Remove(c.elem)
		delete(m.keys, key)
	}
}

func (m *MemoryStore) evictLocked() {
	for len(m.keys) > m.maxKeys {
		back := m.order.Back()
		if back == nil {
			return
		}
		m.drop(back.Value.(string))
	}
}
