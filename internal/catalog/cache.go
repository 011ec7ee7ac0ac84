package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dayuer/tubebot/internal/redis"
)

// Store holds cached result lists.
type Store interface {
	Get(ctx context.Context, key string) ([]VideoSummary, bool)
	Set(ctx context.Context, key string, items []VideoSummary, ttl time.Duration)
}

// Cached wraps a Provider and serves repeated queries from a Store.
type Cached struct {
	next        Provider
	store       Store
	searchTTL   time.Duration
	trendingTTL time.Duration
}

// NewCached returns p with results cached in store. A zero TTL disables
// caching for that call.
func NewCached(p Provider, store Store, searchTTL, trendingTTL time.Duration) *Cached {
	return &Cached{next: p, store: store, searchTTL: searchTTL, trendingTTL: trendingTTL}
}

func (c *Cached) Search(ctx context.Context, query string, limit int) ([]VideoSummary, error) {
	key := fmt.Sprintf("%s%d:%s", redis.KeySearch, limit, strings.ToLower(strings.TrimSpace(query)))
	return c.lookup(ctx, key, c.searchTTL, func() ([]VideoSummary, error) {
		return c.next.Search(ctx, query, limit)
	})
}

func (c *Cached) Trending(ctx context.Context, region string, limit int) ([]VideoSummary, error) {
	key := fmt.Sprintf("%s%d:%s", redis.KeyTrending, limit, strings.ToUpper(region))
	return c.lookup(ctx, key, c.trendingTTL, func() ([]VideoSummary, error) {
		return c.next.Trending(ctx, region, limit)
	})
}

func (c *Cached) lookup(ctx context.Context, key string, ttl time.Duration, fetch func() ([]VideoSummary, error)) ([]VideoSummary, error) {
	if ttl <= 0 || c.store == nil {
		return fetch()
	}
	if items, ok := c.store.Get(ctx, key); ok {
		return items, nil
	}
	items, err := fetch()
	if err != nil {
		return nil, err
	}
	c.store.Set(ctx, key, items, ttl)
	return items, nil
}

// MemoryStore is an in-process TTL store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	items []VideoSummary
	exp   time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memoryEntry), now: time.Now}
}

// Get returns the cached value or false if absent/expired.
func (m *MemoryStore) Get(_ context.Context, key string) ([]VideoSummary, bool) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	if !ok || m.now().After(e.exp) {
		return nil, false
	}
	return e.items, true
}

// Set stores items with the provided TTL, dropping expired entries.
func (m *MemoryStore) Set(_ context.Context, key string, items []VideoSummary, ttl time.Duration) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.data {
		if now.After(e.exp) {
			delete(m.data, k)
		}
	}
	m.data[key] = memoryEntry{items: items, exp: now.Add(ttl)}
}

// RedisStore keeps cached lists in Redis as JSON.
type RedisStore struct {
	r *redis.Store
}

// NewRedisStore wraps an open Redis store.
func NewRedisStore(r *redis.Store) *RedisStore {
	return &RedisStore{r: r}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]VideoSummary, bool) {
	var items []VideoSummary
	if !s.r.GetJSON(ctx, key, &items) {
		return nil, false
	}
	return items, true
}

func (s *RedisStore) Set(ctx context.Context, key string, items []VideoSummary, ttl time.Duration) {
	s.r.SetJSON(ctx, key, items, ttl)
}
