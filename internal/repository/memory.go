package repository

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is the single-process cache and the Redis fallback.
type MemoryCache struct {
	entries    sync.Map
	rateLimits sync.Map
	mu         sync.Mutex
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (r *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := r.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := val.(*memoryEntry)
	if entry.expired(time.Now()) {
		r.entries.Delete(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (r *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := &memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	r.entries.Store(key, entry)
	return nil
}

func (r *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	r.entries.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			r.entries.Delete(k)
		}
		return true
	})
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryCache) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
