package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"villaops/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCache uses primary until it errors, then serves from fallback and
// retries primary once per recoveryInterval.
type FailoverCache struct {
	primary   domain.CacheRepository
	fallback  domain.CacheRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverCache(primary, fallback domain.CacheRepository, logger *zerolog.Logger) *FailoverCache {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary cache failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverCache) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("primary cache recovered")
	}
}

// Healthy reports whether the primary is in use.
func (r *FailoverCache) Healthy() bool {
	return !r.isDown.Load()
}

func (r *FailoverCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.usePrimary() {
		val, ok, err := r.primary.Get(ctx, key)
		if err == nil {
			r.markUp()
			return val, ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.Get(ctx, key)
}

func (r *FailoverCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Set(ctx, key, value, ttl)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Set(ctx, key, value, ttl)
}

// DeletePrefix clears both stores so stale fallback entries do not survive
// a recovery of the primary.
func (r *FailoverCache) DeletePrefix(ctx context.Context, prefix string) error {
	if err := r.fallback.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	if r.usePrimary() {
		err := r.primary.DeletePrefix(ctx, prefix)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
