// Package budget persists daily token budget counters so spend survives
// process restarts.
package budget

import (
	"context"
	"fmt"
	"time"
)

// store is the consumer interface for budget operations (ISP).
type store interface {
	GetInt64(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps per-day token counters via INCRBY with a key TTL, so stale
// day keys age out on their own.
type Store struct {
	store store
	ttl   time.Duration
}

// New creates a budget store. ttl is the lifetime of each day key
// (recommended: 48h, so yesterday's counter is still inspectable).
func New(s store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Store{store: s, ttl: ttl}
}

// IncrBy atomically increments the day counter and arms its TTL.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if err := s.store.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("budget INCRBY %s: %w", key, err)
	}

	// NX: set the TTL once per key, not on every increment.
	if err := s.store.Expire(ctx, key, s.ttl, true); err != nil {
		return fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}

	return nil
}

// Get returns the current day counter. A missing key reads as 0.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.store.GetInt64(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}
	return val, nil
}
