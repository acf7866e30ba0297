package redis

import (
	"context"

	"github.com/catrec-io/catrec/internal/db"
)

// SAdd adds members to a set.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	cmd := s.b().Sadd().Key(key).Member(members...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSAdd, Err: err}
	}
	return nil
}

// SPop atomically removes and returns up to count members. Redis guarantees
// no two concurrent SPOP calls receive the same member, which is what makes
// this usable as a work-claim primitive.
func (s *Store) SPop(ctx context.Context, key string, count int) ([]string, error) {
	cmd := s.b().Spop().Key(key).Count(int64(count)).Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpSPop, Err: err}
	}
	return members, nil
}

// SRem removes members from a set, returning how many were actually present.
func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	cmd := s.b().Srem().Key(key).Member(members...).Build()
	removed, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpSRem, Err: err}
	}
	return removed, nil
}

// SCard returns the set cardinality.
func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Scard().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpSCard, Err: err}
	}
	return n, nil
}
