package record

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/catrec-io/catrec/internal/domain"
)

// Memory is an in-process record repository with the same claim semantics
// as Redis. Backs the "memory" database driver and unit tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]domain.Record
	pending map[string]struct{}
}

// NewMemory creates an empty in-process repository.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]domain.Record),
		pending: make(map[string]struct{}),
	}
}

// Save writes one record; a Pending record is also enqueued.
func (m *Memory) Save(_ context.Context, rec domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLocked(rec)
	return nil
}

// SaveAll writes records and enqueues the Pending ones.
func (m *Memory) SaveAll(_ context.Context, recs []domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		m.saveLocked(rec)
	}
	return nil
}

func (m *Memory) saveLocked(rec domain.Record) {
	m.records[rec.ID()] = rec
	if rec.Status() == domain.StatusPending {
		m.pending[rec.ID()] = struct{}{}
	}
}

// Update rewrites a record without touching the pending set.
func (m *Memory) Update(_ context.Context, rec domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID()] = rec
	return nil
}

// Get returns one record by ID.
func (m *Memory) Get(_ context.Context, id string) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return domain.Record{}, fmt.Errorf("record %s: %w", id, domain.ErrRecordNotFound)
	}
	return rec, nil
}

// ClaimPending claims up to n pending records. IDs are taken in sorted
// order so test runs are reproducible.
func (m *Memory) ClaimPending(_ context.Context, n int) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || len(m.pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if n < len(ids) {
		ids = ids[:n]
	}

	recs := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		delete(m.pending, id)
		if rec, ok := m.records[id]; ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// ClaimIDs claims the given IDs, skipping any not currently pending.
func (m *Memory) ClaimIDs(_ context.Context, ids []string) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		if _, ok := m.pending[id]; !ok {
			continue
		}
		delete(m.pending, id)
		if rec, ok := m.records[id]; ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// PendingCount returns the size of the pending queue.
func (m *Memory) PendingCount(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), nil
}

// RequeueFailed flips every Failed record back to Pending.
func (m *Memory) RequeueFailed(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for id, rec := range m.records {
		if rec.Status() != domain.StatusFailed {
			continue
		}
		m.records[id] = rec.WithPending(now)
		m.pending[id] = struct{}{}
		n++
	}
	return n, nil
}
