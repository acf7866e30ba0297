package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/catrec-io/catrec/internal/domain"
	"github.com/catrec-io/catrec/internal/metrics"
)

// DefaultCompactThreshold is the stale-slot fraction above which the
// scan array is repacked.
const DefaultCompactThreshold = 0.10

// Memory is the in-process brute-force index. Vectors are unit-normalized
// on insert so a query is a single dot product per entry.
//
// Entries live in a flat slice scanned under RLock; deletes leave
// tombstones that a compaction sweep repacks once they exceed
// compactThreshold of the slice.
type Memory struct {
	mu               sync.RWMutex
	dim              int
	entries          []memEntry
	byID             map[string]int
	dead             int
	compactThreshold float64
}

type memEntry struct {
	id          string
	catalogID   string
	catalogPath string
	vec         []float32 // unit-normalized; nil marks a tombstone
}

// NewMemory creates an empty index for vectors of the given dimension.
func NewMemory(dim int) *Memory {
	return &Memory{
		dim:              dim,
		byID:             make(map[string]int),
		compactThreshold: DefaultCompactThreshold,
	}
}

// WithCompactThreshold overrides the stale-slot fraction that triggers a repack.
func (m *Memory) WithCompactThreshold(f float64) *Memory {
	if f > 0 {
		m.compactThreshold = f
	}
	return m
}

// Upsert inserts or replaces entries by record ID.
func (m *Memory) Upsert(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		vec, err := normalize(e.Embedding, m.dim)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", e.RecordID, err)
		}
		me := memEntry{
			id:          e.RecordID,
			catalogID:   e.CatalogID,
			catalogPath: e.CatalogPath,
			vec:         vec,
		}
		if i, ok := m.byID[e.RecordID]; ok {
			m.entries[i] = me
			continue
		}
		m.entries = append(m.entries, me)
		m.byID[e.RecordID] = len(m.entries) - 1
	}

	metrics.VectorStoreSize.Set(float64(len(m.byID)))
	return nil
}

// Delete tombstones entries by record ID; unknown IDs are ignored.
func (m *Memory) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		i, ok := m.byID[id]
		if !ok {
			continue
		}
		m.entries[i].vec = nil
		delete(m.byID, id)
		m.dead++
	}

	m.maybeCompactLocked()
	metrics.VectorStoreSize.Set(float64(len(m.byID)))
	return nil
}

// Query returns the k nearest entries to vec by cosine distance, nearest
// first. Equal distances order by record ID for deterministic output.
func (m *Memory) Query(_ context.Context, vec []float32, k int) ([]domain.NeighborHit, error) {
	q, err := normalize(vec, m.dim)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		idx int
		sim float64
	}
	scores := make([]scored, 0, len(m.byID))
	for i := range m.entries {
		if m.entries[i].vec == nil {
			continue
		}
		scores = append(scores, scored{idx: i, sim: dot(q, m.entries[i].vec)})
	}

	sort.Slice(scores, func(a, b int) bool {
		if scores[a].sim != scores[b].sim {
			return scores[a].sim > scores[b].sim
		}
		return m.entries[scores[a].idx].id < m.entries[scores[b].idx].id
	})

	if k > len(scores) {
		k = len(scores)
	}
	hits := make([]domain.NeighborHit, k)
	for i := 0; i < k; i++ {
		e := m.entries[scores[i].idx]
		hits[i] = domain.NeighborHit{
			RecordID:    e.id,
			CatalogID:   e.catalogID,
			CatalogPath: e.catalogPath,
			Distance:    1 - scores[i].sim,
		}
	}
	return hits, nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// maybeCompactLocked repacks the scan slice once tombstones exceed the
// configured fraction of it.
func (m *Memory) maybeCompactLocked() {
	if len(m.entries) == 0 || float64(m.dead)/float64(len(m.entries)) <= m.compactThreshold {
		return
	}

	packed := make([]memEntry, 0, len(m.byID))
	for i := range m.entries {
		if m.entries[i].vec == nil {
			continue
		}
		packed = append(packed, m.entries[i])
		m.byID[m.entries[i].id] = len(packed) - 1
	}
	m.entries = packed
	m.dead = 0
	metrics.VectorStoreCompactionsTotal.Inc()
}

// normalize validates the dimension and returns a unit-length copy.
func normalize(vec []float32, dim int) ([]float32, error) {
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", domain.ErrVectorDimMismatch, dim, len(vec))
	}
	var norm float64
	for _, f := range vec {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return nil, fmt.Errorf("%w: zero vector", domain.ErrVectorDimMismatch)
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(vec))
	for i, f := range vec {
		out[i] = float32(float64(f) / norm)
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
