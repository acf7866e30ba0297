// Package vectorstore holds the in-process nearest-neighbor index over
// record embeddings. Search is brute-force cosine over unit-normalized
// vectors, which is exact and fast enough for catalogs in the tens of
// thousands of records.
package vectorstore

import (
	"context"

	"github.com/catrec-io/catrec/internal/domain"
)

// Entry is one indexed record vector with its catalog identity.
type Entry struct {
	RecordID    string
	CatalogID   string
	CatalogPath string
	Embedding   []float32
}

// Store is the nearest-neighbor index contract.
// Upsert is idempotent per record ID: re-indexing a record replaces its
// vector instead of duplicating it.
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, ids []string) error
	Query(ctx context.Context, vec []float32, k int) ([]domain.NeighborHit, error)
	Len() int
}
