package search

import (
	"context"

	"github.com/catrec-io/catrec/internal/domain"
)

// VectorStore is the nearest-neighbor lookup contract for search.
type VectorStore interface {
	Query(ctx context.Context, vec []float32, k int) ([]domain.NeighborHit, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
