package health

import (
	"context"

	"github.com/catrec-io/catrec/internal/breaker"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// BreakerReader exposes the embedding circuit state.
type BreakerReader interface {
	State() breaker.State
}

// IndexReader exposes the vector index size.
type IndexReader interface {
	Len() int
}
