// Package embcache caches query embeddings in process so repeated searches
// skip the embedding provider entirely.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/domain"
)

// cache is the consumer interface for the vector cache (ISP).
type cache interface {
	Get(key string) ([]float32, bool)
	Put(key string, vec []float32)
}

// CachedEmbedder caches single-text embeddings. It sits at the outer edge
// of the query-path chain so a hit bypasses budget, retry, and breaker.
// The batch indexing path wires the chain without this decorator.
type CachedEmbedder struct {
	inner      domain.Embedder
	cache      cache
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	c cache,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		cache:      c,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner, stored for next time.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.cache.Put(key, result.Embedding)
	return result, nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey normalizes the text (trim, case-fold) before hashing, so
// trivially different spellings of the same query share one entry.
func cacheKey(text string) string {
	norm := strings.ToLower(strings.TrimSpace(text))
	h := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(h[:])
}
