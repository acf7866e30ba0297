package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/domain"
	"github.com/catrec-io/catrec/internal/metrics"
)

// ErrEmptyQuery signals a blank search query.
var ErrEmptyQuery = errors.New("empty search query")

// Config tunes the search service.
type Config struct {
	// DefaultTopK is used when the caller passes topK <= 0.
	DefaultTopK int
	// MaxTopK caps the caller-requested result count.
	MaxTopK int
	// CandidateK is the neighbor pool fetched per query. It is larger than
	// topK because ranking groups record hits into catalog entries.
	CandidateK int
}

// ApplyDefaults fills zero fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 5
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = 20
	}
	if c.CandidateK <= 0 {
		c.CandidateK = 50
	}
}

// Service maps free-text problem descriptions to ranked catalog entries.
type Service struct {
	store  VectorStore
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates a search service.
func New(store VectorStore, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	cfg.ApplyDefaults()
	return &Service{store: store, embed: embed, cfg: cfg, logger: logger}
}

// Search embeds the query, fetches nearest records, and returns ranked
// catalog recommendations. An empty result is a valid outcome, not an error.
// minSimilarity <= 0 means no floor.
func (s *Service) Search(
	ctx context.Context, query string, topK int, minSimilarity float64,
) ([]domain.Recommendation, error) {
	start := time.Now()

	recs, err := s.search(ctx, query, topK, minSimilarity)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.SearchHitsReturned.Observe(float64(len(recs)))
	}

	return recs, err
}

func (s *Service) search(
	ctx context.Context, query string, topK int, minSimilarity float64,
) ([]domain.Recommendation, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK > s.cfg.MaxTopK {
		topK = s.cfg.MaxTopK
	}

	embResult, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	hits, err := s.store.Query(ctx, embResult.Embedding, s.cfg.CandidateK)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}

	recs := aggregate(hits, topK, minSimilarity)

	s.logger.Debug("Search completed",
		zap.Int("top_k", topK),
		zap.Int("neighbor_hits", len(hits)),
		zap.Int("recommendations", len(recs)),
	)
	return recs, nil
}
