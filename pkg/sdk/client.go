package catrec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/breaker"
	"github.com/catrec-io/catrec/internal/db"
	dbRedis "github.com/catrec-io/catrec/internal/db/redis"
	"github.com/catrec-io/catrec/internal/domain"
	recordrepo "github.com/catrec-io/catrec/internal/repository/record"
	embeddinguc "github.com/catrec-io/catrec/internal/usecase/embedding"
	healthuc "github.com/catrec-io/catrec/internal/usecase/health"
	indexeruc "github.com/catrec-io/catrec/internal/usecase/indexer"
	searchuc "github.com/catrec-io/catrec/internal/usecase/search"
	"github.com/catrec-io/catrec/internal/vectorstore"
)

const defaultReadinessTimeout = 10 * time.Second

// recordRepository is the internal record store surface the client needs.
type recordRepository interface {
	SaveAll(ctx context.Context, recs []domain.Record) error
	ClaimPending(ctx context.Context, n int) ([]domain.Record, error)
	ClaimIDs(ctx context.Context, ids []string) ([]domain.Record, error)
	Update(ctx context.Context, rec domain.Record) error
	RequeueFailed(ctx context.Context, now time.Time) (int, error)
	PendingCount(ctx context.Context) (int64, error)
}

// vectorIndex is the internal index surface the client needs.
type vectorIndex interface {
	Upsert(ctx context.Context, entries []vectorstore.Entry) error
	Query(ctx context.Context, vec []float32, k int) ([]domain.NeighborHit, error)
	Len() int
}

// Client is the embedded catrec engine.
type Client struct {
	store      db.Store // nil for the memory driver
	repo       recordRepository
	index      vectorIndex
	closeIndex func() error

	searchSvc  *searchuc.Service
	indexerSvc *indexeruc.Service
	healthSvc  *healthuc.Service

	now func() time.Time
}

// New creates a catrec Client. The provided context is used for the
// initial database readiness check when the Redis driver is configured.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		driver:     "memory",
		dimensions: domain.DefaultVectorConfig().Dimensions,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	c := &Client{now: time.Now}

	switch cfg.driver {
	case "memory":
		c.repo = recordrepo.NewMemory()
	case "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Username: cfg.username,
			Password: cfg.password,
			DB:       cfg.db,
		})
		if err != nil {
			return nil, fmt.Errorf("catrec: create redis store: %w", err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("catrec: database not ready: %w", err)
		}
		c.store = store
		c.repo = recordrepo.NewRedis(store)
	default:
		return nil, fmt.Errorf("catrec: unknown driver %q", cfg.driver)
	}

	if cfg.indexPath != "" {
		bolt, err := vectorstore.NewBolt(cfg.indexPath, cfg.dimensions, cfg.logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("catrec: open vector index: %w", err)
		}
		c.index = bolt
		c.closeIndex = bolt.Close
	} else {
		c.index = vectorstore.NewMemory(cfg.dimensions)
	}

	// Embedder chain: provider -> breaker -> retry. No budget tracking in
	// the embedded client; the caller owns provider spend.
	var inner domain.Embedder = &noopEmbedder{}
	if cfg.embedder != nil {
		inner = &embedderAdapter{inner: cfg.embedder}
	}
	br := breaker.New(5, time.Minute)
	gated := embeddinguc.NewBreakerEmbedder(inner, br, "embedder", cfg.logger)
	emb := embeddinguc.NewRetryEmbedder(gated, embeddinguc.DefaultRetryConfig(), "embedder", "", cfg.logger)

	c.searchSvc = searchuc.New(c.index, emb, searchuc.Config{}, cfg.logger)
	c.indexerSvc = indexeruc.New(c.repo, c.index, emb, indexeruc.Config{
		ChunkSize: cfg.chunkSize,
		Workers:   cfg.workers,
	}, cfg.logger)

	var pinger healthuc.DBPinger = noopPinger{}
	if c.store != nil {
		pinger = c.store
	}
	c.healthSvc = healthuc.New(pinger, nil, br, c.index)

	return c, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closeIndex != nil {
		_ = c.closeIndex()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity. Always nil for the memory driver.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("catrec: ping: %w", err)
	}
	return nil
}

// AddRecords validates and stores records, queueing them for indexing.
// Returns the number of records accepted.
func (c *Client) AddRecords(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := c.now()
	recs := make([]domain.Record, 0, len(records))
	for _, r := range records {
		rec, err := domain.NewRecord(r.RecordID, r.CatalogID, r.CatalogPath, r.Text, now)
		if err != nil {
			return 0, fmt.Errorf("catrec: record %q: %w", r.RecordID, err)
		}
		recs = append(recs, rec)
	}

	if err := c.repo.SaveAll(ctx, recs); err != nil {
		return 0, fmt.Errorf("catrec: save records: %w", err)
	}
	return len(recs), nil
}

// IndexBatch embeds pending records into the vector index. With no
// recordIDs it drains the whole pending queue; otherwise only the listed
// records are processed.
func (c *Client) IndexBatch(ctx context.Context, recordIDs ...string) (RunSummary, error) {
	summary, err := c.indexerSvc.Run(ctx, indexeruc.RunOptions{RecordIDs: recordIDs})
	if err != nil {
		return RunSummary{}, fmt.Errorf("catrec: index run: %w", err)
	}
	return RunSummary(summary), nil
}

// Search returns ranked catalog recommendations for a free-text query.
// topK <= 0 uses the engine default; minSimilarity <= 0 means no floor.
func (c *Client) Search(ctx context.Context, query string, topK int, minSimilarity float64) ([]Recommendation, error) {
	recs, err := c.searchSvc.Search(ctx, query, topK, minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("catrec: search: %w", err)
	}

	out := make([]Recommendation, len(recs))
	for i, r := range recs {
		out[i] = Recommendation{
			Rank:                r.Rank,
			CatalogID:           r.CatalogID,
			CatalogPath:         r.CatalogPath,
			WeightedScore:       r.WeightedScore,
			RawCount:            r.RawCount,
			SupportingRecordIDs: r.SupportingRecordIDs,
		}
	}
	return out, nil
}

// RequeueFailed flips Failed records back to Pending for the next run.
func (c *Client) RequeueFailed(ctx context.Context) (int, error) {
	n, err := c.indexerSvc.Requeue(ctx)
	if err != nil {
		return 0, fmt.Errorf("catrec: requeue: %w", err)
	}
	return n, nil
}

// PendingCount reports the pending queue depth.
func (c *Client) PendingCount(ctx context.Context) (int64, error) {
	n, err := c.indexerSvc.PendingCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("catrec: pending count: %w", err)
	}
	return n, nil
}

// Health returns the engine health snapshot.
func (c *Client) Health(ctx context.Context) HealthReport {
	report := c.healthSvc.Check(ctx)

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthReport{
		Healthy:      report.Status == healthuc.Healthy,
		Checks:       checks,
		BreakerState: report.BreakerState,
		IndexedCount: report.IndexedCount,
	}
}

// embedderAdapter wraps the public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	be, ok := a.inner.(BatchEmbedder)
	if !ok {
		return domain.BatchFallback(ctx, a, texts)
	}
	r, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// noopEmbedder returns an error on every call (used when no embedder is configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New(
		"catrec: embedder not configured (use WithEmbedder)",
	)
}

// noopPinger backs the health check for the memory driver.
type noopPinger struct{}

func (noopPinger) Ping(context.Context) error { return nil }
