// Package indexer drains the pending record queue, embeds records in
// chunks, and feeds the vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/domain"
	"github.com/catrec-io/catrec/internal/metrics"
	"github.com/catrec-io/catrec/internal/vectorstore"
)

// Config tunes an index run.
type Config struct {
	// ChunkSize is the number of records per embedding provider call.
	ChunkSize int
	// Workers is the parallel chunk worker count.
	Workers int
	// CallTimeout bounds one provider call.
	CallTimeout time.Duration
	// MaxConsecutiveFailures aborts the run once consecutive chunk
	// failures exceed it.
	MaxConsecutiveFailures int
	// MaxErrorRate aborts the run once the failed-chunk fraction exceeds
	// it, after MinChunksForRate chunks have been processed.
	MaxErrorRate     float64
	MinChunksForRate int
}

// ApplyDefaults fills zero fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
		if c.Workers > 8 {
			c.Workers = 8
		}
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 10
	}
	if c.MaxErrorRate <= 0 {
		c.MaxErrorRate = 0.5
	}
	if c.MinChunksForRate <= 0 {
		c.MinChunksForRate = 20
	}
}

// RunOptions narrows one run. Empty RecordIDs means drain the whole
// pending queue; otherwise only the listed records are processed.
type RunOptions struct {
	RecordIDs []string
}

// RunSummary reports one index run.
type RunSummary struct {
	RunID       string
	Processed   int
	Failed      int
	Duration    time.Duration
	Aborted     bool
	AbortReason string
}

// chunkResult is one worker's report for one claimed chunk.
type chunkResult struct {
	embedded int
	failed   int
	err      error
}

// Service runs chunked, parallel embedding over pending records.
// One run at a time per process; a second Run returns ErrRunInProgress.
type Service struct {
	repo    Repository
	store   VectorStore
	embed   BatchEmbedder
	cfg     Config
	now     func() time.Time
	running atomic.Bool
	logger  *zap.Logger
}

// New creates an indexer service.
func New(repo Repository, store VectorStore, embed BatchEmbedder, cfg Config, logger *zap.Logger) *Service {
	cfg.ApplyDefaults()
	return &Service{
		repo:   repo,
		store:  store,
		embed:  embed,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run drains pending records in parallel chunks until the queue is empty
// or a safety valve trips. An aborted run still returns its summary.
func (s *Service) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunSummary{}, domain.ErrRunInProgress
	}
	defer s.running.Store(false)

	runID := uuid.NewString()
	start := s.now()
	log := s.logger.With(zap.String("run_id", runID))

	next, err := s.chunkSource(ctx, opts)
	if err != nil {
		return RunSummary{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan chunkResult)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(runCtx, next, results, log)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	summary := s.tally(results, cancel, log)
	summary.RunID = runID
	summary.Duration = s.now().Sub(start)

	outcome := "completed"
	if summary.Aborted {
		outcome = "aborted"
	}
	metrics.IndexerRunsTotal.WithLabelValues(outcome).Inc()
	log.Info("Index run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
		zap.Bool("aborted", summary.Aborted),
		zap.String("abort_reason", summary.AbortReason),
	)
	return summary, nil
}

// Requeue flips Failed records back to Pending for the next run.
func (s *Service) Requeue(ctx context.Context) (int, error) {
	n, err := s.repo.RequeueFailed(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("requeue failed records: %w", err)
	}
	s.logger.Info("Failed records requeued", zap.Int("count", n))
	return n, nil
}

// PendingCount reports the current queue depth.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.repo.PendingCount(ctx)
}

// chunkSource returns the claim function workers pull chunks from.
// With explicit record IDs the claim happens up front; otherwise each
// call pops a fresh chunk off the shared pending set, which is what
// keeps parallel workers from ever seeing the same record.
func (s *Service) chunkSource(
	ctx context.Context, opts RunOptions,
) (func(ctx context.Context) ([]domain.Record, error), error) {
	if len(opts.RecordIDs) == 0 {
		return func(ctx context.Context) ([]domain.Record, error) {
			return s.repo.ClaimPending(ctx, s.cfg.ChunkSize)
		}, nil
	}

	claimed, err := s.repo.ClaimIDs(ctx, opts.RecordIDs)
	if err != nil {
		return nil, fmt.Errorf("claim records: %w", err)
	}

	var mu sync.Mutex
	return func(context.Context) ([]domain.Record, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(claimed) == 0 {
			return nil, nil
		}
		n := s.cfg.ChunkSize
		if n > len(claimed) {
			n = len(claimed)
		}
		chunk := claimed[:n]
		claimed = claimed[n:]
		return chunk, nil
	}, nil
}

// tally drains worker results and trips the safety valves. cancel stops
// the workers; draining continues so none of them block on send.
func (s *Service) tally(results <-chan chunkResult, cancel context.CancelFunc, log *zap.Logger) RunSummary {
	var summary RunSummary
	var chunks, failedChunks, consecutive int

	abort := func(reason string) {
		if !summary.Aborted {
			summary.Aborted = true
			summary.AbortReason = reason
			log.Error("Index run aborted", zap.String("reason", reason))
			cancel()
		}
	}

	for res := range results {
		chunks++
		summary.Processed += res.embedded
		summary.Failed += res.failed

		if res.err == nil {
			consecutive = 0
			metrics.IndexerChunksTotal.WithLabelValues("ok").Inc()
			continue
		}

		failedChunks++
		consecutive++
		metrics.IndexerChunksTotal.WithLabelValues("error").Inc()

		switch {
		case errors.Is(res.err, domain.ErrAuth):
			abort("authentication failure")
		case consecutive > s.cfg.MaxConsecutiveFailures:
			abort(fmt.Sprintf("%d consecutive chunk failures", consecutive))
		case chunks >= s.cfg.MinChunksForRate &&
			float64(failedChunks)/float64(chunks) > s.cfg.MaxErrorRate:
			abort(fmt.Sprintf("chunk error rate %.0f%%", 100*float64(failedChunks)/float64(chunks)))
		}
	}
	return summary
}

func (s *Service) worker(
	ctx context.Context,
	next func(ctx context.Context) ([]domain.Record, error),
	results chan<- chunkResult,
	log *zap.Logger,
) {
	for ctx.Err() == nil {
		recs, err := next(ctx)
		if err != nil {
			results <- chunkResult{err: fmt.Errorf("claim chunk: %w", err)}
			return
		}
		if len(recs) == 0 {
			return
		}
		results <- s.processChunk(ctx, recs, log)
	}
}

// processChunk embeds one chunk and applies the per-record transitions.
// Vector upserts land before any record is marked Embedded, so a crash
// mid-chunk never leaves a record claiming a vector the index lacks.
func (s *Service) processChunk(ctx context.Context, recs []domain.Record, log *zap.Logger) chunkResult {
	var res chunkResult

	// Status writes survive a run abort; otherwise an aborted run would
	// strand claimed records in limbo.
	writeCtx := context.WithoutCancel(ctx)

	texts := make([]string, 0, len(recs))
	batch := make([]domain.Record, 0, len(recs))
	for i := range recs {
		cleaned := cleanText(recs[i].Text())
		if cleaned == "" {
			s.markFailed(writeCtx, &recs[i], "empty text after cleaning", log)
			res.failed++
			continue
		}
		texts = append(texts, cleaned)
		batch = append(batch, recs[i])
	}
	if len(batch) == 0 {
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	embRes, err := s.embed.BatchEmbed(callCtx, texts)
	cancel()
	if err != nil {
		for i := range batch {
			s.markFailed(writeCtx, &batch[i], err.Error(), log)
		}
		res.failed += len(batch)
		res.err = err
		return res
	}

	entries := make([]vectorstore.Entry, len(batch))
	for i := range batch {
		entries[i] = vectorstore.Entry{
			RecordID:    batch[i].ID(),
			CatalogID:   batch[i].CatalogID(),
			CatalogPath: batch[i].CatalogPath(),
			Embedding:   embRes.Embeddings[i],
		}
	}
	if err := s.store.Upsert(writeCtx, entries); err != nil {
		for i := range batch {
			s.markFailed(writeCtx, &batch[i], err.Error(), log)
		}
		res.failed += len(batch)
		res.err = fmt.Errorf("upsert chunk: %w", err)
		return res
	}

	now := s.now()
	for i := range batch {
		embedded, err := batch[i].WithEmbedded(embRes.Embeddings[i], now)
		if err != nil {
			s.markFailed(writeCtx, &batch[i], err.Error(), log)
			res.failed++
			continue
		}
		if err := s.repo.Update(writeCtx, embedded); err != nil {
			log.Error("Failed to persist embedded record",
				zap.String("record_id", batch[i].ID()), zap.Error(err))
			res.failed++
			continue
		}
		res.embedded++
	}

	metrics.IndexerRecordsTotal.WithLabelValues("embedded").Add(float64(res.embedded))
	metrics.IndexerRecordsTotal.WithLabelValues("failed").Add(float64(res.failed))
	return res
}

func (s *Service) markFailed(ctx context.Context, rec *domain.Record, msg string, log *zap.Logger) {
	failed := rec.WithFailed(msg, s.now())
	if err := s.repo.Update(ctx, failed); err != nil {
		log.Error("Failed to mark record failed",
			zap.String("record_id", rec.ID()), zap.Error(err))
	}
}
