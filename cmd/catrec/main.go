package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/breaker"
	"github.com/catrec-io/catrec/internal/config"
	"github.com/catrec-io/catrec/internal/db"
	dbRedis "github.com/catrec-io/catrec/internal/db/redis"
	"github.com/catrec-io/catrec/internal/domain"
	logpkg "github.com/catrec-io/catrec/internal/logger"
	"github.com/catrec-io/catrec/internal/metrics"
	budgetrepo "github.com/catrec-io/catrec/internal/repository/budget"
	"github.com/catrec-io/catrec/internal/repository/embcache"
	recordrepo "github.com/catrec-io/catrec/internal/repository/record"
	chiTransport "github.com/catrec-io/catrec/internal/transport/chi"
	openaiEmb "github.com/catrec-io/catrec/internal/transport/openai"
	embeddinguc "github.com/catrec-io/catrec/internal/usecase/embedding"
	healthuc "github.com/catrec-io/catrec/internal/usecase/health"
	indexeruc "github.com/catrec-io/catrec/internal/usecase/indexer"
	searchuc "github.com/catrec-io/catrec/internal/usecase/search"
	"github.com/catrec-io/catrec/internal/vectorstore"
	"github.com/catrec-io/catrec/internal/version"
)

// recordRepository is the union of what the transport and the indexer
// need from the record store. Both drivers satisfy it.
type recordRepository interface {
	SaveAll(ctx context.Context, recs []domain.Record) error
	ClaimPending(ctx context.Context, n int) ([]domain.Record, error)
	ClaimIDs(ctx context.Context, ids []string) ([]domain.Record, error)
	Update(ctx context.Context, rec domain.Record) error
	RequeueFailed(ctx context.Context, now time.Time) (int, error)
	PendingCount(ctx context.Context) (int64, error)
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting catrec API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterEngineMetrics()

	ctx := context.Background()

	// Record store: Redis in production, in-memory for local experiments.
	var (
		repo     recordRepository
		dbPinger healthuc.DBPinger
		dbStore  db.Store
	)
	switch cfg.Database.Driver {
	case "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")

		repo = recordrepo.NewRedis(store)
		dbPinger = store
		dbStore = store
	case "memory":
		logger.Warn("Using in-memory record store, records are lost on restart")
		repo = recordrepo.NewMemory()
		dbPinger = noopPinger{}
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}

	// Single BudgetTracker shared by both embedder chains.
	var budget *embeddinguc.BudgetTracker
	if cfg.Embedding.Budget.DailyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if cfg.Embedding.Budget.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			cfg.Embedding.Provider, cfg.Embedding.Budget.DailyTokenLimit, action, logger,
		)
		if dbStore != nil {
			// Connect persistence store: loads today's counter from DB.
			budget.WithStore(ctx, budgetrepo.New(dbStore, 48*time.Hour))
		}
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	// Circuit breaker shared by both chains: one provider, one circuit.
	br := breaker.New(
		cfg.Embedding.Breaker.FailureThreshold,
		time.Duration(cfg.Embedding.Breaker.CooldownSec)*time.Second,
	).WithTransitionHook(func(from, to breaker.State) {
		metrics.BreakerTransitionsTotal.
			WithLabelValues(cfg.Embedding.Provider, from.String(), to.String()).Inc()
		logger.Warn("Embedding circuit transition",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	// Shared chain: provider -> breaker -> retry -> instrumented.
	// The breaker sits innermost so every retry attempt is gated.
	indexEmbedder := buildEmbedder(base, br, cfg.Embedding, budgetChecker, logger)

	// Query path adds an LRU cache on top so repeated searches skip the
	// provider entirely. The indexing path must not share it: record text
	// rarely repeats and would only churn the cache.
	queryCache := embcache.NewLRU(
		cfg.Embedding.Cache.Capacity,
		time.Duration(cfg.Embedding.Cache.TTLSec)*time.Second,
	)
	queryEmbedder := embcache.New(indexEmbedder, queryCache, metrics.EmbeddingCacheTotal, logger)

	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Vector index: in-memory serve, bbolt write-through persistence.
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.IndexPath), 0o750); err != nil {
		logger.Fatal("Failed to create index directory", zap.Error(err))
	}
	index, err := vectorstore.NewBolt(cfg.Storage.IndexPath, cfg.Embedding.Dimensions, logger)
	if err != nil {
		logger.Fatal("Failed to open vector index", zap.Error(err))
	}
	defer func() { _ = index.Close() }()

	// Use case services
	searchSvc := searchuc.New(index, queryEmbedder, searchuc.Config{
		DefaultTopK: cfg.Search.DefaultTopK,
		MaxTopK:     cfg.Search.MaxTopK,
		CandidateK:  cfg.Search.CandidateK,
	}, logger)

	indexerSvc := indexeruc.New(repo, index, indexEmbedder, indexeruc.Config{
		ChunkSize:              cfg.Indexer.ChunkSize,
		Workers:                cfg.Indexer.Workers,
		CallTimeout:            time.Duration(cfg.Indexer.CallTimeoutSec) * time.Second,
		MaxConsecutiveFailures: cfg.Indexer.MaxConsecutiveFailures,
		MaxErrorRate:           cfg.Indexer.MaxErrorRate,
		MinChunksForRate:       cfg.Indexer.MinChunksForRate,
	}, logger)

	healthSvc := healthuc.New(dbPinger, base, br, index)

	server := chiTransport.NewServer(searchSvc, indexerSvc, repo, healthSvc, logger)
	handler := server.Router(cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the shared decorator chain: OpenAI -> Breaker -> Retry -> Instrumented.
func buildEmbedder(
	base domain.Embedder,
	br *breaker.Breaker,
	cfg config.EmbeddingConfig,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) *embeddinguc.InstrumentedEmbedder {
	var embedder domain.Embedder = embeddinguc.NewBreakerEmbedder(base, br, cfg.Provider, logger)

	embedder = embeddinguc.NewRetryEmbedder(embedder, embeddinguc.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelaySec) * time.Second,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelaySec) * time.Second,
	}, cfg.Provider, cfg.Model, logger)

	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, budget, logger)
}

// noopPinger backs the health check when the memory driver is active.
type noopPinger struct{}

func (noopPinger) Ping(context.Context) error { return nil }
