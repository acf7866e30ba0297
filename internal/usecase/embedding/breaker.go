package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/breaker"
	"github.com/catrec-io/catrec/internal/domain"
	"github.com/catrec-io/catrec/internal/metrics"
)

// BreakerEmbedder gates every provider call through a circuit breaker.
// It sits directly around the transport so each retry attempt is checked.
//
// Failure accounting: only transient provider errors trip the breaker.
// Auth errors propagate untouched; a misconfigured credential must surface
// immediately, not hide behind an open circuit. A half-open trial is the
// one exception: any provider response, transient or not, resolves it, so
// the breaker can never wedge half-open.
type BreakerEmbedder struct {
	inner      domain.Embedder
	br         *breaker.Breaker
	dependency string
	logger     *zap.Logger
}

// NewBreakerEmbedder wraps an embedder with a circuit breaker.
func NewBreakerEmbedder(
	inner domain.Embedder, br *breaker.Breaker, dependency string, logger *zap.Logger,
) *BreakerEmbedder {
	return &BreakerEmbedder{inner: inner, br: br, dependency: dependency, logger: logger}
}

// Embed gates a single-text call through the breaker.
func (e *BreakerEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := e.admit(); err != nil {
		return domain.EmbeddingResult{}, err
	}
	res, err := e.inner.Embed(ctx, text)
	e.record(err)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return res, nil
}

// BatchEmbed gates a batch call through the breaker.
func (e *BreakerEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if err := e.admit(); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	var res domain.BatchEmbeddingResult
	var err error
	if be, ok := e.inner.(domain.BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, texts)
	} else {
		res, err = domain.BatchFallback(ctx, e.inner, texts)
	}

	e.record(err)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return res, nil
}

func (e *BreakerEmbedder) admit() error {
	if e.br.Allow() {
		return nil
	}
	metrics.BreakerRejectedTotal.WithLabelValues(e.dependency).Inc()
	e.logger.Warn("Embedding call rejected by circuit breaker",
		zap.String("dependency", e.dependency),
		zap.String("state", e.br.State().String()),
	)
	return fmt.Errorf("%s: %w", e.dependency, domain.ErrCircuitOpen)
}

func (e *BreakerEmbedder) record(err error) {
	switch {
	case err == nil:
		e.br.Success()
	case domain.IsTransient(err):
		e.br.Failure()
	case e.br.State() == breaker.HalfOpen:
		// A non-transient error (auth, bad request) still resolves the
		// trial: the provider answered, so the outage is over. Leaving
		// the trial unresolved would reject every later call.
		e.br.Success()
	default:
		// Closed circuit, non-transient error: not a dependency outage,
		// leave the failure streak alone.
	}
	metrics.BreakerState.WithLabelValues(e.dependency).Set(float64(e.br.State()))
}
