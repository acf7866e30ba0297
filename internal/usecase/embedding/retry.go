package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/domain"
	"github.com/catrec-io/catrec/internal/metrics"
)

// RetryConfig bounds the retry loop around transient provider failures.
type RetryConfig struct {
	MaxAttempts int           // total attempts, including the first call
	BaseDelay   time.Duration // first backoff delay, doubled per attempt
	MaxDelay    time.Duration // backoff cap
}

// DefaultRetryConfig returns the production retry policy: 3 attempts,
// exponential backoff starting at 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// RetryEmbedder retries transient provider failures with exponential
// backoff. Error classification is explicit: only errors for which
// domain.IsTransient holds are retried, so auth errors and circuit
// rejections surface on the first attempt.
type RetryEmbedder struct {
	inner    domain.Embedder
	cfg      RetryConfig
	provider string
	model    string
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

// NewRetryEmbedder wraps an embedder with bounded retry.
func NewRetryEmbedder(
	inner domain.Embedder, cfg RetryConfig, provider, model string, logger *zap.Logger,
) *RetryEmbedder {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &RetryEmbedder{
		inner:    inner,
		cfg:      cfg,
		provider: provider,
		model:    model,
		sleep:    sleepCtx,
		logger:   logger,
	}
}

// WithSleep overrides the backoff sleeper (tests).
func (r *RetryEmbedder) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *RetryEmbedder {
	r.sleep = sleep
	return r
}

// Embed retries a single-text call on transient failure.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var out domain.EmbeddingResult
	err := r.do(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = r.inner.Embed(ctx, text)
		return callErr
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return out, nil
}

// BatchEmbed retries a batch call on transient failure.
func (r *RetryEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var out domain.BatchEmbeddingResult
	err := r.do(ctx, func(ctx context.Context) error {
		var callErr error
		if be, ok := r.inner.(domain.BatchEmbedder); ok {
			out, callErr = be.BatchEmbed(ctx, texts)
		} else {
			out, callErr = domain.BatchFallback(ctx, r.inner, texts)
		}
		return callErr
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return out, nil
}

func (r *RetryEmbedder) do(ctx context.Context, call func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.backoff(attempt)
		// Honor a provider-supplied retry-after hint when it is longer.
		var rl *domain.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}

		metrics.EmbeddingRetriesTotal.WithLabelValues(r.provider, r.model).Inc()
		r.logger.Warn("Transient embedding failure, retrying",
			zap.String("provider", r.provider),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("embed failed after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

// backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (r *RetryEmbedder) backoff(attempt int) time.Duration {
	delay := r.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.cfg.MaxDelay {
			return r.cfg.MaxDelay
		}
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
