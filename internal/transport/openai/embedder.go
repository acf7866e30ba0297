// Package openai implements the embedding provider transport over the
// OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/domain"
	"github.com/catrec-io/catrec/internal/metrics"
)

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	User       string
	Provider   string
	Logger     *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   cfg.Provider,
		logger:     cfg.Logger,
	}
}

// Embed implements domain.Embedder for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder. The response vectors are
// positionally aligned with the input texts; any misalignment or dimension
// deviation is surfaced as an error, never coerced.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	model := string(e.model)
	if err != nil {
		classified := classifyAPIError(err)
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, errorClass(classified)).Inc()
		return domain.BatchEmbeddingResult{}, classified
	}

	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, "misaligned_response").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"provider returned %d vectors for %d inputs: %w",
			len(resp.Data), len(texts), domain.ErrProviderUnavailable,
		)
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
			metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, "dim_mismatch").Inc()
			return domain.BatchEmbeddingResult{}, fmt.Errorf(
				"vector [%d] has %d dimensions, expected %d: %w",
				i, len(d.Embedding), e.dimensions, domain.ErrVectorDimMismatch,
			)
		}
		embeddings[i] = d.Embedding
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, model).Observe(duration.Seconds())
	metrics.EmbeddingBatchSize.WithLabelValues(e.provider, model).Observe(float64(len(texts)))

	totalTokens := resp.Usage.TotalTokens
	promptTokens := resp.Usage.PromptTokens
	if totalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "prompt").Add(float64(promptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "total").Add(float64(totalTokens))
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// classifyAPIError maps a provider error onto the domain error taxonomy.
// 401/403 -> ErrAuth (fatal, never retried), 429 -> RateLimitError with an
// optional retry-after hint, 5xx/network/timeout -> ErrProviderUnavailable.
func classifyAPIError(err error) error {
	if status, msg, ok := apiStatus(err); ok {
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return fmt.Errorf("embedding API error %d: %s: %w", status, msg, domain.ErrAuth)
		case status == http.StatusTooManyRequests:
			return fmt.Errorf("embedding API error %d: %s: %w",
				status, msg, domain.NewRateLimitError(parseRetryAfter(msg)))
		case status >= 500:
			return fmt.Errorf("embedding API error %d: %s: %w", status, msg, domain.ErrProviderUnavailable)
		default:
			// Remaining 4xx: a malformed request will not get better on retry.
			return fmt.Errorf("embedding API error %d: %s", status, msg)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("embedding request timed out: %w", domain.ErrProviderUnavailable)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("embedding request network error: %v: %w", netErr, domain.ErrProviderUnavailable)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, domain.ErrProviderUnavailable)
}

// apiStatus extracts the HTTP status and message from a go-openai error.
func apiStatus(err error) (status int, msg string, ok bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, string(reqErr.Body), true
	}
	return 0, "", false
}

// retryAfterRegex matches the "try again in 20s" / "in 1.5 seconds" hint
// some providers embed in 429 messages. No hint is fine; the retry layer
// falls back to its own backoff.
var retryAfterRegex = regexp.MustCompile(`in (\d+(?:\.\d+)?)\s*s`)

func parseRetryAfter(msg string) time.Duration {
	m := retryAfterRegex.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return "auth"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrVectorDimMismatch):
		return "dim_mismatch"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
