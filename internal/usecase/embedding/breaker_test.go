package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/breaker"
	"github.com/catrec-io/catrec/internal/domain"
)

func newTestBreakerEmbedder(inner domain.Embedder, br *breaker.Breaker) *BreakerEmbedder {
	return NewBreakerEmbedder(inner, br, "test-provider", zap.NewNop())
}

func TestBreakerEmbedder_OpensAfterThreshold(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{
		domain.ErrProviderUnavailable,
		domain.ErrProviderUnavailable,
		domain.ErrProviderUnavailable,
	}}
	emb := newTestBreakerEmbedder(inner, breaker.New(3, time.Minute))

	for i := 0; i < 3; i++ {
		if _, err := emb.Embed(context.Background(), "x"); err == nil {
			t.Fatalf("call %d: expected provider error", i)
		}
	}

	// Circuit now open: the inner embedder must not be reached.
	_, err := emb.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("open circuit must short-circuit, inner called %d times", inner.calls)
	}
}

func TestBreakerEmbedder_AuthDoesNotTrip(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{
		domain.ErrAuth, domain.ErrAuth, domain.ErrAuth, domain.ErrAuth,
	}}
	br := breaker.New(2, time.Minute)
	emb := newTestBreakerEmbedder(inner, br)

	for i := 0; i < 4; i++ {
		if _, err := emb.Embed(context.Background(), "x"); !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("call %d: expected auth error, got %v", i, err)
		}
	}
	if br.State() != breaker.Closed {
		t.Errorf("auth failures must not open the circuit, state %s", br.State())
	}
	if inner.calls != 4 {
		t.Errorf("every call must reach the provider, got %d", inner.calls)
	}
}

func TestBreakerEmbedder_SuccessClosesHalfOpen(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	br := breaker.New(1, time.Minute).WithClock(func() time.Time { return clock() })

	inner := &scriptedEmbedder{errs: []error{domain.ErrProviderUnavailable}}
	emb := newTestBreakerEmbedder(inner, br)

	if _, err := emb.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected failure to open the circuit")
	}
	if br.State() != breaker.Open {
		t.Fatalf("expected open, got %s", br.State())
	}

	now = now.Add(61 * time.Second)

	if _, err := emb.BatchEmbed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("trial call should succeed, got %v", err)
	}
	if br.State() != breaker.Closed {
		t.Errorf("successful trial must close the circuit, got %s", br.State())
	}
}

func TestBreakerEmbedder_AuthTrialResolvesHalfOpen(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	br := breaker.New(1, time.Minute).WithClock(func() time.Time { return clock() })

	inner := &scriptedEmbedder{errs: []error{domain.ErrProviderUnavailable, domain.ErrAuth}}
	emb := newTestBreakerEmbedder(inner, br)

	if _, err := emb.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected failure to open the circuit")
	}
	now = now.Add(61 * time.Second)

	// The credential was rotated during the outage: the trial call hits
	// an auth error. The trial must still resolve, not stay half-open.
	if _, err := emb.Embed(context.Background(), "x"); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected auth error from the trial, got %v", err)
	}
	if br.State() == breaker.HalfOpen {
		t.Fatalf("auth error must resolve the trial, state still %s", br.State())
	}

	// Credential fixed: the next call must reach the provider.
	now = now.Add(61 * time.Second)
	if _, err := emb.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("healthy call after trial resolution failed: %v", err)
	}
	if br.State() != breaker.Closed {
		t.Errorf("expected closed after recovery, got %s", br.State())
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 provider calls, got %d", inner.calls)
	}
}
