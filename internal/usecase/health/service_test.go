package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/catrec-io/catrec/internal/breaker"
)

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct {
	err error
}

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

type mockIndex struct {
	n int
}

func (m *mockIndex) Len() int { return m.n }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockEmbeddingChecker{}, breaker.New(5, time.Minute), &mockIndex{n: 42})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["database"] != CheckOK || r.Checks["embedding"] != CheckOK {
		t.Errorf("unexpected checks: %v", r.Checks)
	}
	if r.BreakerState != "closed" {
		t.Errorf("expected closed breaker, got %s", r.BreakerState)
	}
	if r.IndexedCount != 42 {
		t.Errorf("expected 42 indexed, got %d", r.IndexedCount)
	}
}

func TestCheck_DBError(t *testing.T) {
	svc := New(
		&mockDBPinger{err: errors.New("conn refused")},
		&mockEmbeddingChecker{}, breaker.New(5, time.Minute), &mockIndex{},
	)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database error, got %v", r.Checks)
	}
}

func TestCheck_OpenBreakerDegrades(t *testing.T) {
	br := breaker.New(1, time.Minute)
	br.Failure()

	svc := New(&mockDBPinger{}, &mockEmbeddingChecker{}, br, &mockIndex{})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["embedding_circuit"] != CheckError {
		t.Errorf("expected circuit check error, got %v", r.Checks)
	}
	if r.BreakerState != "open" {
		t.Errorf("expected open state, got %s", r.BreakerState)
	}
}

func TestCheck_NilEmbedderSkipped(t *testing.T) {
	svc := New(&mockDBPinger{}, nil, breaker.New(5, time.Minute), &mockIndex{})
	r := svc.Check(context.Background())

	if _, ok := r.Checks["embedding"]; ok {
		t.Error("nil embedder must not be checked")
	}
	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
}
