package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/domain"
)

type fakeBudget struct {
	checkErr error
	recorded int64
}

func (f *fakeBudget) Check(context.Context) error { return f.checkErr }
func (f *fakeBudget) Record(tokens int64)         { f.recorded += tokens }
func (f *fakeBudget) Remaining() int64            { return 100 }

func TestInstrumented_BudgetRejectBlocksCall(t *testing.T) {
	inner := &scriptedEmbedder{}
	budget := &fakeBudget{checkErr: domain.ErrEmbeddingQuotaExceeded}
	emb := NewInstrumentedEmbedder(inner, "test", "m", budget, zap.NewNop())

	_, err := emb.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("rejected call must not reach the provider, got %d calls", inner.calls)
	}
}

func TestInstrumented_RecordsTokenUsage(t *testing.T) {
	inner := &scriptedEmbedder{}
	budget := &fakeBudget{}
	emb := NewInstrumentedEmbedder(inner, "test", "m", budget, zap.NewNop())

	if _, err := emb.BatchEmbed(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if budget.recorded != 15 {
		t.Errorf("expected 15 tokens recorded, got %d", budget.recorded)
	}
}

func TestInstrumented_NilBudgetAllowed(t *testing.T) {
	inner := &scriptedEmbedder{}
	emb := NewInstrumentedEmbedder(inner, "test", "m", nil, zap.NewNop())

	if _, err := emb.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("nil budget must mean unlimited, got %v", err)
	}
}

func TestInstrumented_EmptyBatchNoop(t *testing.T) {
	inner := &scriptedEmbedder{}
	emb := NewInstrumentedEmbedder(inner, "test", "m", &fakeBudget{}, zap.NewNop())

	res, err := emb.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 0 || inner.calls != 0 {
		t.Errorf("empty batch must be a no-op, calls=%d", inner.calls)
	}
}

func TestInstrumented_ErrorPassthrough(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{domain.ErrProviderUnavailable}}
	budget := &fakeBudget{}
	emb := NewInstrumentedEmbedder(inner, "test", "m", budget, zap.NewNop())

	_, err := emb.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if budget.recorded != 0 {
		t.Errorf("failed call must not consume budget, got %d", budget.recorded)
	}
}
