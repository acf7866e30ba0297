package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/catrec-io/catrec/internal/domain"
)

func TestMemory_ClaimSemanticsMatchRedis(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	if err := repo.SaveAll(ctx, []domain.Record{
		testRecord(t, "r1", "cat", "p"),
		testRecord(t, "r2", "cat", "p"),
		testRecord(t, "r3", "cat", "p"),
	}); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	claimed, err := repo.ClaimPending(ctx, 2)
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}

	n, _ := repo.PendingCount(ctx)
	if n != 1 {
		t.Errorf("expected 1 pending left, got %d", n)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMemory_RequeueFailed(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	base := testRecord(t, "r1", "cat", "p")
	failed := base.WithFailed("boom", testTime())
	if err := repo.Save(ctx, failed); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	n, err := repo.RequeueFailed(ctx, testTime().Add(time.Minute))
	if err != nil {
		t.Fatalf("RequeueFailed failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 requeued, got %d", n)
	}

	claimed, err := repo.ClaimPending(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("expected requeued record claimable: %v (%d)", err, len(claimed))
	}
	if claimed[0].Status() != domain.StatusPending {
		t.Errorf("expected pending, got %s", claimed[0].Status())
	}
}
