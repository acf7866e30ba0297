package record

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/catrec-io/catrec/internal/domain"
)

func TestRedis_SaveAndGetRoundTrip(t *testing.T) {
	repo := NewRedis(newFakeStore())
	ctx := context.Background()

	rec := testRecord(t, "r1", "cat-net", "network/vpn")
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CatalogID() != "cat-net" || got.CatalogPath() != "network/vpn" {
		t.Errorf("unexpected record: %s / %s", got.CatalogID(), got.CatalogPath())
	}
	if got.Status() != domain.StatusPending {
		t.Errorf("expected pending, got %s", got.Status())
	}
	if !got.UpdatedAt().Equal(testTime()) {
		t.Errorf("timestamp lost in round trip: %s", got.UpdatedAt())
	}
}

func TestRedis_GetMissing(t *testing.T) {
	repo := NewRedis(newFakeStore())

	_, err := repo.Get(context.Background(), "nope")
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRedis_ClaimPendingDrainsQueue(t *testing.T) {
	repo := NewRedis(newFakeStore())
	ctx := context.Background()

	var recs []domain.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, testRecord(t, fmt.Sprintf("r%d", i), "cat", "p"))
	}
	if err := repo.SaveAll(ctx, recs); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	first, err := repo.ClaimPending(ctx, 3)
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 claimed, got %d", len(first))
	}

	rest, err := repo.ClaimPending(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(rest))
	}

	empty, err := repo.ClaimPending(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("drained queue must yield nothing, got %d", len(empty))
	}
}

func TestRedis_ClaimPendingNoDoubleClaim(t *testing.T) {
	repo := NewRedis(newFakeStore())
	ctx := context.Background()

	var recs []domain.Record
	for i := 0; i < 40; i++ {
		recs = append(recs, testRecord(t, fmt.Sprintf("r%02d", i), "cat", "p"))
	}
	if err := repo.SaveAll(ctx, recs); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := repo.ClaimPending(ctx, 5)
				if err != nil {
					t.Errorf("ClaimPending failed: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, rec := range claimed {
					seen[rec.ID()]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 40 {
		t.Fatalf("expected all 40 records claimed, got %d", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("record %s claimed %d times", id, n)
		}
	}
}

func TestRedis_ClaimIDsSkipsNonPending(t *testing.T) {
	repo := NewRedis(newFakeStore())
	ctx := context.Background()

	if err := repo.SaveAll(ctx, []domain.Record{
		testRecord(t, "r1", "cat", "p"),
		testRecord(t, "r2", "cat", "p"),
	}); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	claimed, err := repo.ClaimIDs(ctx, []string{"r1", "r-unknown"})
	if err != nil {
		t.Fatalf("ClaimIDs failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID() != "r1" {
		t.Fatalf("expected only r1 claimed, got %+v", claimed)
	}

	// r1 is no longer pending; claiming it again is a no-op.
	again, err := repo.ClaimIDs(ctx, []string{"r1"})
	if err != nil {
		t.Fatalf("ClaimIDs failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no re-claim, got %d", len(again))
	}

	n, err := repo.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pending left, got %d", n)
	}
}

func TestRedis_UpdateKeepsQueueUntouched(t *testing.T) {
	repo := NewRedis(newFakeStore())
	ctx := context.Background()

	rec := testRecord(t, "r1", "cat", "p")
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	claimed, err := repo.ClaimPending(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim failed: %v (%d)", err, len(claimed))
	}

	embedded, err := claimed[0].WithEmbedded([]float32{0.1, 0.2}, testTime().Add(time.Hour))
	if err != nil {
		t.Fatalf("WithEmbedded failed: %v", err)
	}
	if err := repo.Update(ctx, embedded); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status() != domain.StatusEmbedded {
		t.Errorf("expected embedded, got %s", got.Status())
	}
	if len(got.Embedding()) != 2 {
		t.Errorf("embedding lost in round trip: %v", got.Embedding())
	}

	n, _ := repo.PendingCount(ctx)
	if n != 0 {
		t.Errorf("update must not re-enqueue, pending=%d", n)
	}
}

func TestRedis_RequeueFailed(t *testing.T) {
	repo := NewRedis(newFakeStore())
	ctx := context.Background()

	ok := testRecord(t, "r-ok", "cat", "p")
	base := testRecord(t, "r-failed", "cat", "p")
	failed := base.WithFailed("provider exploded", testTime())
	if err := repo.SaveAll(ctx, []domain.Record{ok, failed}); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	// Drain the queue so only the requeue refills it.
	if _, err := repo.ClaimPending(ctx, 10); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	n, err := repo.RequeueFailed(ctx, testTime().Add(time.Hour))
	if err != nil {
		t.Fatalf("RequeueFailed failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 requeued, got %d", n)
	}

	got, err := repo.Get(ctx, "r-failed")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status() != domain.StatusPending || got.LastError() != "" {
		t.Errorf("requeue must reset status and error: %s / %q", got.Status(), got.LastError())
	}

	pending, _ := repo.PendingCount(ctx)
	if pending != 1 {
		t.Errorf("expected 1 pending after requeue, got %d", pending)
	}
}
