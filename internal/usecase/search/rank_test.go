package search

import (
	"reflect"
	"testing"

	"github.com/catrec-io/catrec/internal/domain"
)

func hit(recordID, catalogID, path string, sim float64) domain.NeighborHit {
	return domain.NeighborHit{
		RecordID:    recordID,
		CatalogID:   catalogID,
		CatalogPath: path,
		Distance:    1 - sim,
	}
}

func TestAggregate_SumWeightingBeatsSingleHighScore(t *testing.T) {
	hits := []domain.NeighborHit{
		hit("r1", "A", "net/vpn", 0.9),
		hit("r2", "A", "net/vpn", 0.8),
		hit("r3", "B", "mail/outlook", 0.95),
	}

	recs := aggregate(hits, 2, 0)
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}

	a := recs[0]
	if a.CatalogID != "A" || a.Rank != 1 {
		t.Fatalf("expected A at rank 1, got %s at rank %d", a.CatalogID, a.Rank)
	}
	if a.WeightedScore < 1.699 || a.WeightedScore > 1.701 {
		t.Errorf("expected weighted 1.7 for A, got %f", a.WeightedScore)
	}
	if a.RawCount != 2 {
		t.Errorf("expected raw count 2 for A, got %d", a.RawCount)
	}

	b := recs[1]
	if b.CatalogID != "B" || b.Rank != 2 {
		t.Fatalf("expected B at rank 2, got %s at rank %d", b.CatalogID, b.Rank)
	}
	if b.WeightedScore < 0.949 || b.WeightedScore > 0.951 {
		t.Errorf("expected weighted 0.95 for B, got %f", b.WeightedScore)
	}
}

func TestAggregate_TieBreakByCatalogPath(t *testing.T) {
	hits := []domain.NeighborHit{
		hit("r1", "Z", "b/second", 0.8),
		hit("r2", "Y", "a/first", 0.8),
	}

	for i := 0; i < 10; i++ {
		recs := aggregate(hits, 5, 0)
		if len(recs) != 2 {
			t.Fatalf("expected 2 recommendations, got %d", len(recs))
		}
		if recs[0].CatalogPath != "a/first" || recs[1].CatalogPath != "b/second" {
			t.Fatalf("run %d: ties must order by catalog path: %s, %s",
				i, recs[0].CatalogPath, recs[1].CatalogPath)
		}
	}
}

func TestAggregate_TieBreakByRawCountFirst(t *testing.T) {
	hits := []domain.NeighborHit{
		hit("r1", "A", "z/many", 0.5),
		hit("r2", "A", "z/many", 0.5),
		hit("r3", "B", "a/one", 1.0),
	}

	recs := aggregate(hits, 5, 0)
	if recs[0].CatalogID != "A" {
		t.Errorf("equal weighted score must prefer higher raw count, got %s first", recs[0].CatalogID)
	}
}

func TestAggregate_SimilarityFloor(t *testing.T) {
	hits := []domain.NeighborHit{
		hit("r1", "A", "net/vpn", 0.95),
		hit("r2", "B", "mail/outlook", 0.40),
	}

	recs := aggregate(hits, 5, 0.5)
	if len(recs) != 1 || recs[0].CatalogID != "A" {
		t.Fatalf("expected only A above the floor, got %+v", recs)
	}

	recs = aggregate(hits, 5, 0.99)
	if len(recs) != 0 {
		t.Errorf("all-excluded input must yield empty output, got %d", len(recs))
	}
	if recs == nil {
		// aggregate returns an allocated empty slice, never nil.
		t.Error("expected empty slice, got nil")
	}
}

func TestAggregate_TopKTruncationAndRanks(t *testing.T) {
	hits := []domain.NeighborHit{
		hit("r1", "A", "a", 0.9),
		hit("r2", "B", "b", 0.8),
		hit("r3", "C", "c", 0.7),
	}

	recs := aggregate(hits, 2, 0)
	if len(recs) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(recs))
	}
	for i, r := range recs {
		if r.Rank != i+1 {
			t.Errorf("expected 1-based rank %d, got %d", i+1, r.Rank)
		}
	}
}

func TestAggregate_SupportingRecordsCappedAndOrdered(t *testing.T) {
	hits := []domain.NeighborHit{
		hit("r-low", "A", "a", 0.6),
		hit("r-top", "A", "a", 0.95),
		hit("r-mid", "A", "a", 0.8),
		hit("r-mid2", "A", "a", 0.7),
	}

	recs := aggregate(hits, 1, 0)
	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(recs))
	}
	want := []string{"r-top", "r-mid", "r-mid2"}
	if !reflect.DeepEqual(recs[0].SupportingRecordIDs, want) {
		t.Errorf("expected top-3 by similarity %v, got %v", want, recs[0].SupportingRecordIDs)
	}
	if recs[0].RawCount != 4 {
		t.Errorf("raw count must include capped-out hits, got %d", recs[0].RawCount)
	}
}

func TestAggregate_NoHits(t *testing.T) {
	recs := aggregate(nil, 5, 0)
	if len(recs) != 0 {
		t.Errorf("expected empty output for no hits, got %d", len(recs))
	}
}
