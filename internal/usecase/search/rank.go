package search

import (
	"sort"

	"github.com/catrec-io/catrec/internal/domain"
)

// supportLimit caps the record IDs attached to a recommendation for
// explainability. Callers wanting the full evidence set query the store
// directly.
const supportLimit = 3

// aggregate groups neighbor hits by catalog entry and ranks the groups.
//
// weighted_score = Σ similarity over the group's hits. Sum, not average:
// a catalog entry that is both frequent and similar outranks one that is
// merely frequent. Ties order by raw_count descending, then catalog_path
// ascending, so repeated runs produce identical output.
//
// Hits below minSimilarity are dropped before grouping; when everything
// is dropped the result is an empty slice, not an error.
func aggregate(hits []domain.NeighborHit, topK int, minSimilarity float64) []domain.Recommendation {
	type group struct {
		catalogID   string
		catalogPath string
		sum         float64
		support     []domain.NeighborHit
	}

	groups := make(map[string]*group)
	for _, h := range hits {
		sim := h.Similarity()
		if minSimilarity > 0 && sim < minSimilarity {
			continue
		}
		g, ok := groups[h.CatalogID]
		if !ok {
			g = &group{catalogID: h.CatalogID, catalogPath: h.CatalogPath}
			groups[h.CatalogID] = g
		}
		g.sum += sim
		g.support = append(g.support, h)
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.sum != b.sum {
			return a.sum > b.sum
		}
		if len(a.support) != len(b.support) {
			return len(a.support) > len(b.support)
		}
		return a.catalogPath < b.catalogPath
	})

	if topK > 0 && len(ordered) > topK {
		ordered = ordered[:topK]
	}

	recs := make([]domain.Recommendation, len(ordered))
	for i, g := range ordered {
		recs[i] = domain.Recommendation{
			CatalogID:           g.catalogID,
			CatalogPath:         g.catalogPath,
			SupportingRecordIDs: topSupport(g.support),
			RawCount:            len(g.support),
			WeightedScore:       g.sum,
			Rank:                i + 1,
		}
	}
	return recs
}

// topSupport returns up to supportLimit record IDs, most similar first.
func topSupport(hits []domain.NeighborHit) []string {
	sorted := make([]domain.NeighborHit, len(hits))
	copy(sorted, hits)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Distance != sorted[j].Distance {
			return sorted[i].Distance < sorted[j].Distance
		}
		return sorted[i].RecordID < sorted[j].RecordID
	})

	n := len(sorted)
	if n > supportLimit {
		n = supportLimit
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = sorted[i].RecordID
	}
	return ids
}
