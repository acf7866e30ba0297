package domain

// NeighborHit is a raw nearest-neighbor match returned by the vector store.
// Distance follows the cosine convention: 0 = identical direction.
type NeighborHit struct {
	RecordID    string
	CatalogID   string
	CatalogPath string
	Distance    float64
}

// Similarity converts the hit distance to a similarity score (1 - distance).
func (h NeighborHit) Similarity() float64 { return 1 - h.Distance }

// Recommendation is one ranked catalog entry derived from a group of
// neighbor hits. Ephemeral: computed per query, never persisted.
type Recommendation struct {
	CatalogID           string
	CatalogPath         string
	SupportingRecordIDs []string
	RawCount            int
	WeightedScore       float64
	Rank                int
}
