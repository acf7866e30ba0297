package catrec

import "time"

// Record is a raw service-desk record tuple as produced by ETL.
type Record struct {
	RecordID    string
	CatalogID   string
	CatalogPath string
	Text        string
}

// Recommendation is one ranked catalog entry.
type Recommendation struct {
	Rank                int
	CatalogID           string
	CatalogPath         string
	WeightedScore       float64
	RawCount            int
	SupportingRecordIDs []string
}

// RunSummary reports one index run.
type RunSummary struct {
	RunID       string
	Processed   int
	Failed      int
	Duration    time.Duration
	Aborted     bool
	AbortReason string
}

// HealthReport is the engine health snapshot.
type HealthReport struct {
	Healthy      bool
	Checks       map[string]string
	BreakerState string
	IndexedCount int
}
