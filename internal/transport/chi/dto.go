package chi

import (
	"github.com/catrec-io/catrec/internal/domain"
	healthuc "github.com/catrec-io/catrec/internal/usecase/health"
	indexeruc "github.com/catrec-io/catrec/internal/usecase/indexer"
)

// Error codes returned in error responses.
const (
	codeBadRequest        = "bad_request"
	codeValidationFailed  = "validation_failed"
	codeRecordNotFound    = "record_not_found"
	codeServiceDegraded   = "embedding_service_degraded"
	codeProviderAuth      = "embedding_provider_auth"
	codeQuotaExceeded     = "embedding_quota_exceeded"
	codeDimensionMismatch = "vector_dimension_mismatch"
	codeRunInProgress     = "index_run_in_progress"
	codeInternalError     = "internal_error"
	codeUnauthorized      = "unauthorized"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type searchRequest struct {
	Query         string   `json:"query"`
	TopK          int      `json:"top_k,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
}

type recommendationItem struct {
	Rank                int      `json:"rank"`
	CatalogID           string   `json:"catalog_id"`
	CatalogPath         string   `json:"catalog_path"`
	WeightedScore       float64  `json:"weighted_score"`
	RawCount            int      `json:"raw_count"`
	SupportingRecordIDs []string `json:"supporting_record_ids"`
}

type searchResponse struct {
	Recommendations []recommendationItem `json:"recommendations"`
}

func recommendationToDTO(rec domain.Recommendation) recommendationItem {
	ids := rec.SupportingRecordIDs
	if ids == nil {
		ids = []string{}
	}
	return recommendationItem{
		Rank:                rec.Rank,
		CatalogID:           rec.CatalogID,
		CatalogPath:         rec.CatalogPath,
		WeightedScore:       rec.WeightedScore,
		RawCount:            rec.RawCount,
		SupportingRecordIDs: ids,
	}
}

type recordItem struct {
	RecordID    string `json:"record_id"`
	CatalogID   string `json:"catalog_id"`
	CatalogPath string `json:"catalog_path"`
	Text        string `json:"text"`
}

type ingestRequest struct {
	Records []recordItem `json:"records"`
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
}

type indexRunRequest struct {
	RecordIDs []string `json:"record_ids,omitempty"`
}

type indexRunResponse struct {
	RunID       string  `json:"run_id"`
	Processed   int     `json:"processed"`
	Failed      int     `json:"failed"`
	DurationMS  int64   `json:"duration_ms"`
	Aborted     bool    `json:"aborted"`
	AbortReason *string `json:"abort_reason,omitempty"`
}

func runSummaryToDTO(s indexeruc.RunSummary) indexRunResponse {
	resp := indexRunResponse{
		RunID:      s.RunID,
		Processed:  s.Processed,
		Failed:     s.Failed,
		DurationMS: s.Duration.Milliseconds(),
		Aborted:    s.Aborted,
	}
	if s.AbortReason != "" {
		resp.AbortReason = &s.AbortReason
	}
	return resp
}

type requeueResponse struct {
	Requeued int `json:"requeued"`
}

type pendingResponse struct {
	Pending int64 `json:"pending"`
}

type healthResponse struct {
	Status       string            `json:"status"`
	Checks       map[string]string `json:"checks"`
	BreakerState string            `json:"breaker_state"`
	IndexedCount int               `json:"indexed_count"`
}

func healthReportToDTO(r healthuc.Report) healthResponse {
	checks := make(map[string]string, len(r.Checks))
	for k, v := range r.Checks {
		checks[k] = string(v)
	}
	return healthResponse{
		Status:       string(r.Status),
		Checks:       checks,
		BreakerState: r.BreakerState,
		IndexedCount: r.IndexedCount,
	}
}
