// Package chi exposes the recommendation engine over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	chiv5 "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/domain"
	logpkg "github.com/catrec-io/catrec/internal/logger"
	"github.com/catrec-io/catrec/internal/metrics"
	healthuc "github.com/catrec-io/catrec/internal/usecase/health"
	indexeruc "github.com/catrec-io/catrec/internal/usecase/indexer"
	searchuc "github.com/catrec-io/catrec/internal/usecase/search"
)

const maxIngestBatch = 500

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Ingestor accepts raw ETL record tuples.
type Ingestor interface {
	SaveAll(ctx context.Context, recs []domain.Record) error
}

// Server wires the usecase services into HTTP handlers.
type Server struct {
	search        *searchuc.Service
	indexer       *indexeruc.Service
	records       Ingestor
	health        *healthuc.Service
	logger        *zap.Logger
	now           func() time.Time
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	indexer *indexeruc.Service,
	records Ingestor,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:  search,
		indexer: indexer,
		records: records,
		health:  health,
		logger:  logger,
		now:     time.Now,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrCircuitOpen, http.StatusServiceUnavailable, codeServiceDegraded),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusServiceUnavailable, codeServiceDegraded),
		sentinelHandler(domain.ErrRateLimited, http.StatusServiceUnavailable, codeServiceDegraded),
		sentinelHandler(domain.ErrAuth, http.StatusBadGateway, codeProviderAuth),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, codeQuotaExceeded),
		sentinelHandler(domain.ErrRunInProgress, http.StatusConflict, codeRunInProgress),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusInternalServerError, codeDimensionMismatch),
		sentinelHandler(domain.ErrRecordNotFound, http.StatusNotFound, codeRecordNotFound),
		sentinelHandler(searchuc.ErrEmptyQuery, http.StatusBadRequest, codeValidationFailed),
	}
	return s
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chiv5.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chiv5.Router) {
		r.Post("/search", s.Search)
		r.Post("/records", s.IngestRecords)
		r.Route("/index", func(r chiv5.Router) {
			r.Post("/runs", s.StartIndexRun)
			r.Post("/requeue", s.RequeueFailed)
			r.Get("/pending", s.PendingCount)
		})
	})
	return r
}

// requestLogger stashes a request-scoped logger in the context so every
// handler error logs with the request id attached.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := s.logger.With(zap.String("request_id", chimw.GetReqID(r.Context())))
		next.ServeHTTP(w, r.WithContext(logpkg.ContextWith(r.Context(), l)))
	})
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "top_k must be positive")
		return
	}
	var minSim float64
	if req.MinSimilarity != nil {
		if *req.MinSimilarity < 0 || *req.MinSimilarity > 1 {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "min_similarity must be within [0, 1]")
			return
		}
		minSim = *req.MinSimilarity
	}

	recs, err := s.search.Search(r.Context(), req.Query, req.TopK, minSim)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]recommendationItem, len(recs))
	for i, rec := range recs {
		items[i] = recommendationToDTO(rec)
	}
	writeJSON(w, http.StatusOK, searchResponse{Recommendations: items})
}

// IngestRecords handles POST /v1/records.
func (s *Server) IngestRecords(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Records) == 0 || len(req.Records) > maxIngestBatch {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("records count must be between 1 and %d", maxIngestBatch))
		return
	}

	now := s.now()
	recs := make([]domain.Record, 0, len(req.Records))
	for _, item := range req.Records {
		rec, err := domain.NewRecord(item.RecordID, item.CatalogID, item.CatalogPath, item.Text, now)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed,
				fmt.Sprintf("record %q: %s", item.RecordID, err))
			return
		}
		recs = append(recs, rec)
	}

	if err := s.records.SaveAll(r.Context(), recs); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ingestResponse{Accepted: len(recs)})
}

// StartIndexRun handles POST /v1/index/runs. The run executes
// synchronously; the external scheduler owns periodicity.
func (s *Server) StartIndexRun(w http.ResponseWriter, r *http.Request) {
	var req indexRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	summary, err := s.indexer.Run(r.Context(), indexeruc.RunOptions{RecordIDs: req.RecordIDs})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runSummaryToDTO(summary))
}

// RequeueFailed handles POST /v1/index/requeue.
func (s *Server) RequeueFailed(w http.ResponseWriter, r *http.Request) {
	n, err := s.indexer.Requeue(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requeueResponse{Requeued: n})
}

// PendingCount handles GET /v1/index/pending.
func (s *Server) PendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.indexer.PendingCount(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse{Pending: n})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthReportToDTO(report))
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrCircuitOpen,
		domain.ErrProviderUnavailable,
		domain.ErrRateLimited,
		domain.ErrAuth,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrRunInProgress,
		domain.ErrVectorDimMismatch,
		domain.ErrRecordNotFound,
		searchuc.ErrEmptyQuery,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
