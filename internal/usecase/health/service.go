package health

import (
	"context"

	"github.com/catrec-io/catrec/internal/breaker"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure; search may still work via cache.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status       Status
	Checks       map[string]CheckResult
	BreakerState string
	IndexedCount int
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	br        BreakerReader
	index     IndexReader
}

// New creates a Service. embedding may be nil when no provider credential
// is configured at startup.
func New(db DBPinger, embedding EmbeddingChecker, br BreakerReader, index IndexReader) *Service {
	return &Service{db: db, embedding: embedding, br: br, index: index}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	state := s.br.State()
	if state == breaker.Open {
		checks["embedding_circuit"] = CheckError
	} else {
		checks["embedding_circuit"] = CheckOK
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{
		Status:       status,
		Checks:       checks,
		BreakerState: state.String(),
		IndexedCount: s.index.Len(),
	}
}
