package metrics

import "github.com/prometheus/client_golang/prometheus"

// Breaker, search, and indexer Prometheus metrics.
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "catrec",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"dependency"},
	)

	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catrec",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"dependency", "from", "to"},
	)

	BreakerRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catrec",
			Name:      "breaker_rejected_total",
			Help:      "Calls rejected by an open circuit breaker",
		},
		[]string{"dependency"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catrec",
			Name:      "search_duration_seconds",
			Help:      "End-to-end recommendation search duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"status"},
	)

	SearchHitsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "catrec",
			Name:      "search_recommendations_returned",
			Help:      "Recommendations returned per search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	IndexerChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catrec",
			Name:      "indexer_chunks_total",
			Help:      "Indexer chunks processed by outcome",
		},
		[]string{"status"}, // "ok" / "error"
	)

	IndexerRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catrec",
			Name:      "indexer_records_total",
			Help:      "Indexer records processed by outcome",
		},
		[]string{"status"}, // "embedded" / "failed"
	)

	IndexerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catrec",
			Name:      "indexer_runs_total",
			Help:      "Index runs by outcome",
		},
		[]string{"status"}, // "completed" / "aborted"
	)

	VectorStoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "catrec",
			Name:      "vectorstore_entries",
			Help:      "Number of vectors currently indexed",
		},
	)

	VectorStoreCompactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "catrec",
			Name:      "vectorstore_compactions_total",
			Help:      "Index compactions triggered by the stale-entry threshold",
		},
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers breaker/search/indexer metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(BreakerTransitionsTotal)
	prometheus.MustRegister(BreakerRejectedTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchHitsReturned)
	prometheus.MustRegister(IndexerChunksTotal)
	prometheus.MustRegister(IndexerRecordsTotal)
	prometheus.MustRegister(IndexerRunsTotal)
	prometheus.MustRegister(VectorStoreSize)
	prometheus.MustRegister(VectorStoreCompactionsTotal)
	engineMetricsRegistered = true
}
