package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initIngestMetrics() {
	r.RecordsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegraph_records_total",
			Help: "Records seen by the importer, by outcome",
		},
		[]string{"outcome"},
	)

	r.EnrichmentErrorsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "casegraph_enrichment_errors_total",
			Help: "Emails ingested with an enrichment error marker",
		},
	)

	r.CaseIngestDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "casegraph_case_ingest_duration_seconds",
			Help:    "Time spent writing one case transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	r.GraphWritesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegraph_graph_writes_total",
			Help: "Graph write statements issued, by kind",
		},
		[]string{"kind"},
	)
}

func (r *Registry) initBatchMetrics() {
	r.BatchesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegraph_batches_total",
			Help: "Batches finished, by final state",
		},
		[]string{"state"},
	)

	r.BatchDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "casegraph_batch_duration_seconds",
			Help:    "Time spent enriching one batch",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	r.BatchesInProgress = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "casegraph_batches_in_progress",
			Help: "Batches currently being enriched",
		},
	)

	r.RecoveredBatches = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "casegraph_recovered_batches_total",
			Help: "Batches re-enriched by recovery",
		},
	)
}

func (r *Registry) initProducerMetrics() {
	r.LLMCallsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegraph_llm_calls_total",
			Help: "Content extraction calls, by status",
		},
		[]string{"status"},
	)

	r.LLMCallDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "casegraph_llm_call_duration_seconds",
			Help:    "Content extraction call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	r.LLMTokensTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegraph_llm_tokens_total",
			Help: "Tokens consumed by content extraction, by kind",
		},
		[]string{"kind"},
	)

	r.RxNormLookupsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegraph_rxnorm_lookups_total",
			Help: "RxNorm term lookups, by result",
		},
		[]string{"result"},
	)
}

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegraph_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casegraph_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
}
