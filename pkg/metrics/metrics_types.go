package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// Ingestion Metrics
	RecordsTotal          *prometheus.CounterVec
	EnrichmentErrorsTotal prometheus.Counter
	CaseIngestDuration    prometheus.Histogram
	GraphWritesTotal      *prometheus.CounterVec

	// Batch Metrics
	BatchesTotal      *prometheus.CounterVec
	BatchDuration     prometheus.Histogram
	BatchesInProgress prometheus.Gauge
	RecoveredBatches  prometheus.Counter

	// Producer Metrics
	LLMCallsTotal      *prometheus.CounterVec
	LLMCallDuration    prometheus.Histogram
	LLMTokensTotal     *prometheus.CounterVec
	RxNormLookupsTotal *prometheus.CounterVec

	// HTTP Metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide metrics registry used by the CLI.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initIngestMetrics()
	r.initBatchMetrics()
	r.initProducerMetrics()
	r.initHTTPMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
