package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// All Record* methods are no-ops on a nil *Registry so components can run without metrics.

// RecordCase records one importer record with its outcome and, for written cases, the
// transaction duration.
func (r *Registry) RecordCase(outcome string, duration time.Duration, enrichmentErrors int) {
	if r == nil {
		return
	}
	r.RecordsTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		r.CaseIngestDuration.Observe(duration.Seconds())
	}
	if enrichmentErrors > 0 {
		r.EnrichmentErrorsTotal.Add(float64(enrichmentErrors))
	}
}

// RecordGraphWrites adds n write statements of kind (node, edge, linked_node).
func (r *Registry) RecordGraphWrites(kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.GraphWritesTotal.WithLabelValues(kind).Add(float64(n))
}

// BatchStarted marks a batch as in progress.
func (r *Registry) BatchStarted() {
	if r == nil {
		return
	}
	r.BatchesInProgress.Inc()
}

// BatchFinished records a batch's final state and duration.
func (r *Registry) BatchFinished(state string, duration time.Duration) {
	if r == nil {
		return
	}
	r.BatchesInProgress.Dec()
	r.BatchesTotal.WithLabelValues(state).Inc()
	r.BatchDuration.Observe(duration.Seconds())
}

// RecordRecovery counts re-enriched batches.
func (r *Registry) RecordRecovery(n int) {
	if r == nil || n == 0 {
		return
	}
	r.RecoveredBatches.Add(float64(n))
}

// RecordLLMCall records a content extraction call.
func (r *Registry) RecordLLMCall(status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.LLMCallsTotal.WithLabelValues(status).Inc()
	r.LLMCallDuration.Observe(duration.Seconds())
}

// RecordLLMTokens adds the prompt and completion tokens of one call.
func (r *Registry) RecordLLMTokens(prompt, completion int) {
	if r == nil {
		return
	}
	r.LLMTokensTotal.WithLabelValues("prompt").Add(float64(prompt))
	r.LLMTokensTotal.WithLabelValues("completion").Add(float64(completion))
}

// RecordRxNormLookup records a drug lookup result (hit, miss, cached, error).
func (r *Registry) RecordRxNormLookup(result string) {
	if r == nil {
		return
	}
	r.RxNormLookupsTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
