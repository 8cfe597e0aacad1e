// Package dto holds the request and response bodies of the HTTP API.
package dto

import (
	"github.com/soundprediction/casegraph/pkg/checkpoint"
)

// MaxRecordsPerRequest bounds the records accepted by one ingest request.
const MaxRecordsPerRequest = 1000

// RecordResult reports the outcome of one posted record.
type RecordResult struct {
	Index            int    `json:"index"`
	Outcome          string `json:"outcome"`
	CaseID           string `json:"case_id,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Error            string `json:"error,omitempty"`
	Emails           int    `json:"emails"`
	EnrichmentErrors int    `json:"enrichment_errors"`
}

// Outcomes reported in RecordResult.
const (
	OutcomeIngested = "ingested"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// IngestRecordsResponse is the body of POST /api/v1/ingest/records.
type IngestRecordsResponse struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Results   []RecordResult `json:"results"`
}

// BatchesResponse is the body of GET /api/v1/batches.
type BatchesResponse struct {
	Statistics *checkpoint.Statistics        `json:"statistics"`
	Batches    []*checkpoint.BatchCheckpoint `json:"batches"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
