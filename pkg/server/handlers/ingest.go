package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/casegraph/pkg/document"
	"github.com/soundprediction/casegraph/pkg/driver"
	"github.com/soundprediction/casegraph/pkg/ingest"
	"github.com/soundprediction/casegraph/pkg/server/dto"
)

// maxBodyBytes bounds the size of an ingest request body.
const maxBodyBytes = 32 << 20

// RecordIngester writes one raw corpus record to the graph.
type RecordIngester interface {
	IngestRecord(ctx context.Context, raw []byte) (ingest.RecordResult, error)
}

// IngestHandler handles data ingestion requests
type IngestHandler struct {
	ingester RecordIngester
	logger   *slog.Logger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingester RecordIngester, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{ingester: ingester, logger: logger}
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.ErrorResponse{Error: code, Message: message})
}

// IngestRecords handles POST /api/v1/ingest/records. The body is one corpus record or
// a JSON array of records; each record is written in its own transaction and reported
// separately. The response is 200 unless the body is unusable or the graph store is
// unavailable.
func (h *IngestHandler) IngestRecords(c *gin.Context) {
	if h.ingester == nil {
		writeError(c, http.StatusServiceUnavailable, "not_configured", "ingestion is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(body) > maxBodyBytes {
		writeError(c, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large")
		return
	}

	records, err := splitRecords(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(records) == 0 {
		writeError(c, http.StatusBadRequest, "invalid_request", "no records in request")
		return
	}
	if len(records) > dto.MaxRecordsPerRequest {
		writeError(c, http.StatusBadRequest, "invalid_request", "too many records in request")
		return
	}

	resp := dto.IngestRecordsResponse{Total: len(records), Results: make([]dto.RecordResult, 0, len(records))}
	for i, raw := range records {
		res, err := h.ingester.IngestRecord(c.Request.Context(), raw)
		rr := dto.RecordResult{
			Index:            i,
			CaseID:           res.CaseID,
			Reason:           res.Reason,
			Emails:           res.Stats.Emails,
			EnrichmentErrors: res.EnrichmentErrors,
		}
		switch {
		case res.Outcome != document.Normalized:
			rr.Outcome = dto.OutcomeSkipped
			resp.Skipped++
		case err != nil:
			if errors.Is(err, driver.ErrUnavailable) {
				writeError(c, http.StatusServiceUnavailable, "store_unavailable", err.Error())
				return
			}
			h.logger.Error("Failed to ingest record", "index", i, "case_id", res.CaseID, "error", err)
			rr.Outcome = dto.OutcomeFailed
			rr.Error = err.Error()
			resp.Failed++
		default:
			rr.Outcome = dto.OutcomeIngested
			resp.Succeeded++
		}
		resp.Results = append(resp.Results, rr)
	}
	c.JSON(http.StatusOK, resp)
}

// splitRecords returns the elements of a JSON array body, or the body itself.
func splitRecords(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '[' {
		if !json.Valid(trimmed) {
			return nil, errors.New("body is not valid JSON")
		}
		return []json.RawMessage{trimmed}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, err
	}
	return records, nil
}
