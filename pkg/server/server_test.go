package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soundprediction/casegraph/pkg/checkpoint"
	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/soundprediction/casegraph/pkg/driver"
	"github.com/soundprediction/casegraph/pkg/ingest"
	"github.com/soundprediction/casegraph/pkg/metrics"
	"github.com/soundprediction/casegraph/pkg/server/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 8080,
			Mode: "test",
		},
	}
}

type unavailableStore struct{}

func (unavailableStore) VerifyConnectivity(ctx context.Context) error {
	return fmt.Errorf("%w: connection refused", driver.ErrUnavailable)
}

type unavailableIngester struct{}

func (unavailableIngester) IngestRecord(ctx context.Context, raw []byte) (ingest.RecordResult, error) {
	return ingest.RecordResult{CaseID: "C1"}, fmt.Errorf("%w: connection refused", driver.ErrUnavailable)
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	s := New(testConfig(), deps, nil)
	s.Setup()
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestSetup(t *testing.T) {
	s := newTestServer(t, Deps{})
	require.NotNil(t, s.router)
	require.NotNil(t, s.server)
	assert.Equal(t, "localhost:8080", s.server.Addr)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, Deps{})

	for _, path := range []string{"/health", "/live"} {
		w := do(s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "casegraph", body["service"])
	}
}

func TestReadiness(t *testing.T) {
	t.Run("memory store is ready", func(t *testing.T) {
		s := newTestServer(t, Deps{Store: driver.NewMemoryDriver()})
		w := do(s, http.MethodGet, "/ready", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ready"`)
	})

	t.Run("no store", func(t *testing.T) {
		s := newTestServer(t, Deps{})
		w := do(s, http.MethodGet, "/ready", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("unreachable store", func(t *testing.T) {
		s := newTestServer(t, Deps{Store: unavailableStore{}})
		w := do(s, http.MethodGet, "/ready", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")
	})
}

func TestIngestRecords(t *testing.T) {
	mem := driver.NewMemoryDriver()
	im := ingest.NewImporter(mem, ingest.NewEngine(ingest.Options{}, nil), ingest.ImporterOptions{}, nil)
	s := newTestServer(t, Deps{Store: mem, Ingester: im})

	body := `[
		{"output":{"identifier":"C1","hasPart":{"identifier":"E1"}}},
		{"email_id":"x"},
		{"output":"{\"identifier\":\"C2\",\"hasPart\":{\"identifier\":\"E2\"}}"}
	]`
	w := do(s, http.MethodPost, "/api/v1/ingest/records", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.IngestRecordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Skipped)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, dto.OutcomeIngested, resp.Results[0].Outcome)
	assert.Equal(t, "C1", resp.Results[0].CaseID)
	assert.Equal(t, dto.OutcomeSkipped, resp.Results[1].Outcome)
	assert.NotEmpty(t, resp.Results[1].Reason)
	assert.Equal(t, 2, mem.NodeCount("Case"))

	// a single object is accepted too, and re-ingestion is idempotent
	w = do(s, http.MethodPost, "/api/v1/ingest/records", `{"output":{"identifier":"C1","hasPart":{"identifier":"E1"}}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, mem.NodeCount("Case"))
}

func TestIngestRecords_BadRequests(t *testing.T) {
	im := ingest.NewImporter(driver.NewMemoryDriver(), ingest.NewEngine(ingest.Options{}, nil), ingest.ImporterOptions{}, nil)
	s := newTestServer(t, Deps{Ingester: im})

	for name, body := range map[string]string{
		"invalid json": `{not json`,
		"empty array":  `[]`,
		"empty body":   ``,
	} {
		t.Run(name, func(t *testing.T) {
			w := do(s, http.MethodPost, "/api/v1/ingest/records", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp dto.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "invalid_request", resp.Error)
		})
	}
}

func TestIngestRecords_Unavailable(t *testing.T) {
	s := newTestServer(t, Deps{Ingester: unavailableIngester{}})
	w := do(s, http.MethodPost, "/api/v1/ingest/records", `{"output":{"identifier":"C1"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s = newTestServer(t, Deps{})
	w = do(s, http.MethodPost, "/api/v1/ingest/records", `{"output":{"identifier":"C1"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBatches(t *testing.T) {
	mgr, err := checkpoint.NewManager(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	done := checkpoint.NewCheckpoint("001")
	done.Records = 10
	require.NoError(t, mgr.Finish(ctx, done, checkpoint.StateCompleted))
	failed := checkpoint.NewCheckpoint("002")
	require.NoError(t, mgr.Finish(ctx, failed, checkpoint.StateFailed))

	s := newTestServer(t, Deps{Checkpoints: mgr})

	w := do(s, http.MethodGet, "/api/v1/batches", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.BatchesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Statistics.Total)
	assert.Equal(t, 10, resp.Statistics.Records)
	require.Len(t, resp.Batches, 2)
	assert.Equal(t, "001", resp.Batches[0].BatchID)

	w = do(s, http.MethodGet, "/api/v1/batches?state=failed", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Batches, 1)
	assert.Equal(t, "002", resp.Batches[0].BatchID)

	w = do(s, http.MethodGet, "/api/v1/batches/001", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(s, http.MethodGet, "/api/v1/batches/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := metrics.NewRegistry()
	s := newTestServer(t, Deps{Metrics: reg})

	do(s, http.MethodGet, "/health", "")
	w := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/health")

	w = do(newTestServer(t, Deps{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, Deps{})
	w := do(s, http.MethodOptions, "/api/v1/ingest/records", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
