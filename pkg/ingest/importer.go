package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/soundprediction/casegraph/pkg/document"
	"github.com/soundprediction/casegraph/pkg/driver"
	"github.com/soundprediction/casegraph/pkg/identity"
	"github.com/soundprediction/casegraph/pkg/metrics"
)

// DefaultLogEvery is the default progress logging interval, in records.
const DefaultLogEvery = 25

// maxRecordedErrors bounds Summary.Errors.
const maxRecordedErrors = 100

// CaseError is a graph write failure for one record. It is counted and logged; it never
// stops an import.
type CaseError struct {
	Line   int
	CaseID string
	Err    error
}

func (e *CaseError) Error() string {
	return fmt.Sprintf("line %d (case_id=%q): %v", e.Line, e.CaseID, e.Err)
}

func (e *CaseError) Unwrap() error { return e.Err }

// Summary is the result of an import. It is returned even when the import stops early.
type Summary struct {
	Total            int           `json:"total"`
	Succeeded        int           `json:"succeeded"`
	Skipped          int           `json:"skipped"`
	Failed           int           `json:"failed"`
	EnrichmentErrors int           `json:"enrichment_errors"`
	Emails           int           `json:"emails"`
	Duration         time.Duration `json:"duration"`
	Errors           []*CaseError  `json:"-"`
}

// Merge adds the counts of o to s.
func (s *Summary) Merge(o *Summary) {
	s.Total += o.Total
	s.Succeeded += o.Succeeded
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.EnrichmentErrors += o.EnrichmentErrors
	s.Emails += o.Emails
	for _, ce := range o.Errors {
		s.recordError(ce)
	}
}

func (s *Summary) recordError(ce *CaseError) {
	if len(s.Errors) < maxRecordedErrors {
		s.Errors = append(s.Errors, ce)
	}
}

// LogValue implements slog.LogValuer.
func (s *Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("total", s.Total),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped),
		slog.Int("enrichment_errors", s.EnrichmentErrors),
		slog.Duration("duration", s.Duration),
	)
}

// RecordResult describes what happened to a single record.
type RecordResult struct {
	Outcome          document.Outcome
	Reason           string
	CaseID           string
	EnrichmentErrors int
	Stats            Stats
}

// ImporterOptions configures an Importer.
type ImporterOptions struct {
	LogEvery int
	Metrics  *metrics.Registry
}

// Importer reads a corpus and writes one transaction per case.
type Importer struct {
	driver   driver.GraphDriver
	engine   *Engine
	logger   *slog.Logger
	logEvery int
	metrics  *metrics.Registry
}

// NewImporter creates an Importer writing through d.
func NewImporter(d driver.GraphDriver, engine *Engine, opts ImporterOptions, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = DefaultLogEvery
	}
	return &Importer{
		driver:   d,
		engine:   engine,
		logger:   logger,
		logEvery: opts.LogEvery,
		metrics:  opts.Metrics,
	}
}

// IngestRecord normalizes one raw record and writes its case in a single transaction.
// Skipped records return a result and no error; a write failure is returned as error.
func (im *Importer) IngestRecord(ctx context.Context, raw []byte) (RecordResult, error) {
	return im.IngestNormalized(ctx, document.Normalize(raw))
}

// IngestNormalized writes an already normalized record.
func (im *Importer) IngestNormalized(ctx context.Context, norm document.Result) (RecordResult, error) {
	res := RecordResult{Outcome: norm.Outcome, Reason: norm.Reason}
	if norm.Skipped() {
		im.metrics.RecordCase(metrics.OutcomeSkipped, 0, 0)
		return res, nil
	}

	c := document.DecodeCase(norm.Payload)
	if identity.CaseKey(c) == "" {
		res.Outcome = document.SkippedNoIdentifier
		res.Reason = "missing case identifier"
		im.metrics.RecordCase(metrics.OutcomeSkipped, 0, 0)
		return res, nil
	}
	res.CaseID = c.Identifier
	res.EnrichmentErrors = document.CountEnrichmentErrors(norm.Payload)

	start := time.Now()
	err := im.driver.ExecuteWrite(ctx, func(ctx context.Context, tx driver.Tx) error {
		stats, err := im.engine.IngestCase(ctx, tx, c)
		res.Stats = stats
		return err
	})
	if err != nil {
		im.metrics.RecordCase(metrics.OutcomeFailed, time.Since(start), 0)
		return res, err
	}

	im.metrics.RecordCase(metrics.OutcomeSucceeded, time.Since(start), res.EnrichmentErrors)
	im.metrics.RecordGraphWrites("node", res.Stats.Nodes)
	im.metrics.RecordGraphWrites("edge", res.Stats.Edges)
	im.metrics.RecordGraphWrites("linked_node", res.Stats.LinkedNodes)
	return res, nil
}

// ImportFile imports the corpus at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return &Summary{}, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// Import reads a JSON array of records or newline-delimited records from r. Per-record
// problems are counted in the summary. The returned error is non-nil only when the input
// cannot be read further, the context is cancelled, or the graph store is unavailable;
// the summary is valid in every case.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	err := ForEachRecord(r, func(line int, raw []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if line%im.logEvery == 0 {
			im.logger.Info("Processing line",
				"line", line,
				"success", summary.Succeeded,
				"failed", summary.Failed,
				"skipped", summary.Skipped,
				"elapsed", time.Since(start))
		}
		return im.importOne(ctx, summary, line, raw)
	})

	summary.Duration = time.Since(start)
	im.logger.Info("Import summary", "summary", summary)
	return summary, err
}

func (im *Importer) importOne(ctx context.Context, summary *Summary, line int, raw []byte) error {
	summary.Total++
	if len(bytes.TrimSpace(raw)) == 0 {
		summary.Skipped++
		return nil
	}

	res, err := im.IngestRecord(ctx, raw)
	if res.Outcome != document.Normalized {
		summary.Skipped++
		im.logger.Warn("Skipping record", "line", line, "reason", res.Reason)
		return nil
	}
	if err != nil {
		summary.Failed++
		if errors.Is(err, driver.ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		ce := &CaseError{Line: line, CaseID: res.CaseID, Err: err}
		summary.recordError(ce)
		im.logger.Error("Failed to import case", "line", line, "case_id", res.CaseID, "error", err)
		return nil
	}

	summary.Succeeded++
	summary.Emails += res.Stats.Emails
	summary.EnrichmentErrors += res.EnrichmentErrors
	return nil
}

// ForEachRecord calls fn for each record of r, numbered from 1. r holds either a JSON
// array of records or one record per line. In the line format blank lines are passed
// through, so callers can count them. Iteration stops at the first error returned by fn.
func ForEachRecord(r io.Reader, fn func(line int, raw []byte) error) error {
	br := bufio.NewReaderSize(r, 1<<16)
	first, blank, err := skipSpace(br)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read corpus: %w", err)
	}

	if first == '[' {
		dec := json.NewDecoder(br)
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("read corpus: %w", err)
		}
		for n := 1; dec.More(); n++ {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return fmt.Errorf("read corpus record %d: %w", n, err)
			}
			if err := fn(n, raw); err != nil {
				return err
			}
		}
		return nil
	}

	// leading blank lines still count towards line numbers
	for n := 1; n <= blank; n++ {
		if err := fn(n, nil); err != nil {
			return err
		}
	}
	for n := blank + 1; ; n++ {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 || err == nil {
			if ferr := fn(n, bytes.TrimRight(line, "\r\n")); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read corpus line %d: %w", n, err)
		}
	}
}

// skipSpace consumes leading whitespace and returns the first other byte, left
// unread, along with the number of newlines consumed.
func skipSpace(br *bufio.Reader) (byte, int, error) {
	newlines := 0
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, newlines, err
		}
		switch c {
		case '\n':
			newlines++
		case ' ', '\t', '\r':
		default:
			return c, newlines, br.UnreadByte()
		}
	}
}
