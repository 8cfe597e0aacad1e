package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/soundprediction/casegraph/pkg/checkpoint"
	"github.com/soundprediction/casegraph/pkg/document"
	"github.com/soundprediction/casegraph/pkg/driver"
	"github.com/soundprediction/casegraph/pkg/ingest"
	"github.com/soundprediction/casegraph/pkg/metrics"
	"github.com/soundprediction/casegraph/pkg/utils"
)

// Enricher adds enrichment results to the emails of one case payload. It returns the
// number of producer calls and failed extractions; err is reserved for cancellation.
type Enricher interface {
	EnrichPayload(ctx context.Context, payload *document.Value) (calls, failures int, err error)
}

// Ingester writes a normalized record to the graph store.
type Ingester interface {
	IngestNormalized(ctx context.Context, norm document.Result) (ingest.RecordResult, error)
}

// Options configures an Orchestrator.
type Options struct {
	InputDir    string
	EnrichedDir string
	// Workers bounds the number of batches processed at once.
	Workers int
	// Ingester, when set, writes every enriched record to the graph after its batch
	// is enriched.
	Ingester    Ingester
	Checkpoints *checkpoint.Manager
	Metrics     *metrics.Registry
}

// BatchResult is the outcome of one batch.
type BatchResult struct {
	ID               string           `json:"id"`
	State            checkpoint.State `json:"state"`
	Records          int              `json:"records"`
	APICalls         int              `json:"api_calls"`
	EnrichmentErrors int              `json:"enrichment_errors"`
	Ingest           *ingest.Summary  `json:"ingest,omitempty"`
	Err              error            `json:"-"`
}

// RunSummary aggregates the batches handled by Run or Recover.
type RunSummary struct {
	Batches             int             `json:"batches"`
	Skipped             int             `json:"skipped"`
	Completed           int             `json:"completed"`
	CompletedWithErrors int             `json:"completed_with_errors"`
	Failed              int             `json:"failed"`
	Records             int             `json:"records"`
	APICalls            int             `json:"api_calls"`
	EnrichmentErrors    int             `json:"enrichment_errors"`
	Ingest              *ingest.Summary `json:"ingest,omitempty"`
	Duration            time.Duration   `json:"duration"`
	Results             []*BatchResult  `json:"-"`
}

func (s *RunSummary) add(r *BatchResult) {
	s.Batches++
	switch r.State {
	case checkpoint.StateCompleted:
		s.Completed++
	case checkpoint.StateCompletedWithErrors:
		s.CompletedWithErrors++
	default:
		s.Failed++
	}
	s.Records += r.Records
	s.APICalls += r.APICalls
	s.EnrichmentErrors += r.EnrichmentErrors
	if r.Ingest != nil {
		if s.Ingest == nil {
			s.Ingest = &ingest.Summary{}
		}
		s.Ingest.Merge(r.Ingest)
	}
	s.Results = append(s.Results, r)
}

// LogValue implements slog.LogValuer.
func (s *RunSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("batches", s.Batches),
		slog.Int("skipped", s.Skipped),
		slog.Int("completed", s.Completed),
		slog.Int("completed_with_errors", s.CompletedWithErrors),
		slog.Int("failed", s.Failed),
		slog.Int("records", s.Records),
		slog.Int("api_calls", s.APICalls),
		slog.Int("enrichment_errors", s.EnrichmentErrors),
		slog.Duration("duration", s.Duration),
	)
}

// Orchestrator enriches batch files and tracks their state.
type Orchestrator struct {
	enricher Enricher
	opts     Options
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator using enricher for every record.
func NewOrchestrator(enricher Enricher, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Orchestrator{enricher: enricher, opts: opts, logger: logger}
}

// ProcessBatch enriches every record of the batch file in and writes the result to out.
// A record that does not normalize is passed through unchanged, and a record whose
// enrichment panics is written as it was read; neither stops the batch. The returned
// error is set only when the batch cannot be read or written, or ctx is done.
func (o *Orchestrator) ProcessBatch(ctx context.Context, in, out string) (*BatchResult, error) {
	records, err := ReadCorpus(in)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{ID: InputID(filepath.Base(in)), Records: len(records)}
	output := make([]*document.Value, 0, len(records))
	normalized := make([]document.Result, 0, len(records))

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		work := rec.Clone()
		norm := document.NormalizeValue(work)
		if norm.Skipped() {
			o.logger.Warn("Passing record through unenriched", "batch", in, "index", i, "reason", norm.Reason)
			output = append(output, rec)
			continue
		}

		var calls int
		err := utils.Guard(func() error {
			var err error
			calls, _, err = o.enricher.EnrichPayload(ctx, norm.Payload)
			if err != nil {
				return err
			}
			_, err = norm.Encode()
			return err
		})
		res.APICalls += calls
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Error("Record enrichment failed", "batch", in, "index", i, "error", err)
			output = append(output, rec)
			continue
		}

		res.EnrichmentErrors += document.CountEnrichmentErrors(norm.Payload)
		output = append(output, work)
		normalized = append(normalized, norm)
	}

	if err := WriteRecords(out, output); err != nil {
		return nil, err
	}

	res.State = checkpoint.StateCompleted
	if res.EnrichmentErrors > 0 {
		res.State = checkpoint.StateCompletedWithErrors
	}

	if o.opts.Ingester != nil {
		summary, err := o.ingest(ctx, in, normalized)
		res.Ingest = summary
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// ingest writes the enriched records of one batch; per-case failures are counted.
func (o *Orchestrator) ingest(ctx context.Context, batch string, records []document.Result) (*ingest.Summary, error) {
	start := time.Now()
	summary := &ingest.Summary{}
	defer func() { summary.Duration = time.Since(start) }()

	for i, norm := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Total++
		rr, err := o.opts.Ingester.IngestNormalized(ctx, norm)
		if err != nil {
			summary.Failed++
			if errors.Is(err, driver.ErrUnavailable) {
				return summary, err
			}
			o.logger.Error("Failed to ingest case", "batch", batch, "index", i, "case_id", rr.CaseID, "error", err)
			continue
		}
		if rr.Outcome != document.Normalized {
			summary.Skipped++
			o.logger.Warn("Skipping record", "batch", batch, "index", i, "reason", rr.Reason)
			continue
		}
		summary.Succeeded++
		summary.Emails += rr.Stats.Emails
		summary.EnrichmentErrors += rr.EnrichmentErrors
	}
	return summary, nil
}

// Run processes every raw batch in InputDir whose checkpoint is not done, with up to
// Workers batches in parallel. Batches left InProgress by an interrupted run are
// processed again.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{}

	ids, err := listBatches(o.opts.InputDir, InputID)
	if err != nil {
		return summary, err
	}

	var pending []string
	for _, id := range ids {
		if o.opts.Checkpoints != nil {
			cp, err := o.opts.Checkpoints.Load(ctx, id)
			if err != nil {
				return summary, err
			}
			if cp.IsDone() {
				summary.Skipped++
				continue
			}
		}
		pending = append(pending, id)
	}

	o.logger.Info("Starting batch run", "pending", len(pending), "skipped", summary.Skipped, "workers", o.opts.Workers)
	err = o.runBatches(ctx, pending, summary)
	summary.Duration = time.Since(start)
	o.logger.Info("Batch run summary", "summary", summary)
	return summary, err
}

func (o *Orchestrator) runBatches(ctx context.Context, ids []string, summary *RunSummary) error {
	var mu sync.Mutex
	return utils.ForEachLimit(ctx, len(ids), o.opts.Workers, func(ctx context.Context, i int) error {
		res, err := o.runOne(ctx, ids[i])
		mu.Lock()
		summary.add(res)
		mu.Unlock()
		return err
	})
}

func (o *Orchestrator) inputPath(id string) string {
	return filepath.Join(o.opts.InputDir, "batch_"+id+".json")
}

// runOne processes one batch through its checkpoint. Only cancellation and an
// unavailable graph store are returned as errors; other failures mark the batch failed.
func (o *Orchestrator) runOne(ctx context.Context, id string) (*BatchResult, error) {
	in := o.inputPath(id)
	out := filepath.Join(o.opts.EnrichedDir, EnrichedName(id))

	var cp *checkpoint.BatchCheckpoint
	if o.opts.Checkpoints != nil {
		var err error
		if cp, err = o.opts.Checkpoints.Begin(ctx, id, in, out); err != nil {
			return &BatchResult{ID: id, State: checkpoint.StateFailed, Err: err}, err
		}
	}

	start := time.Now()
	o.opts.Metrics.BatchStarted()
	o.logger.Info("Processing batch", "batch", id)

	res, err := o.ProcessBatch(ctx, in, out)
	if res == nil {
		res = &BatchResult{ID: id}
	}
	if err != nil {
		res.State = checkpoint.StateFailed
		res.Err = err
	}
	o.opts.Metrics.BatchFinished(string(res.State), time.Since(start))

	if cp != nil {
		cp.Records = res.Records
		cp.APICalls = res.APICalls
		cp.EnrichmentErrors = res.EnrichmentErrors
		cp.Ingested = o.opts.Ingester != nil && err == nil
		if err != nil {
			cp.LastError = err.Error()
		}
		if serr := o.opts.Checkpoints.Finish(context.WithoutCancel(ctx), cp, res.State); serr != nil {
			o.logger.Error("Failed to save checkpoint", "batch", id, "error", serr)
		}
	}

	if err != nil {
		o.logger.Error("Batch failed", "batch", id, "error", err)
		if ctx.Err() != nil || errors.Is(err, driver.ErrUnavailable) {
			return res, err
		}
		return res, nil
	}
	o.logger.Info("Batch finished", "batch", id, "state", res.State, "records", res.Records,
		"api_calls", res.APICalls, "enrichment_errors", res.EnrichmentErrors)
	return res, nil
}

// FindFailed returns the IDs of enriched batches in enrichedDir containing at least one
// email with an enrichment error marker. Failed backups are not scanned. An enriched
// file that cannot be read is reported as failed.
func FindFailed(enrichedDir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ids, err := listBatches(enrichedDir, EnrichedID)
	if err != nil {
		return nil, err
	}

	var failed []string
	for _, id := range ids {
		records, err := ReadCorpus(filepath.Join(enrichedDir, EnrichedName(id)))
		if err != nil {
			logger.Warn("Unreadable enriched batch", "batch", id, "error", err)
			failed = append(failed, id)
			continue
		}
		for _, rec := range records {
			norm := document.NormalizeValue(rec)
			if !norm.Skipped() && document.HasEnrichmentError(norm.Payload) {
				failed = append(failed, id)
				break
			}
		}
	}
	return failed, nil
}

// Recover re-enriches every batch FindFailed reports. Each flagged output is first
// renamed to its _failed backup, replacing an older backup, and the batch is then run
// again from its raw input. A clean corpus yields an empty summary.
func (o *Orchestrator) Recover(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{}

	failed, err := FindFailed(o.opts.EnrichedDir, o.logger)
	if err != nil {
		return summary, err
	}
	if len(failed) == 0 {
		o.logger.Info("No failed batches to recover")
		return summary, nil
	}
	o.logger.Info("Recovering failed batches", "batches", failed)

	var runnable []string
	for _, id := range failed {
		if _, err := os.Stat(o.inputPath(id)); err != nil {
			o.logger.Error("Original batch input missing, cannot recover", "batch", id, "error", err)
			summary.Failed++
			continue
		}
		src := filepath.Join(o.opts.EnrichedDir, EnrichedName(id))
		if err := os.Rename(src, filepath.Join(o.opts.EnrichedDir, FailedName(id))); err != nil {
			return summary, fmt.Errorf("back up %s: %w", src, err)
		}
		runnable = append(runnable, id)
	}

	o.opts.Metrics.RecordRecovery(len(runnable))
	err = o.runBatches(ctx, runnable, summary)
	summary.Duration = time.Since(start)
	o.logger.Info("Recovery summary", "summary", summary)
	return summary, err
}
