package casegraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/soundprediction/casegraph/pkg/batch"
	"github.com/soundprediction/casegraph/pkg/checkpoint"
	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/soundprediction/casegraph/pkg/driver"
	"github.com/soundprediction/casegraph/pkg/identity"
	"github.com/soundprediction/casegraph/pkg/ingest"
	"github.com/soundprediction/casegraph/pkg/metrics"
	"github.com/soundprediction/casegraph/pkg/nlp"
	"github.com/soundprediction/casegraph/pkg/producer"
)

// ErrNoEnricher is returned by the batch operations of a Client built without an
// enricher.
var ErrNoEnricher = errors.New("no enricher configured")

// CaseGraph is the main interface for building the case graph.
type CaseGraph interface {
	// Import writes every record of a JSON array or NDJSON corpus, one transaction per
	// case. The summary is returned even when the import stops early.
	Import(ctx context.Context, r io.Reader) (*ingest.Summary, error)

	// ImportFile imports the corpus at path.
	ImportFile(ctx context.Context, path string) (*ingest.Summary, error)

	// IngestRecord writes one raw corpus record.
	IngestRecord(ctx context.Context, raw []byte) (ingest.RecordResult, error)

	// Enrich runs the batch pipeline over every batch not yet done.
	Enrich(ctx context.Context) (*batch.RunSummary, error)

	// Recover re-runs the batches whose enriched output carries failures.
	Recover(ctx context.Context) (*batch.RunSummary, error)

	// CreateIndices creates the uniqueness constraints of the natural keys.
	CreateIndices(ctx context.Context) error

	// Close releases the graph store connection.
	Close(ctx context.Context) error
}

// Client is the main implementation of the CaseGraph interface.
type Client struct {
	driver       driver.GraphDriver
	importer     *ingest.Importer
	orchestrator *batch.Orchestrator
	checkpoints  *checkpoint.Manager
	config       *config.Config
	logger       *slog.Logger
}

var _ CaseGraph = (*Client)(nil)

// NewClient wires the ingestion engine and, when enricher is set, the batch pipeline on
// top of d. A nil cfg selects config.Default(); reg may be nil.
func NewClient(d driver.GraphDriver, enricher batch.Enricher, cfg *config.Config, reg *metrics.Registry, logger *slog.Logger) (*Client, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: graph driver is required", config.ErrInvalidConfig)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := identity.ParseAnonymousPolicy(cfg.Ingest.AnonymousPerson)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	engine := ingest.NewEngine(ingest.Options{AnonymousPolicy: policy}, logger)
	importer := ingest.NewImporter(d, engine, ingest.ImporterOptions{
		LogEvery: cfg.Ingest.LogEvery,
		Metrics:  reg,
	}, logger)

	c := &Client{
		driver:   d,
		importer: importer,
		config:   cfg,
		logger:   logger,
	}

	if cfg.Batch.CheckpointDir != "" {
		c.checkpoints, err = checkpoint.NewManager(cfg.Batch.CheckpointDir)
		if err != nil {
			return nil, err
		}
	}

	if enricher != nil {
		opts := batch.Options{
			InputDir:    cfg.Batch.InputDir,
			EnrichedDir: cfg.Batch.EnrichedDir,
			Workers:     cfg.Batch.Workers,
			Checkpoints: c.checkpoints,
			Metrics:     reg,
		}
		if cfg.Batch.Ingest {
			opts.Ingester = importer
		}
		c.orchestrator = batch.NewOrchestrator(enricher, opts, logger)
	}
	return c, nil
}

// NewDriver opens the graph store named by cfg.
func NewDriver(cfg config.DatabaseConfig) (driver.GraphDriver, error) {
	provider := driver.GraphProvider(strings.ToLower(cfg.Driver))
	switch provider {
	case driver.GraphProviderMemory:
		return driver.NewMemoryDriver(), nil
	case driver.GraphProviderNeo4j, driver.GraphProviderMemgraph:
		return driver.NewNeo4jDriver(cfg.URI, cfg.Username, cfg.Password, cfg.Database, provider, driver.Neo4jOptions{
			MaxConnectionPoolSize: cfg.MaxConnectionPoolSize,
			ConnectTimeout:        cfg.ConnectTimeout,
			UniqueKeys:            ingest.UniqueKeys(),
		})
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

// NewEnricher builds the LLM content extractor used by the batch pipeline.
func NewEnricher(cfg config.LLMConfig, reg *metrics.Registry, logger *slog.Logger) (*producer.ContentExtractor, error) {
	client, err := nlp.NewFromConfig(cfg, reg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return producer.NewContentExtractor(client, logger), nil
}

// GetDriver returns the underlying graph driver
func (c *Client) GetDriver() driver.GraphDriver {
	return c.driver
}

// GetImporter returns the record importer
func (c *Client) GetImporter() *ingest.Importer {
	return c.importer
}

// GetCheckpoints returns the batch checkpoint manager, nil when checkpoints are disabled.
func (c *Client) GetCheckpoints() *checkpoint.Manager {
	return c.checkpoints
}

// Import implements CaseGraph.
func (c *Client) Import(ctx context.Context, r io.Reader) (*ingest.Summary, error) {
	return c.importer.Import(ctx, r)
}

// ImportFile implements CaseGraph.
func (c *Client) ImportFile(ctx context.Context, path string) (*ingest.Summary, error) {
	return c.importer.ImportFile(ctx, path)
}

// IngestRecord implements CaseGraph.
func (c *Client) IngestRecord(ctx context.Context, raw []byte) (ingest.RecordResult, error) {
	return c.importer.IngestRecord(ctx, raw)
}

// Enrich implements CaseGraph.
func (c *Client) Enrich(ctx context.Context) (*batch.RunSummary, error) {
	if c.orchestrator == nil {
		return nil, ErrNoEnricher
	}
	return c.orchestrator.Run(ctx)
}

// Recover implements CaseGraph.
func (c *Client) Recover(ctx context.Context) (*batch.RunSummary, error) {
	if c.orchestrator == nil {
		return nil, ErrNoEnricher
	}
	return c.orchestrator.Recover(ctx)
}

// CreateIndices implements CaseGraph.
func (c *Client) CreateIndices(ctx context.Context) error {
	return c.driver.CreateIndices(ctx)
}

// Close implements CaseGraph.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}
