package casegraph

import (
	"context"
	"fmt"
	"log/slog"

	cg "github.com/soundprediction/casegraph"
	"github.com/soundprediction/casegraph/pkg/batch"
	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/soundprediction/casegraph/pkg/document"
	"github.com/soundprediction/casegraph/pkg/metrics"
	"github.com/soundprediction/casegraph/pkg/nlp"
	"github.com/soundprediction/casegraph/pkg/producer"
	"github.com/spf13/cobra"
)

var splitCmd = &cobra.Command{
	Use:   "split <file>",
	Short: "Split a corpus into batch files",
	Long: `Split reads a JSON array or newline-delimited JSON corpus and writes it to numbered
batch_NNN.json files in the batch input directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

var crossrefCmd = &cobra.Command{
	Use:   "crossref <in> <out>",
	Short: "Annotate records with TF-IDF cross references",
	Long: `Crossref compares the email text of every record with every other record and writes
the pairs scoring above the threshold to each record's crossRefInfo.`,
	Args: cobra.ExactArgs(2),
	RunE: runCrossRef,
}

var drugsCmd = &cobra.Command{
	Use:   "drugs <in> <out>",
	Short: "Annotate records with RxNorm drug names",
	Args:  cobra.ExactArgs(2),
	RunE:  runDrugs,
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich every pending batch with LLM content extraction",
	Long: `Enrich sends the body of every email in the pending batch files to the configured
LLM endpoint and writes the enriched batches. Completed batches recorded in the
checkpoint directory are skipped, so an interrupted run can be resumed.`,
	Args: cobra.NoArgs,
	RunE: runEnrich,
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Re-enrich batches whose output contains enrichment failures",
	Args:  cobra.NoArgs,
	RunE:  runRecover,
}

var mergeCmd = &cobra.Command{
	Use:   "merge <out>",
	Short: "Merge the enriched batches into one JSONL corpus",
	Args:  cobra.ExactArgs(1),
	RunE:  runMerge,
}

func init() {
	rootCmd.AddCommand(splitCmd, crossrefCmd, drugsCmd, enrichCmd, recoverCmd, mergeCmd)

	splitCmd.Flags().Int("size", batch.DefaultSize, "records per batch")
	crossrefCmd.Flags().Float64("threshold", producer.DefaultCrossRefThreshold, "minimum similarity, exclusive")
	for _, c := range []*cobra.Command{enrichCmd, recoverCmd} {
		c.Flags().Int("workers", 1, "batches processed in parallel")
		c.Flags().Bool("ingest", false, "write each enriched batch to the graph")
	}
}

func runSplit(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(false, func(cfg *config.Config) {
		if cmd.Flags().Changed("size") {
			cfg.Batch.Size, _ = cmd.Flags().GetInt("size")
		}
	})
	if err != nil {
		return err
	}

	summary := map[string]any{"records": 0, "batches": 0, "dir": cfg.Batch.InputDir}
	defer func() { printSummary(cmd.OutOrStdout(), summary) }()

	records, err := batch.ReadCorpus(args[0])
	if err != nil {
		return err
	}
	files, err := batch.Split(records, cfg.Batch.InputDir, cfg.Batch.Size)
	summary["records"] = len(records)
	summary["batches"] = len(files)
	if err != nil {
		return err
	}
	log.Info("Corpus split", "records", len(records), "batches", len(files), "dir", cfg.Batch.InputDir)
	return nil
}

func runCrossRef(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(false)
	if err != nil {
		return err
	}
	threshold := cfg.CrossRef.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold, _ = cmd.Flags().GetFloat64("threshold")
	}

	cr := &producer.CrossReferencer{Threshold: threshold}
	annotated := 0
	summary := map[string]any{"records": 0, "annotated": 0, "threshold": threshold}
	defer func() { printSummary(cmd.OutOrStdout(), summary) }()

	n, err := batch.AnnotateFile(args[0], args[1], func(records []*document.Value) error {
		var err error
		annotated, err = cr.Annotate(records)
		return err
	})
	summary["records"] = n
	summary["annotated"] = annotated
	if err != nil {
		return err
	}
	log.Info("Cross references written", "records", n, "annotated", annotated, "out", args[1])
	return nil
}

func runDrugs(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(false)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rx := producer.NewRxNormClient(cfg.RxNorm, metrics.DefaultRegistry(), log)
	annotator := producer.NewDrugAnnotator(nil, rx, log)
	annotated := 0
	summary := map[string]any{"records": 0, "annotated": 0}
	defer func() { printSummary(cmd.OutOrStdout(), summary) }()

	n, err := batch.AnnotateFile(args[0], args[1], func(records []*document.Value) error {
		var err error
		annotated, err = annotator.Annotate(ctx, records)
		return err
	})
	summary["records"] = n
	summary["annotated"] = annotated
	if err != nil {
		return err
	}
	log.Info("Drug annotations written", "records", n, "annotated", annotated, "out", args[1])
	return nil
}

// batchRun is what enrich and recover print.
type batchRun struct {
	Run   *batch.RunSummary `json:"run"`
	Usage nlp.Usage         `json:"llm_usage"`
}

// newBatchClient builds a client with the LLM enrichment stack. The returned tracker
// reports the LLM usage of the run.
func newBatchClient(cmd *cobra.Command, cfg *config.Config, log *slog.Logger) (*cg.Client, *nlp.UsageTracker, error) {
	reg := metrics.DefaultRegistry()
	llm, err := nlp.NewFromConfig(cfg.LLM, reg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	d, err := cg.NewDriver(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	client, err := cg.NewClient(d, producer.NewContentExtractor(llm, log), cfg, reg, log)
	if err != nil {
		_ = d.Close(cmd.Context())
		return nil, nil, err
	}
	return client, llm.Tracker(), nil
}

func runBatchCommand(cmd *cobra.Command, op func(*cg.Client, context.Context) (*batch.RunSummary, error)) error {
	cfg, log, err := setup(true, func(cfg *config.Config) {
		if cmd.Flags().Changed("workers") {
			cfg.Batch.Workers, _ = cmd.Flags().GetInt("workers")
		}
		if cmd.Flags().Changed("ingest") {
			cfg.Batch.Ingest, _ = cmd.Flags().GetBool("ingest")
		}
	})
	if err != nil {
		return err
	}
	client, tracker, err := newBatchClient(cmd, cfg, log)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer client.Close(context.WithoutCancel(ctx))

	result := &batchRun{Run: &batch.RunSummary{}}
	defer func() {
		result.Usage = tracker.Usage()
		printSummary(cmd.OutOrStdout(), result)
	}()

	run, err := op(client, ctx)
	if run != nil {
		result.Run = run
	}
	return err
}

func runEnrich(cmd *cobra.Command, args []string) error {
	return runBatchCommand(cmd, (*cg.Client).Enrich)
}

func runRecover(cmd *cobra.Command, args []string) error {
	return runBatchCommand(cmd, (*cg.Client).Recover)
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(false)
	if err != nil {
		return err
	}

	summary := map[string]any{"records": 0, "out": args[0]}
	defer func() { printSummary(cmd.OutOrStdout(), summary) }()

	n, err := batch.MergeToJSONL(cfg.Batch.EnrichedDir, args[0])
	summary["records"] = n
	if err != nil {
		return err
	}
	log.Info("Enriched batches merged", "records", n, "out", args[0])
	return nil
}
