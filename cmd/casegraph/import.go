package casegraph

import (
	"context"
	"fmt"

	cg "github.com/soundprediction/casegraph"
	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/soundprediction/casegraph/pkg/ingest"
	"github.com/soundprediction/casegraph/pkg/metrics"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a corpus of case records into the graph",
	Long: `Import reads a JSON array or newline-delimited JSON corpus and writes every case to
the graph in its own transaction. Records without a usable payload are skipped and a
case whose write fails is reported without stopping the import.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var importSkipIndices bool

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importSkipIndices, "skip-indices", false, "do not create uniqueness constraints before importing")
	importCmd.Flags().Int("log-every", 25, "log progress every n records")
	importCmd.Flags().String("anonymous-person", "collapse", "people without email and name: collapse or skip")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(false, func(cfg *config.Config) {
		if cmd.Flags().Changed("log-every") {
			cfg.Ingest.LogEvery, _ = cmd.Flags().GetInt("log-every")
		}
		if cmd.Flags().Changed("anonymous-person") {
			cfg.Ingest.AnonymousPerson, _ = cmd.Flags().GetString("anonymous-person")
		}
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	d, err := cg.NewDriver(cfg.Database)
	if err != nil {
		return err
	}
	client, err := cg.NewClient(d, nil, cfg, metrics.DefaultRegistry(), log)
	if err != nil {
		_ = d.Close(ctx)
		return err
	}
	defer client.Close(context.WithoutCancel(ctx))

	summary := &ingest.Summary{}
	defer func() { printSummary(cmd.OutOrStdout(), summary) }()

	if err := d.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph store not reachable: %w", err)
	}
	if !importSkipIndices {
		if err := client.CreateIndices(ctx); err != nil {
			return fmt.Errorf("failed to create indices: %w", err)
		}
	}

	s, err := client.ImportFile(ctx, args[0])
	if s != nil {
		summary = s
	}
	return err
}
