package casegraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/soundprediction/casegraph/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	dryRun  bool
	rootCmd = &cobra.Command{
		Use:   "casegraph",
		Short: "casegraph: case email knowledge graph tool",
		Long: `casegraph loads a corpus of case email records into a Neo4j property graph.

Records can first be split into batches, enriched by an LLM and annotated with
cross references and RxNorm drug names. Every command prints a JSON summary on
stdout when it finishes, whether or not it succeeded.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// SIGINT and SIGTERM cancel the running command, which stops between records.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.casegraph.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json, plain)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "write to an in-memory graph instead of the configured store")

	// Bind flags to viper
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".casegraph")
	}

	viper.SetEnvPrefix("CASEGRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setup loads the configuration, applies the command's flag overrides, validates the
// result and builds the logger. needLLM is set by commands that call the enrichment
// endpoint.
func setup(needLLM bool, overrides ...func(*config.Config)) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	for _, override := range overrides {
		override(cfg)
	}
	if dryRun {
		cfg.Database.Driver = "memory"
	}
	if err := cfg.Validate(needLLM); err != nil {
		return nil, nil, err
	}

	log := logger.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(log)
	if dryRun {
		log.Info("Dry run: writing to an in-memory graph")
	}
	return cfg, log, nil
}

// printSummary writes v as indented JSON.
func printSummary(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%+v\n", v)
		return
	}
	fmt.Fprintln(w, string(data))
}
