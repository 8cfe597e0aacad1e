package casegraph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cg "github.com/soundprediction/casegraph"
	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/soundprediction/casegraph/pkg/metrics"
	"github.com/soundprediction/casegraph/pkg/server"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the casegraph HTTP server",
	Long: `Start the casegraph HTTP server.

The server provides endpoints for:
- Ingesting single records or small arrays of records
- Listing batch checkpoints and their statistics
- Health, readiness and Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "release", "Server mode (debug, release, test)")

	// Database flags
	serverCmd.Flags().String("db-driver", "neo4j", "Database driver (neo4j, memgraph, memory)")
	serverCmd.Flags().String("db-uri", "bolt://localhost:7687", "Database URI")
	serverCmd.Flags().String("db-username", "", "Database username")
	serverCmd.Flags().String("db-password", "", "Database password")
	serverCmd.Flags().String("db-database", "", "Database name")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(false, func(cfg *config.Config) { overrideConfigWithFlags(cmd, cfg) })
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	d, err := cg.NewDriver(cfg.Database)
	if err != nil {
		return err
	}
	reg := metrics.DefaultRegistry()
	client, err := cg.NewClient(d, nil, cfg, reg, log)
	if err != nil {
		_ = d.Close(context.Background())
		return err
	}
	defer client.Close(context.Background())

	ctx := cmd.Context()
	if err := client.CreateIndices(ctx); err != nil {
		log.Warn("Failed to create indices", "error", err)
	}

	srv := server.New(cfg, server.Deps{
		Store:       d,
		Ingester:    client,
		Checkpoints: client.GetCheckpoints(),
		Metrics:     reg,
	}, log)
	srv.Setup()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("Shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		log.Info("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Database flags
	if cmd.Flags().Changed("db-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("db-driver")
	}
	if cmd.Flags().Changed("db-uri") {
		cfg.Database.URI, _ = cmd.Flags().GetString("db-uri")
	}
	if cmd.Flags().Changed("db-username") {
		cfg.Database.Username, _ = cmd.Flags().GetString("db-username")
	}
	if cmd.Flags().Changed("db-password") {
		cfg.Database.Password, _ = cmd.Flags().GetString("db-password")
	}
	if cmd.Flags().Changed("db-database") {
		cfg.Database.Database, _ = cmd.Flags().GetString("db-database")
	}
}
