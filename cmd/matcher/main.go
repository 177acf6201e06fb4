package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rr-wellmatch/internal/config"
	"github.com/rr-wellmatch/internal/db"
	"github.com/rr-wellmatch/internal/etl"
	"github.com/rr-wellmatch/internal/export"
	"github.com/rr-wellmatch/internal/logging"
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:           "matcher",
		Short:         "Rural route well matcher",
		Long:          `Links water samples to parcels by rural-route address and parcels to wells by location`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "config.ini", "Configuration file (.ini, .yaml or .toml)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "Log format (console or json)")

	// Add subcommands
	rootCmd.AddCommand(createRunCmd())
	rootCmd.AddCommand(createExtractCmd())
	rootCmd.AddCommand(createPingCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Execute root command
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// setup loads the configuration and builds the run logger.
func setup(cmd *cobra.Command, validate bool) (*config.Config, *zap.Logger, string, error) {
	path, _ := cmd.Flags().GetString("config")

	load := config.Load
	if !validate {
		load = config.LoadUnchecked
		if !cmd.Flags().Changed("config") {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				path = ""
			}
		}
	}
	cfg, err := load(path, cmd.Flags())
	if err != nil {
		return nil, nil, "", err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, "", err
	}
	log, runID := logging.WithRunID(log.Named(cmd.Name()))
	return cfg, log, runID, nil
}

// createRunCmd creates the full matching run
func createRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Match samples to parcels and wells and write all result tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, runID, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer log.Sync()

			var publisher export.Publisher
			if cfg.PublishEnabled() {
				conn, err := db.NewConnection(cmd.Context(), cfg.PostGISDSN)
				if err != nil {
					return err
				}
				defer conn.Close()
				publisher = export.NewPostGISPublisher(conn.DB, cfg.PostGISSchema)
				log.Info("publishing to postgis", zap.String("schema", cfg.PostGISSchema))
			}

			summary, err := etl.NewPipeline(cfg, log, publisher).Run(cmd.Context())
			if err != nil {
				log.Error("run failed", zap.Error(err))
				return err
			}
			summary.RunID = runID
			summary.Render(cmd.OutOrStdout())
			return nil
		},
	}

	runCmd.Flags().String("township", "", "Override the configured township")
	runCmd.Flags().String("output", "", "Override the configured output directory")
	runCmd.Flags().Int("srid", config.DefaultTargetSRID, "EPSG code located parcels are reprojected to")
	runCmd.Flags().String("postgis-dsn", "", "Also publish result tables to this PostGIS database")
	runCmd.Flags().String("postgis-schema", config.DefaultPostGISSchema, "Schema for published tables")

	return runCmd
}

// createExtractCmd reports rural-route extraction counts without matching
func createExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Report how many samples carry a rural-route address",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, runID, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer log.Sync()

			summary, err := etl.NewPipeline(cfg, log, nil).Extract(cmd.Context())
			if err != nil {
				return err
			}
			summary.RunID = runID
			summary.Render(cmd.OutOrStdout())
			return nil
		},
	}
}

// createPingCmd creates a command to test database connectivity
func createPingCmd() *cobra.Command {
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Test PostGIS connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, _, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer log.Sync()

			conn, err := db.NewConnection(cmd.Context(), cfg.PostGISDSN)
			if err != nil {
				return err
			}
			defer conn.Close()

			version, err := conn.PostGISVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database connection successful!")
			fmt.Fprintf(cmd.OutOrStdout(), "PostGIS version: %s\n", version)
			return nil
		},
	}
	pingCmd.Flags().String("postgis-dsn", "", "PostGIS connection string (defaults to PG* environment variables)")
	return pingCmd
}
