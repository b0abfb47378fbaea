// Package cmd provides the CLI commands for chargelog using Cobra.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/internal/app"
	"github.com/Zerofisher/chargelog/internal/config"
	"github.com/Zerofisher/chargelog/internal/logger"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// global flags
var (
	cfgFile   string
	dbPath    string
	logLevel  string
	logFormat string
)

// loaded in PersistentPreRunE
var (
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chargelog",
	Short: "Charging station snapshot ingestion",
	Long: `Chargelog scrapes charging station locations, live availability and
prices, and stores every revision in a SQLite database.

Examples:
  chargelog init                                    # Create the database
  chargelog ingest locations locations.json         # Ingest a saved document
  chargelog scrape availability --speed Rapid       # Scrape once
  chargelog run                                     # Run the configured scraper
  chargelog resolve L1 --plug-type CCS --speed Fast # Latest connector group
  chargelog serve                                   # Read-only HTTP API`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"YAML config file (defaults, then file, then environment)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "",
		"SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: json, console")

	// Define command groups for organized help output
	rootCmd.AddGroup(
		&cobra.Group{ID: "ingest", Title: "Ingestion Commands:"},
		&cobra.Group{ID: "query", Title: "Query Commands:"},
		&cobra.Group{ID: "service", Title: "Service Commands:"},
	)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
}

// setup loads the configuration, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dbPath != "" {
		c.Database.Path = dbPath
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logger.New(c.Log.Level, c.Log.Format, "chargelog", c.Log.Files...)
	if err != nil {
		return err
	}
	cfg, log = c, l
	return nil
}

// openApp opens the database and wires the pipelines.
func openApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	return app.New(ctx, cfg, log, opts...)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
