package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/perimetra/vulnfeed/internal/config"
	"github.com/perimetra/vulnfeed/internal/dedup"
	"github.com/perimetra/vulnfeed/internal/observability"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "vulnfeed",
	Short: "Security advisory triage pipeline",
	Long: `vulnfeed collects security advisories from RSS and Atom feeds and the
GitHub advisory database, filters them against a product whitelist,
classifies the survivors and posts the ones that matter to Slack.
Processed advisories are remembered across runs so nothing is reported
twice.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadRuntime builds the shared runtime every subcommand needs: the .env
// file, the validated environment config and the structured logger.
func loadRuntime() (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Observability.LogLevel
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(level)
	_ = observability.GetMetrics()

	return cfg, logger, nil
}

// openStore opens the configured dedup backend. The caller owns Close.
func openStore(cfg *config.Config, opts dedup.Options) (dedup.Store, error) {
	switch cfg.Store.Type {
	case "jsonfile":
		return dedup.NewJSONFileStore(cfg.Store.Path, opts)
	case "sqlite":
		return dedup.NewSQLiteStore(cfg.Store.SQLitePath, opts)
	case "memory":
		return dedup.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Store.Type)
	}
}

func closeStore(store dedup.Store, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Error("error closing dedup store",
			"error", err.Error())
	}
}
