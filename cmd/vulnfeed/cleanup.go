package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/perimetra/vulnfeed/internal/dedup"
	"github.com/perimetra/vulnfeed/internal/observability"
)

var cleanupRetentionDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune processed records older than the retention window",
	Long: `Cleanup removes processed records whose first-seen timestamp is older than
the retention window and commits the shrunk set. A pruned identity is
treated as fresh again if a feed ever republishes it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}

		retention := cfg.Retention
		if cleanupRetentionDays > 0 {
			retention = time.Duration(cleanupRetentionDays) * 24 * time.Hour
		}

		store, err := openStore(cfg, dedup.Options{})
		if err != nil {
			return fmt.Errorf("failed to open dedup store: %w", err)
		}
		defer closeStore(store, logger)

		cutoff := time.Now().UTC().Add(-retention)
		pruned := store.Prune(cutoff)
		if err := store.Commit(cmd.Context()); err != nil {
			return fmt.Errorf("failed to commit pruned store: %w", err)
		}
		observability.GetMetrics().RecordsPruned.Add(float64(pruned))

		logger.Info("cleanup complete",
			"pruned", pruned,
			"cutoff", cutoff.Format(time.RFC3339),
			"retention", retention.String())
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d records first seen before %s\n",
			pruned, cutoff.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().IntVar(&cleanupRetentionDays, "retention-days", 0, "override the retention window in days")
}
