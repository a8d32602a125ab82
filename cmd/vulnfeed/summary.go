package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/perimetra/vulnfeed/internal/dedup"
	"github.com/perimetra/vulnfeed/internal/notify"
	"github.com/perimetra/vulnfeed/internal/types"
)

var (
	summarySince  time.Duration
	summaryDryRun bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Post a digest of recently processed advisories",
	Long: `Summary reads the processed set and posts a single digest message covering
everything first seen inside the window. It never re-sends individual
notifications and never writes to the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		if summaryDryRun {
			cfg.Notify.DryRun = true
		}

		store, err := openStore(cfg, dedup.Options{ReadOnly: true})
		if err != nil {
			return fmt.Errorf("failed to open dedup store: %w", err)
		}
		defer closeStore(store, logger)

		since := time.Now().UTC().Add(-summarySince)
		records, err := store.List(ctx, dedup.RecordFilter{Since: since})
		if err != nil {
			return fmt.Errorf("failed to list processed records: %w", err)
		}

		bySource := make(map[types.Source]int, 3)
		for _, rec := range records {
			bySource[rec.Source]++
		}

		notifier := notify.NewSlackNotifier(cfg.Notify, logger)
		if err := notifier.PostSummary(ctx, notify.SummaryStats{
			Since:    since,
			Total:    len(records),
			BySource: bySource,
			Records:  records,
		}); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Digest covering %d records since %s\n",
			len(records), since.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().DurationVar(&summarySince, "since", 24*time.Hour, "window covered by the digest")
	summaryCmd.Flags().BoolVar(&summaryDryRun, "dry-run", false, "log the digest instead of delivering it")
}
