package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/perimetra/vulnfeed/internal/classifier"
	"github.com/perimetra/vulnfeed/internal/config"
	"github.com/perimetra/vulnfeed/internal/dedup"
	"github.com/perimetra/vulnfeed/internal/feed"
	"github.com/perimetra/vulnfeed/internal/filter"
	"github.com/perimetra/vulnfeed/internal/notify"
	"github.com/perimetra/vulnfeed/internal/observability"
	"github.com/perimetra/vulnfeed/internal/pipeline"
	"github.com/perimetra/vulnfeed/internal/policy"
	"github.com/perimetra/vulnfeed/internal/scoring"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one collect, filter, classify and notify cycle",
	Long: `Run collects every configured feed once, drops advisories already seen in
earlier runs, scores the rest against the whitelist lexicon, classifies the
survivors and notifies on the critical ones. The processed set is committed
at the end of the run; an interrupted run commits nothing.

The command exits non-zero when the run aborts or when any stage recorded a
failure, even if the run itself completed and committed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		if runDryRun {
			cfg.Notify.DryRun = true
		}

		whitelist, err := config.ParseWhitelist(cfg.WhitelistPath)
		if err != nil {
			return fmt.Errorf("failed to parse whitelist: %w", err)
		}

		matcher, err := scoring.NewMatcher(whitelist.Entries())
		if err != nil {
			return fmt.Errorf("failed to build whitelist matcher: %w", err)
		}

		engine, err := policy.NewEngine(cfg.Notify.Policy, logger)
		if err != nil {
			return fmt.Errorf("failed to compile notify policy: %w", err)
		}

		store, err := openStore(cfg, dedup.Options{})
		if err != nil {
			return fmt.Errorf("failed to open dedup store: %w", err)
		}
		defer closeStore(store, logger)

		// A port set to 0 disables the endpoint for this run.
		if cfg.Observability.MetricsPort > 0 && cfg.Observability.HealthCheckPort > 0 {
			healthChecker := observability.NewHealthChecker(logger)
			healthChecker.RegisterComponent(observability.ComponentConfig)
			healthChecker.RegisterComponent(observability.ComponentWhitelist)
			healthChecker.RegisterComponent(observability.ComponentStore)
			healthChecker.UpdateComponentHealth(observability.ComponentConfig, observability.StatusHealthy, "")
			healthChecker.UpdateComponentHealth(observability.ComponentWhitelist, observability.StatusHealthy, "")
			healthChecker.UpdateComponentHealth(observability.ComponentStore, observability.StatusHealthy, "")
			observability.RegisterStoreCollector(store, logger)

			obsServer := observability.NewServer(
				cfg.Observability.MetricsPort,
				cfg.Observability.HealthCheckPort,
				logger,
				healthChecker,
			)
			obsCtx, obsStop := context.WithCancel(ctx)
			obsDone := make(chan struct{})
			go func() {
				defer close(obsDone)
				if err := obsServer.Start(obsCtx); err != nil && err != context.Canceled {
					logger.Error("observability server error",
						"error", err.Error())
				}
			}()
			defer func() {
				obsStop()
				<-obsDone
			}()
		}

		collectors := []feed.Collector{
			feed.NewCVECollector(cfg.Feeds, logger),
			feed.NewNewsCollector(cfg.Feeds, logger),
			feed.NewAdvisoryCollector(cfg.Feeds, logger),
		}

		p := pipeline.NewPipeline(
			store,
			collectors,
			matcher,
			whitelist.GetLexicon(),
			filter.NewFilter(cfg.Scoring.Threshold),
			classifier.New(cfg.Model, whitelist.ProductNames(), logger),
			engine,
			notify.NewSlackNotifier(cfg.Notify, logger),
			logger,
		)

		stats, err := p.Run(ctx)
		if err != nil {
			return err
		}
		if stats.Failed() {
			return fmt.Errorf("run degraded: %s", strings.Join(stats.Failures, "; "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "log notifications instead of delivering them")
}
