package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/perimetra/vulnfeed/internal/api"
	"github.com/perimetra/vulnfeed/internal/dedup"
	"github.com/perimetra/vulnfeed/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API and observability endpoints",
	Long: `Serve exposes the processed set over the HTTP query API together with the
Prometheus metrics and health endpoints. With API_READ_ONLY=true the store
is opened without the run lock and prune requests are rejected, so a serve
instance can run alongside scheduled pipeline runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		// The subcommand is the explicit ask; the env toggle only gates
		// embedding the API elsewhere.
		cfg.API.Enabled = true

		healthChecker := observability.NewHealthChecker(logger)
		healthChecker.RegisterComponent(observability.ComponentConfig)
		healthChecker.RegisterComponent(observability.ComponentStore)
		healthChecker.RegisterComponent(observability.ComponentAPI)
		healthChecker.UpdateComponentHealth(observability.ComponentConfig, observability.StatusHealthy, "")

		store, err := openStore(cfg, dedup.Options{ReadOnly: cfg.API.ReadOnly})
		if err != nil {
			healthChecker.UpdateComponentHealth(observability.ComponentStore, observability.StatusUnhealthy, err.Error())
			return fmt.Errorf("failed to open dedup store: %w", err)
		}
		defer closeStore(store, logger)
		healthChecker.UpdateComponentHealth(observability.ComponentStore, observability.StatusHealthy, "")

		observability.RegisterStoreCollector(store, logger)

		obsServer := observability.NewServer(
			cfg.Observability.MetricsPort,
			cfg.Observability.HealthCheckPort,
			logger,
			healthChecker,
		)

		apiServer := api.NewAPIServer(&cfg.API, store, cfg.Retention, logger)
		healthChecker.UpdateComponentHealth(observability.ComponentAPI, observability.StatusHealthy, "")

		go healthChecker.StartPeriodicChecks(ctx, 30*time.Second, map[string]observability.HealthCheckFunc{
			observability.ComponentStore: func(ctx context.Context) error {
				_, err := store.Count(ctx)
				return err
			},
		})

		var wg sync.WaitGroup
		errChan := make(chan error, 2)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := obsServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("observability server error",
					"error", err.Error())
				errChan <- fmt.Errorf("observability server error: %w", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("API server listening",
				"port", cfg.API.Port,
				"read_only", cfg.API.ReadOnly)
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("API server error",
					"error", err.Error())
				errChan <- fmt.Errorf("API server error: %w", err)
			}
		}()

		logger.Info("all components started successfully")

		select {
		case <-ctx.Done():
			logger.Info("received shutdown signal")
		case err := <-errChan:
			logger.Error("component error, initiating shutdown",
				"error", err.Error())
			stop()
		}

		logger.Info("shutting down gracefully")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			logger.Info("all components stopped gracefully")
		case <-shutdownCtx.Done():
			logger.Warn("shutdown timeout exceeded, forcing exit")
		}

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down API server",
				"error", err.Error())
		}
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down observability server",
				"error", err.Error())
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
