package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/perimetra/vulnfeed/internal/errors"
)

// Server exposes /metrics on one port and /health plus /ready on another,
// so scrape and probe traffic can be firewalled separately.
type Server struct {
	metricsServer *http.Server
	healthServer  *http.Server
	logger        *slog.Logger
}

// NewServer wires both listeners. Nothing binds until Start.
func NewServer(metricsPort, healthPort int, logger *slog.Logger, healthChecker *HealthChecker) *Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", healthChecker.HealthHandler())
	healthMux.HandleFunc("/ready", healthChecker.ReadyHandler())

	return &Server{
		metricsServer: newHTTPServer(metricsPort, metricsMux),
		healthServer:  newHTTPServer(healthPort, healthMux),
		logger:        logger,
	}
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}

// Start serves both listeners until the context is cancelled, then shuts
// them down with a bounded grace period. Listen failures are logged, not
// returned: a dead metrics port must not take the pipeline down.
func (s *Server) Start(ctx context.Context) error {
	s.serve("metrics", s.metricsServer)
	s.serve("health", s.healthServer)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) serve(name string, server *http.Server) {
	go func() {
		s.logger.Info("starting "+name+" server",
			"addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error(name+" server error",
				"error", err.Error())
		}
	}()
}

// Shutdown stops both listeners. Safe to call after Start has already shut
// them down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down observability servers")

	if err := s.metricsServer.Shutdown(ctx); err != nil {
		return errors.NewTransientf("metrics server shutdown: %w", err)
	}
	if err := s.healthServer.Shutdown(ctx); err != nil {
		return errors.NewTransientf("health server shutdown: %w", err)
	}
	return nil
}
