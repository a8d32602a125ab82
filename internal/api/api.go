package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/perimetra/vulnfeed/internal/config"
	"github.com/perimetra/vulnfeed/internal/dedup"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/perimetra/vulnfeed/build/swagger" // Import generated docs
)

// @title vulnfeed API
// @version 1.0
// @description REST API for querying processed security advisories and managing dedup state retention.
// @description
// @description ## Features
// @description - Query processed advisory records by source and age
// @description - Look up a single record by source and external identifier
// @description - Store statistics for dashboards
// @description - Retention pruning (blocked in read-only mode)
// @description - Health checks and metrics

// @contact.name vulnfeed
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter your API key (with or without "Bearer " prefix)

// APIServer provides the HTTP API for querying the processed-record store
type APIServer struct {
	config    *config.APIConfig
	store     dedup.Store
	retention time.Duration
	router    *http.ServeMux
	server    *http.Server
	logger    *slog.Logger
}

// NewAPIServer creates a new API server instance. The store may be opened
// read-only; write endpoints are then rejected by the middleware.
func NewAPIServer(cfg *config.APIConfig, store dedup.Store, retention time.Duration, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}

	api := &APIServer{
		config:    cfg,
		store:     store,
		retention: retention,
		router:    http.NewServeMux(),
		logger:    logger,
	}

	api.setupRoutes()

	api.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return api
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Query endpoints (GET)
	s.router.HandleFunc("/api/v1/processed", s.corsMiddleware(s.authMiddleware(s.handleListProcessed, false)))
	s.router.HandleFunc("/api/v1/processed/", s.corsMiddleware(s.authMiddleware(s.handleGetProcessed, false)))
	s.router.HandleFunc("/api/v1/stats", s.corsMiddleware(s.authMiddleware(s.handleStats, false)))

	// Action endpoints (POST)
	s.router.HandleFunc("/api/v1/prune", s.corsMiddleware(s.authMiddleware(s.handlePrune, true)))

	// Health and metrics
	s.router.HandleFunc("/health", s.corsMiddleware(s.handleHealth))
	s.router.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	s.router.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Redirect root to swagger
	s.router.HandleFunc("/", s.handleRootRedirect)
}

// corsMiddleware adds CORS headers to allow cross-origin requests
func (s *APIServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// authMiddleware provides optional API key authentication.
// requireWrite marks operations that must be blocked in read-only mode.
func (s *APIServer) authMiddleware(next http.HandlerFunc, requireWrite bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requireWrite && s.config.ReadOnly {
			s.respondError(w, http.StatusForbidden, "API is in read-only mode")
			return
		}

		if s.config.APIKey != "" {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				s.respondError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			// Accept both "Bearer <token>" and just "<token>"
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token != s.config.APIKey {
				s.respondError(w, http.StatusUnauthorized, "Invalid API key")
				return
			}
		}

		next(w, r)
	}
}

// Start starts the API server and blocks until the context is cancelled
func (s *APIServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("API server is disabled")
		return nil
	}

	s.logger.Info("starting API server",
		"port", s.config.Port,
		"read_only", s.config.ReadOnly)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error",
				"error", err.Error())
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down API server")
	return s.server.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the API server
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// respondJSON sends a JSON response
func (s *APIServer) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("error encoding JSON response",
			"error", err.Error())
	}
}

// respondError sends an error response
func (s *APIServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// parseQueryParam extracts a query parameter from the request
func parseQueryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// parseQueryParamInt extracts an integer query parameter
func parseQueryParamInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
		return intValue
	}
	return defaultValue
}

// parseQueryParamTime extracts a timestamp query parameter. Accepts an
// RFC3339 timestamp or a relative duration such as "24h".
func parseQueryParamTime(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return time.Now().UTC().Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid time value %q, want RFC3339 or a duration like 24h", value)
}

// handleRootRedirect redirects / to /swagger/
func (s *APIServer) handleRootRedirect(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	http.Redirect(w, r, "/swagger/", http.StatusMovedPermanently)
}
