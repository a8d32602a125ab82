package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/perimetra/vulnfeed/internal/dedup"
	apperrors "github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/observability"
	"github.com/perimetra/vulnfeed/internal/types"
)

// handleListProcessed lists processed advisory records with optional filters
// @Summary List processed records
// @Description List processed advisory records, newest first, with optional filtering
// @Tags Records
// @Accept json
// @Produce json
// @Param source query string false "Filter by source (CVE, NEWS, ADVISORY)"
// @Param since query string false "Only records first seen after this point; RFC3339 timestamp or a duration like 24h"
// @Param limit query int false "Maximum number of results" default(100)
// @Success 200 {array} ProcessedRecordResponse
// @Failure 400 {object} map[string]string "Invalid filter"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security BearerAuth
// @Router /processed [get]
func (s *APIServer) handleListProcessed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	source := strings.ToUpper(parseQueryParam(r, "source"))
	if source != "" {
		if _, ok := types.ParseSource(source); !ok {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown source %q", source))
			return
		}
	}

	since, err := parseQueryParamTime(r, "since")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := dedup.RecordFilter{
		Source: source,
		Since:  since,
		Limit:  parseQueryParamInt(r, "limit", 100),
	}

	records, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list records: %v", err))
		return
	}

	s.respondJSON(w, http.StatusOK, toRecordResponses(records))
}

// handleGetProcessed retrieves one processed record by source and external id
// @Summary Get processed record
// @Description Retrieve a single processed record by source and external identifier
// @Tags Records
// @Accept json
// @Produce json
// @Param source path string true "Source tag (CVE, NEWS, ADVISORY)"
// @Param id path string true "External identifier (CVE ID, article URL, GHSA ID)"
// @Success 200 {object} ProcessedRecordResponse
// @Failure 400 {object} map[string]string "Invalid path"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Record not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security BearerAuth
// @Router /processed/{source}/{id} [get]
func (s *APIServer) handleGetProcessed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Path format: /api/v1/processed/{source}/{id}; the id may itself
	// contain slashes (news items are keyed by URL), so split once.
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/processed/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		s.respondError(w, http.StatusBadRequest, "Path must be /api/v1/processed/{source}/{id}")
		return
	}

	source, ok := types.ParseSource(strings.ToUpper(parts[0]))
	if !ok {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown source %q", parts[0]))
		return
	}

	record, err := s.store.Get(r.Context(), source, parts[1])
	if err != nil {
		if errors.Is(err, apperrors.ErrRecordNotFound) {
			s.respondError(w, http.StatusNotFound, "Record not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get record: %v", err))
		return
	}

	s.respondJSON(w, http.StatusOK, toRecordResponse(*record))
}

// handleStats reports store statistics
// @Summary Store statistics
// @Description Report record counts by source and the age range of the store
// @Tags Records
// @Produce json
// @Success 200 {object} StatsResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security BearerAuth
// @Router /stats [get]
func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	records, err := s.store.List(r.Context(), dedup.RecordFilter{})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read store: %v", err))
		return
	}

	stats := StatsResponse{
		TotalRecords: len(records),
		BySource:     map[string]int{},
	}
	for _, rec := range records {
		stats.BySource[string(rec.Source)]++
	}
	if len(records) > 0 {
		// List returns newest first
		newest := records[0].FirstSeen.UTC().Format(time.RFC3339)
		oldest := records[len(records)-1].FirstSeen.UTC().Format(time.RFC3339)
		stats.NewestFirstSeen = &newest
		stats.OldestFirstSeen = &oldest
	}

	s.respondJSON(w, http.StatusOK, stats)
}

// handlePrune removes records older than the retention window
// @Summary Prune old records
// @Description Remove processed records first seen before the retention cutoff and persist the store
// @Tags Records
// @Accept json
// @Produce json
// @Param request body PruneRequest false "Optional retention override in days"
// @Success 200 {object} PruneResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "API is in read-only mode"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security BearerAuth
// @Router /prune [post]
func (s *APIServer) handlePrune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	retention := s.retention
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.RetentionDays != 0 {
		if req.RetentionDays < 0 {
			s.respondError(w, http.StatusBadRequest, "retention_days must be positive")
			return
		}
		retention = time.Duration(req.RetentionDays) * 24 * time.Hour
	}

	cutoff := time.Now().UTC().Add(-retention)
	pruned := s.store.Prune(cutoff)

	if err := s.store.Commit(r.Context()); err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to persist store: %v", err))
		return
	}
	observability.GetMetrics().RecordsPruned.Add(float64(pruned))

	s.logger.Info("pruned processed records",
		"pruned", pruned,
		"cutoff", cutoff.Format(time.RFC3339))

	s.respondJSON(w, http.StatusOK, PruneResponse{
		Pruned: pruned,
		Cutoff: cutoff.Format(time.RFC3339),
	})
}

// handleHealth provides the health check endpoint
// @Summary Health check
// @Description Check the health status of the API server and its store
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string "Store unreachable"
// @Router /health [get]
func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if _, err := s.store.Count(r.Context()); err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  err.Error(),
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
