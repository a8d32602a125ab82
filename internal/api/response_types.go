package api

import (
	"time"

	"github.com/perimetra/vulnfeed/internal/types"
)

// ProcessedRecordResponse represents a processed advisory record for API
// responses. Timestamps are formatted as ISO8601 strings.
type ProcessedRecordResponse struct {
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	FirstSeen  string `json:"first_seen"` // ISO8601
}

func toRecordResponse(rec types.ProcessedRecord) ProcessedRecordResponse {
	return ProcessedRecordResponse{
		Source:     string(rec.Source),
		ExternalID: rec.ExternalID,
		Title:      rec.Title,
		FirstSeen:  rec.FirstSeen.UTC().Format(time.RFC3339),
	}
}

func toRecordResponses(records []types.ProcessedRecord) []ProcessedRecordResponse {
	out := make([]ProcessedRecordResponse, len(records))
	for i, rec := range records {
		out[i] = toRecordResponse(rec)
	}
	return out
}

// StatsResponse summarizes the processed-record store.
type StatsResponse struct {
	TotalRecords    int            `json:"total_records"`
	BySource        map[string]int `json:"by_source"`
	OldestFirstSeen *string        `json:"oldest_first_seen"` // ISO8601 or null
	NewestFirstSeen *string        `json:"newest_first_seen"` // ISO8601 or null
}

// PruneRequest optionally overrides the configured retention window.
type PruneRequest struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// PruneResponse reports the outcome of a prune.
type PruneResponse struct {
	Pruned int    `json:"pruned"`
	Cutoff string `json:"cutoff"` // ISO8601
}
