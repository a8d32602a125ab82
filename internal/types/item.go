package types

import (
	"fmt"
	"time"
)

// Source identifies which feed an item was collected from.
type Source string

const (
	SourceCVE      Source = "CVE"
	SourceNews     Source = "NEWS"
	SourceAdvisory Source = "ADVISORY"
)

// ParseSource normalizes a stored source tag back into a Source.
func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceCVE, SourceNews, SourceAdvisory:
		return Source(s), true
	}
	return "", false
}

// FeedItem represents the canonical advisory item as collected from a feed.
// This is the single source of truth for item data structures; items are
// immutable once collected.
type FeedItem struct {
	Source       Source
	ExternalID   string // source-qualified: CVE ID, article URL/hash, GHSA or CVE identifier
	Title        string
	Description  string
	Link         string
	Published    time.Time
	SeverityHint string // raw severity string from the feed, empty when the feed carries none
}

// Identity returns the dedup key for the item. Two items with the same
// identity are the same advisory regardless of collection time.
func (f FeedItem) Identity() string {
	return fmt.Sprintf("%s:%s", f.Source, f.ExternalID)
}

// ProcessedRecord tracks an item that completed a pipeline run.
// Records are append-only; only an explicit retention cleanup removes them.
type ProcessedRecord struct {
	Source     Source
	ExternalID string
	Title      string
	FirstSeen  time.Time
}

// Identity returns the dedup key the record was committed under.
func (r ProcessedRecord) Identity() string {
	return fmt.Sprintf("%s:%s", r.Source, r.ExternalID)
}
