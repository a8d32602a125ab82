package types

import "strings"

// Severity is the categorical urgency rating assigned to an item.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityUnknown  Severity = "UNKNOWN"
)

// ParseSeverity normalizes a raw severity string into the enum. The second
// return value is false when the input does not map to a known level;
// callers decide whether that means UNKNOWN or a schema violation.
// "MODERATE" is accepted as an alias for MEDIUM because the advisory feed
// uses that spelling.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return SeverityCritical, true
	case "HIGH":
		return SeverityHigh, true
	case "MEDIUM", "MODERATE":
		return SeverityMedium, true
	case "LOW":
		return SeverityLow, true
	}
	return SeverityUnknown, false
}

// Rank orders severities for notification sorting. Lower is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// ClassificationSource records which path produced a classification.
type ClassificationSource string

const (
	ClassifiedByModel    ClassificationSource = "MODEL"
	ClassifiedByFallback ClassificationSource = "FALLBACK_HEURISTIC"
)

// ScoredItem is a FeedItem after the keyword scorer ran over it. Score and
// match sets are derivable from the item and never persisted on their own.
type ScoredItem struct {
	Item            FeedItem
	Score           int
	MatchedEntries  []string // canonical whitelist product names, sorted
	MatchedKeywords []string // distinct lexicon terms found, sorted
	VersionInRange  *bool    // nil when no version evidence was found
}

// ClassifiedItem is a ScoredItem after severity and product extraction,
// either by the model endpoint or by the deterministic fallback.
type ClassifiedItem struct {
	ScoredItem
	Severity     Severity
	Products     []string
	ClassifiedBy ClassificationSource
}
