// Package filter decides which scored items continue to classification.
package filter

import (
	"github.com/perimetra/vulnfeed/internal/types"
)

// Filter drops items that neither mention a watched product nor reach the
// score threshold. The decision is pure; callers log and count drops.
type Filter struct {
	threshold int
}

// NewFilter creates a filter with the given score threshold. A threshold of
// zero passes everything.
func NewFilter(threshold int) *Filter {
	return &Filter{threshold: threshold}
}

// Threshold returns the configured score threshold.
func (f *Filter) Threshold() int {
	return f.threshold
}

// Passes reports whether the item continues down the pipeline. Any whitelist
// match is enough on its own; otherwise the score must reach the threshold.
// A score exactly equal to the threshold passes.
func (f *Filter) Passes(scored types.ScoredItem) bool {
	if len(scored.MatchedEntries) >= 1 {
		return true
	}
	return scored.Score >= f.threshold
}

// Split partitions a batch into passed and dropped, preserving input order
// within each part. Dropped items are still recorded as processed by the
// run so repeat feed entries do not get rescored forever.
func (f *Filter) Split(items []types.ScoredItem) (passed, dropped []types.ScoredItem) {
	for _, item := range items {
		if f.Passes(item) {
			passed = append(passed, item)
		} else {
			dropped = append(dropped, item)
		}
	}
	return passed, dropped
}
