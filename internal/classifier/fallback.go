package classifier

import (
	"context"

	"github.com/perimetra/vulnfeed/internal/types"
)

// FallbackClassifier classifies without any external call. Severity comes
// from the feed's own severity hint when it normalizes into the enum, else
// UNKNOWN; affected products are the whitelist entries the scorer already
// matched. Deterministic and infallible.
type FallbackClassifier struct{}

// NewFallbackClassifier creates the heuristic classifier.
func NewFallbackClassifier() *FallbackClassifier {
	return &FallbackClassifier{}
}

// Classify maps every item through the heuristic.
func (f *FallbackClassifier) Classify(_ context.Context, items []types.ScoredItem) []types.ClassifiedItem {
	out := make([]types.ClassifiedItem, 0, len(items))
	for _, item := range items {
		out = append(out, f.classifyOne(item))
	}
	return out
}

func (f *FallbackClassifier) classifyOne(item types.ScoredItem) types.ClassifiedItem {
	severity := types.SeverityUnknown
	if parsed, ok := types.ParseSeverity(item.Item.SeverityHint); ok {
		severity = parsed
	}

	products := make([]string, len(item.MatchedEntries))
	copy(products, item.MatchedEntries)

	return types.ClassifiedItem{
		ScoredItem:   item,
		Severity:     severity,
		Products:     products,
		ClassifiedBy: types.ClassifiedByFallback,
	}
}
