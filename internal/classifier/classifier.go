// Package classifier assigns severity and affected products to scored items,
// preferably by asking a text-generation endpoint, with a deterministic
// heuristic standing in whenever the endpoint fails or talks nonsense.
package classifier

import (
	"context"

	"github.com/perimetra/vulnfeed/internal/types"
)

// Classifier turns scored items into classified items. Implementations are
// total: they return exactly one result per input item, in input order, and
// never abort the batch. Unreliable backends degrade per item instead.
type Classifier interface {
	Classify(ctx context.Context, items []types.ScoredItem) []types.ClassifiedItem
}
