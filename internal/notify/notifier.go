// Package notify delivers qualifying findings to operators. The pipeline
// calls the notifier at most once per run with the full qualifying batch.
package notify

import (
	"context"

	"github.com/perimetra/vulnfeed/internal/types"
)

// Notifier delivers one batch of classified items. An empty batch is a
// no-op, not an error; delivery failure is transient and never rolls back
// the run's dedup commit.
type Notifier interface {
	Notify(ctx context.Context, items []types.ClassifiedItem) error
}
