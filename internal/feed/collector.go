// Package feed collects advisory items from the configured sources.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/perimetra/vulnfeed/internal/observability"
	"github.com/perimetra/vulnfeed/internal/types"
)

// Collector fetches one source's items. A failing collector costs the run
// that source only; its items come back on the next scheduled run.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]types.FeedItem, error)
}

// Result is the merged output of one collection pass.
type Result struct {
	Items      []types.FeedItem
	Collected  int      // items delivered by all sources, before merge dedup
	Duplicates int      // in-run duplicate identities suppressed at merge
	Failures   []string // sources that failed this run
}

// CollectAll fans out to all collectors concurrently and merges their output
// in registration order, suppressing duplicate identities (first occurrence
// wins). Source failures are absorbed and reported in the result.
func CollectAll(ctx context.Context, collectors []Collector, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.GetMetrics()

	batches := make([][]types.FeedItem, len(collectors))
	errs := make([]error, len(collectors))

	var wg sync.WaitGroup
	for i, collector := range collectors {
		wg.Add(1)
		go func(i int, collector Collector) {
			defer wg.Done()
			batches[i], errs[i] = collector.Collect(ctx)
		}(i, collector)
	}
	wg.Wait()

	var result Result
	seen := make(map[string]bool)
	for i, collector := range collectors {
		if errs[i] != nil {
			logger.Warn("feed collection failed, source skipped this run",
				"source", collector.Name(),
				"error", errs[i])
			metrics.CollectErrors.WithLabelValues(collector.Name()).Inc()
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", collector.Name(), errs[i]))
			continue
		}

		metrics.ItemsCollected.WithLabelValues(collector.Name()).Add(float64(len(batches[i])))
		result.Collected += len(batches[i])

		for _, item := range batches[i] {
			identity := item.Identity()
			if seen[identity] {
				result.Duplicates++
				metrics.ItemsDuplicate.Inc()
				continue
			}
			seen[identity] = true
			result.Items = append(result.Items, item)
		}

		logger.Info("feed collected",
			"source", collector.Name(),
			"items", len(batches[i]))
	}

	return result
}
