// Package pipeline sequences one run of the advisory pipeline: collect,
// dedup against the persistent store, score, filter, classify, notify,
// commit. Stages are batch stages; each consumes the full output of the
// one before it so the commit at the end covers the run's whole input set
// or nothing at all.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/perimetra/vulnfeed/internal/classifier"
	"github.com/perimetra/vulnfeed/internal/dedup"
	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/feed"
	"github.com/perimetra/vulnfeed/internal/filter"
	"github.com/perimetra/vulnfeed/internal/notify"
	"github.com/perimetra/vulnfeed/internal/observability"
	"github.com/perimetra/vulnfeed/internal/policy"
	"github.com/perimetra/vulnfeed/internal/scoring"
	"github.com/perimetra/vulnfeed/internal/types"
)

// Stage names as reported in the run summary and stage metrics.
const (
	StageCollecting  = "COLLECTING"
	StageDeduping    = "DEDUPING"
	StageScoring     = "SCORING"
	StageFiltering   = "FILTERING"
	StageClassifying = "CLASSIFYING"
	StageNotifying   = "NOTIFYING"
	StageCommitting  = "COMMITTING"
	StageDone        = "DONE"
	StageFailed      = "FAILED"
)

// Pipeline orchestrates one run over an opened store. Collaborators are
// injected so tests can substitute fakes for every external surface.
type Pipeline struct {
	store      dedup.Store
	collectors []feed.Collector
	matcher    *scoring.Matcher
	lexicon    types.Lexicon
	filter     *filter.Filter
	classifier classifier.Classifier
	policy     *policy.Engine
	notifier   notify.Notifier
	converter  *types.RecordConverter
	logger     *slog.Logger
}

// NewPipeline wires a run. The store must already be open and locked; the
// whitelist behind the matcher is immutable for the run.
func NewPipeline(
	store dedup.Store,
	collectors []feed.Collector,
	matcher *scoring.Matcher,
	lexicon types.Lexicon,
	relevance *filter.Filter,
	cls classifier.Classifier,
	engine *policy.Engine,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      store,
		collectors: collectors,
		matcher:    matcher,
		lexicon:    lexicon,
		filter:     relevance,
		classifier: cls,
		policy:     engine,
		notifier:   notifier,
		converter:  types.NewRecordConverter(),
		logger:     logger,
	}
}

// Run executes the full stage sequence once and returns the run stats. A
// nil error with stats.Failed() true means the run completed degraded
// (a source down, a delivery failure); a non-nil error means the run hit
// a terminal failure and committed nothing beyond what Commit persisted.
// The run summary is logged exactly once, on every path.
func (p *Pipeline) Run(ctx context.Context) (types.RunStats, error) {
	metrics := observability.GetMetrics()
	metrics.RunsTotal.Inc()

	stats := types.RunStats{}
	start := time.Now()
	defer func() {
		p.logger.Info("run summary", append(stats.Fields(), "duration", time.Since(start).String())...)
	}()

	if err := p.validateDependencies(); err != nil {
		return p.failRun(&stats, "configuration", err)
	}

	// COLLECTING
	items := p.collectStage(ctx, &stats)
	if err := p.checkAbort(ctx, &stats); err != nil {
		return p.failRun(&stats, stats.Stage, err)
	}

	// DEDUPING
	fresh := p.dedupStage(&stats, items)
	if err := p.checkAbort(ctx, &stats); err != nil {
		return p.failRun(&stats, stats.Stage, err)
	}

	// SCORING
	scored := p.scoreStage(&stats, fresh)

	// FILTERING
	passed, dropped := p.filterStage(&stats, scored)
	if err := p.checkAbort(ctx, &stats); err != nil {
		return p.failRun(&stats, stats.Stage, err)
	}

	// CLASSIFYING
	classified := p.classifyStage(ctx, &stats, passed)
	if err := p.checkAbort(ctx, &stats); err != nil {
		return p.failRun(&stats, stats.Stage, err)
	}

	// NOTIFYING: delivery failure is absorbed; the items were genuinely
	// processed, so losing the notification beats double-notifying them
	// on a rerun.
	p.notifyStage(ctx, &stats, classified)
	if err := p.checkAbort(ctx, &stats); err != nil {
		return p.failRun(&stats, stats.Stage, err)
	}

	// COMMITTING
	if err := p.commitStage(ctx, &stats, classified, dropped); err != nil {
		return p.failRun(&stats, stats.Stage, err)
	}

	stats.Stage = StageDone
	return stats, nil
}

func (p *Pipeline) validateDependencies() error {
	if p.store == nil {
		return errors.NewPermanentf("dedup store is not configured")
	}
	if p.matcher == nil {
		return errors.NewPermanentf("whitelist matcher is not configured")
	}
	if p.filter == nil {
		return errors.NewPermanentf("relevance filter is not configured")
	}
	if p.classifier == nil {
		return errors.NewPermanentf("classifier is not configured")
	}
	if p.policy == nil {
		return errors.NewPermanentf("notification policy is not configured")
	}
	if p.notifier == nil {
		return errors.NewPermanentf("notifier is not configured")
	}
	return nil
}

// checkAbort turns context cancellation into the run-aborted error. Any
// abort before COMMITTING discards the run's progress so the next run
// reprocesses the same items.
func (p *Pipeline) checkAbort(ctx context.Context, stats *types.RunStats) error {
	if ctx.Err() == nil {
		return nil
	}
	return errors.NewTransientf("run aborted during %s: %v: %w", stats.Stage, ctx.Err(), errors.ErrRunAborted)
}

func (p *Pipeline) failRun(stats *types.RunStats, stage string, err error) (types.RunStats, error) {
	stats.Failures = append(stats.Failures, fmt.Sprintf("%s: %v", stage, err))
	stats.Stage = StageFailed
	observability.GetMetrics().RunsFailed.Inc()
	p.logger.Error("pipeline run failed", "stage", stage, "error", err)
	return *stats, err
}

func (p *Pipeline) collectStage(ctx context.Context, stats *types.RunStats) []types.FeedItem {
	done := p.enterStage(stats, StageCollecting)
	defer done()

	result := feed.CollectAll(ctx, p.collectors, p.logger)
	stats.Collected = result.Collected
	stats.Duplicates = result.Duplicates
	stats.Failures = append(stats.Failures, result.Failures...)
	return result.Items
}

// dedupStage drops every identity the store already knows. Known items are
// not re-marked at commit; their records are already present.
func (p *Pipeline) dedupStage(stats *types.RunStats, items []types.FeedItem) []types.FeedItem {
	done := p.enterStage(stats, StageDeduping)
	defer done()
	metrics := observability.GetMetrics()

	fresh := make([]types.FeedItem, 0, len(items))
	for _, item := range items {
		if p.store.IsProcessed(item.Identity()) {
			metrics.ItemsKnown.Inc()
			continue
		}
		metrics.ItemsFresh.Inc()
		fresh = append(fresh, item)
	}
	stats.Fresh = len(fresh)
	p.logger.Info("dedup check complete", "incoming", len(items), "fresh", len(fresh))
	return fresh
}

func (p *Pipeline) scoreStage(stats *types.RunStats, items []types.FeedItem) []types.ScoredItem {
	done := p.enterStage(stats, StageScoring)
	defer done()
	return scoring.ScoreAll(items, p.matcher, p.lexicon)
}

func (p *Pipeline) filterStage(stats *types.RunStats, items []types.ScoredItem) (passed, dropped []types.ScoredItem) {
	done := p.enterStage(stats, StageFiltering)
	defer done()
	metrics := observability.GetMetrics()

	passed, dropped = p.filter.Split(items)
	stats.Passed = len(passed)
	stats.Dropped = len(dropped)
	metrics.ItemsPassed.Add(float64(len(passed)))
	metrics.ItemsDropped.Add(float64(len(dropped)))
	p.logger.Info("relevance filter applied",
		"passed", len(passed),
		"dropped", len(dropped),
		"threshold", p.filter.Threshold())
	return passed, dropped
}

func (p *Pipeline) classifyStage(ctx context.Context, stats *types.RunStats, items []types.ScoredItem) []types.ClassifiedItem {
	done := p.enterStage(stats, StageClassifying)
	defer done()
	metrics := observability.GetMetrics()

	classified := p.classifier.Classify(ctx, items)
	stats.Classified = len(classified)
	for _, item := range classified {
		if item.ClassifiedBy == types.ClassifiedByFallback {
			stats.Fallbacks++
			metrics.Classifications.WithLabelValues("fallback").Inc()
			continue
		}
		metrics.Classifications.WithLabelValues("model").Inc()
	}
	return classified
}

// notifyStage sends at most one notification per run. The severity gate is
// fixed; the policy expression can only narrow within it.
func (p *Pipeline) notifyStage(ctx context.Context, stats *types.RunStats, classified []types.ClassifiedItem) {
	done := p.enterStage(stats, StageNotifying)
	defer done()

	eligible := make([]types.ClassifiedItem, 0, len(classified))
	for _, item := range classified {
		if item.Severity == types.SeverityCritical || item.Severity == types.SeverityHigh {
			eligible = append(eligible, item)
		}
	}

	selected, err := p.policy.Select(eligible)
	if err != nil {
		stats.Failures = append(stats.Failures, fmt.Sprintf("%s: policy evaluation: %v", StageNotifying, err))
		p.logger.Warn("notification policy evaluation failed, batch skipped", "error", err)
		return
	}
	if len(selected) == 0 {
		p.logger.Info("no items qualify for notification",
			"classified", len(classified),
			"eligible", len(eligible))
		return
	}

	if err := p.notifier.Notify(ctx, selected); err != nil {
		stats.Failures = append(stats.Failures, fmt.Sprintf("%s: %v", StageNotifying, err))
		p.logger.Warn("notification delivery failed, commit proceeds", "error", err, "items", len(selected))
		return
	}
	stats.Notified = len(selected)
}

// commitStage marks everything that finished CLASSIFYING plus everything
// dropped at FILTERING, then persists atomically. Items from failed
// sources never reached the run and are retried next time.
func (p *Pipeline) commitStage(ctx context.Context, stats *types.RunStats, classified []types.ClassifiedItem, dropped []types.ScoredItem) error {
	done := p.enterStage(stats, StageCommitting)
	defer done()
	metrics := observability.GetMetrics()

	commitSet := make([]types.FeedItem, 0, len(classified)+len(dropped))
	for _, item := range classified {
		commitSet = append(commitSet, item.Item)
	}
	for _, item := range dropped {
		commitSet = append(commitSet, item.Item)
	}

	firstSeen := time.Now().UTC()
	for _, record := range p.converter.ToProcessedRecords(commitSet, firstSeen) {
		p.store.MarkProcessed(record)
	}

	if err := p.store.Commit(ctx); err != nil {
		return err
	}

	stats.Committed = len(commitSet)
	metrics.RecordsCommitted.Add(float64(len(commitSet)))
	p.logger.Info("dedup records committed", "records", len(commitSet))
	return nil
}

// enterStage transitions the run and returns the duration-observer hook.
func (p *Pipeline) enterStage(stats *types.RunStats, stage string) func() {
	stats.Stage = stage
	p.logger.Debug("stage starting", "stage", stage)
	start := time.Now()
	return func() {
		observability.GetMetrics().StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
