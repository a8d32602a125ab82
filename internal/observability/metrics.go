package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Collection metrics
	ItemsCollected *prometheus.CounterVec
	CollectErrors  *prometheus.CounterVec

	// Dedup metrics
	ItemsDuplicate prometheus.Counter
	ItemsKnown     prometheus.Counter
	ItemsFresh     prometheus.Counter

	// Filter metrics
	ItemsPassed  prometheus.Counter
	ItemsDropped prometheus.Counter

	// Classification metrics
	ModelCalls        prometheus.Counter
	ModelCallErrors   prometheus.Counter
	ModelCallDuration prometheus.Histogram
	Classifications   *prometheus.CounterVec

	// Notification metrics
	NotificationsSent prometheus.Counter
	NotifiedItems     prometheus.Counter
	NotifyErrors      prometheus.Counter

	// Run metrics
	RunsTotal        prometheus.Counter
	RunsFailed       prometheus.Counter
	StageDuration    *prometheus.HistogramVec
	RecordsCommitted prometheus.Counter
	RecordsPruned    prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			// Collection metrics
			ItemsCollected: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "vulnfeed_items_collected_total",
					Help: "Total number of feed items collected by source",
				},
				[]string{"source"},
			),
			CollectErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "vulnfeed_collect_errors_total",
					Help: "Total number of collection failures by source",
				},
				[]string{"source"},
			),

			// Dedup metrics
			ItemsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_items_duplicate_total",
				Help: "Total number of in-run duplicate identities suppressed",
			}),
			ItemsKnown: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_items_known_total",
				Help: "Total number of items skipped as already processed",
			}),
			ItemsFresh: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_items_fresh_total",
				Help: "Total number of items entering the pipeline as new",
			}),

			// Filter metrics
			ItemsPassed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_items_passed_total",
				Help: "Total number of items that passed the relevance filter",
			}),
			ItemsDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_items_dropped_total",
				Help: "Total number of items dropped by the relevance filter",
			}),

			// Classification metrics
			ModelCalls: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_model_calls_total",
				Help: "Total number of model endpoint calls",
			}),
			ModelCallErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_model_call_errors_total",
				Help: "Total number of failed model endpoint calls",
			}),
			ModelCallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "vulnfeed_model_call_duration_seconds",
				Help:    "Duration of model endpoint calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
			}),
			Classifications: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "vulnfeed_classifications_total",
					Help: "Total number of classifications by path",
				},
				[]string{"path"}, // model, fallback
			),

			// Notification metrics
			NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_notifications_sent_total",
				Help: "Total number of notification batches delivered",
			}),
			NotifiedItems: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_notified_items_total",
				Help: "Total number of items included in notifications",
			}),
			NotifyErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_notify_errors_total",
				Help: "Total number of notification delivery failures",
			}),

			// Run metrics
			RunsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_runs_total",
				Help: "Total number of pipeline runs started",
			}),
			RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_runs_failed_total",
				Help: "Total number of pipeline runs that recorded a failure",
			}),
			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "vulnfeed_stage_duration_seconds",
					Help:    "Duration of pipeline stages in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms to ~3min
				},
				[]string{"stage"},
			),
			RecordsCommitted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_records_committed_total",
				Help: "Total number of processed records committed to the dedup store",
			}),
			RecordsPruned: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vulnfeed_records_pruned_total",
				Help: "Total number of processed records removed by retention cleanup",
			}),
		}
	})
	return metricsInstance
}
