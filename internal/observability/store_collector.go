package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/perimetra/vulnfeed/internal/dedup"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	storeCollectorOnce     sync.Once
	storeCollectorInstance *StoreCollector
)

// StoreCollector collects metrics from the dedup store on-demand when
// /metrics is scraped
type StoreCollector struct {
	store  dedup.StoreQuery
	logger *slog.Logger

	// Metric descriptors
	processedRecordsDesc *prometheus.Desc
	oldestRecordAgeDesc  *prometheus.Desc
	newestRecordAgeDesc  *prometheus.Desc
}

// NewStoreCollector creates a new dedup store metrics collector
func NewStoreCollector(store dedup.StoreQuery, logger *slog.Logger) *StoreCollector {
	return &StoreCollector{
		store:  store,
		logger: logger,
		processedRecordsDesc: prometheus.NewDesc(
			"vulnfeed_processed_records",
			"Current number of processed records in the dedup store by source",
			[]string{"source"},
			nil,
		),
		oldestRecordAgeDesc: prometheus.NewDesc(
			"vulnfeed_oldest_record_age_seconds",
			"Age of the oldest processed record in seconds",
			nil,
			nil,
		),
		newestRecordAgeDesc: prometheus.NewDesc(
			"vulnfeed_newest_record_age_seconds",
			"Age of the newest processed record in seconds",
			nil,
			nil,
		),
	}
}

// RegisterStoreCollector registers the store collector exactly once
func RegisterStoreCollector(store dedup.StoreQuery, logger *slog.Logger) {
	storeCollectorOnce.Do(func() {
		storeCollectorInstance = NewStoreCollector(store, logger)
		prometheus.MustRegister(storeCollectorInstance)
		logger.Info("dedup store metrics collector registered")
	})
}

// Describe sends the metric descriptors to the provided channel
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.processedRecordsDesc
	ch <- c.oldestRecordAgeDesc
	ch <- c.newestRecordAgeDesc
}

// Collect queries the store and sends current metrics to the provided channel.
// Metrics don't need to be real-time; the timeout keeps a locked store from
// blocking the /metrics endpoint.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	records, err := c.store.List(ctx, dedup.RecordFilter{})
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("store metric collection timed out", "error", err)
		} else {
			c.logger.Error("failed to collect store metrics", "error", err)
		}
		return
	}

	now := time.Now()
	bySource := make(map[string]int)
	var oldest, newest time.Time

	for _, record := range records {
		bySource[string(record.Source)]++
		if oldest.IsZero() || record.FirstSeen.Before(oldest) {
			oldest = record.FirstSeen
		}
		if newest.IsZero() || record.FirstSeen.After(newest) {
			newest = record.FirstSeen
		}
	}

	for source, count := range bySource {
		ch <- prometheus.MustNewConstMetric(
			c.processedRecordsDesc,
			prometheus.GaugeValue,
			float64(count),
			source,
		)
	}

	if !oldest.IsZero() {
		ch <- prometheus.MustNewConstMetric(
			c.oldestRecordAgeDesc,
			prometheus.GaugeValue,
			now.Sub(oldest).Seconds(),
		)
		ch <- prometheus.MustNewConstMetric(
			c.newestRecordAgeDesc,
			prometheus.GaugeValue,
			now.Sub(newest).Seconds(),
		)
	}
}
