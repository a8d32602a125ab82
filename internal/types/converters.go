package types

import (
	"sort"
	"time"
)

// RecordConverter provides conversion methods between pipeline items and
// dedup store records.
type RecordConverter struct{}

// NewRecordConverter creates a new RecordConverter instance.
func NewRecordConverter() *RecordConverter {
	return &RecordConverter{}
}

// ToProcessedRecord converts a FeedItem into the record committed to the
// dedup store when the item completes a run.
func (c *RecordConverter) ToProcessedRecord(item FeedItem, firstSeen time.Time) ProcessedRecord {
	return ProcessedRecord{
		Source:     item.Source,
		ExternalID: item.ExternalID,
		Title:      item.Title,
		FirstSeen:  firstSeen,
	}
}

// ToProcessedRecords converts a slice of FeedItems sharing one commit
// timestamp. Output order follows input order.
func (c *RecordConverter) ToProcessedRecords(items []FeedItem, firstSeen time.Time) []ProcessedRecord {
	records := make([]ProcessedRecord, len(items))
	for i, item := range items {
		records[i] = c.ToProcessedRecord(item, firstSeen)
	}
	return records
}

// SortClassified orders classified items for notification: most urgent
// severity first, ties broken by identity so output is deterministic.
func SortClassified(items []ClassifiedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Severity.Rank(), items[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return items[i].Item.Identity() < items[j].Item.Identity()
	})
}

// SortRecords orders processed records newest first, ties by identity.
func SortRecords(records []ProcessedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].FirstSeen.Equal(records[j].FirstSeen) {
			return records[i].FirstSeen.After(records[j].FirstSeen)
		}
		return records[i].Identity() < records[j].Identity()
	})
}
