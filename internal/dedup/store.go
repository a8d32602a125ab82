// Package dedup persists the set of already-processed advisory identities
// across runs. Every backend loads the full set at open, serves reads and
// idempotent writes from memory, and persists atomically at commit.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/types"
)

// StoreQuery is the read-side interface served by the query API
type StoreQuery interface {
	// List returns processed records matching the filter, newest first
	List(ctx context.Context, filter RecordFilter) ([]types.ProcessedRecord, error)

	// Get retrieves a single record, errors.ErrRecordNotFound when absent
	Get(ctx context.Context, source types.Source, externalID string) (*types.ProcessedRecord, error)

	// Count returns the number of processed records
	Count(ctx context.Context) (int, error)
}

// Store is the read-write interface a pipeline run holds
type Store interface {
	StoreQuery

	// IsProcessed reports whether the identity was committed by a prior run
	// or marked earlier in this one
	IsProcessed(id string) bool

	// MarkProcessed adds a record to the in-memory set; marking the same
	// identity twice is a no-op
	MarkProcessed(rec types.ProcessedRecord)

	// Prune drops records first seen before the cutoff, returns how many
	Prune(olderThan time.Time) int

	// Commit atomically persists the full in-memory set
	Commit(ctx context.Context) error

	// Close releases the run lock and any backend resources
	Close() error
}

// Options controls how a backend is opened
type Options struct {
	// ReadOnly skips lock acquisition and rejects Commit; used by serve mode
	ReadOnly bool
}

// RecordFilter defines criteria for listing processed records
type RecordFilter struct {
	Source string
	Since  time.Time
	Limit  int
}

// recordSet is the in-memory table every backend serves from. Backends load
// it at open and persist a snapshot of it at commit.
type recordSet struct {
	mu      sync.RWMutex
	records map[string]types.ProcessedRecord
}

func newRecordSet() *recordSet {
	return &recordSet{records: make(map[string]types.ProcessedRecord)}
}

// IsProcessed reports whether the identity is in the set
func (rs *recordSet) IsProcessed(id string) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	_, ok := rs.records[id]
	return ok
}

// MarkProcessed adds a record; marking an existing identity is a no-op
func (rs *recordSet) MarkProcessed(rec types.ProcessedRecord) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	id := rec.Identity()
	if _, ok := rs.records[id]; ok {
		return
	}
	rs.records[id] = rec
}

// Prune drops records first seen before the cutoff, returns how many
func (rs *recordSet) Prune(olderThan time.Time) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	removed := 0
	for id, rec := range rs.records {
		if rec.FirstSeen.Before(olderThan) {
			delete(rs.records, id)
			removed++
		}
	}
	return removed
}

// List returns records matching the filter, newest first
func (rs *recordSet) List(ctx context.Context, filter RecordFilter) ([]types.ProcessedRecord, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]types.ProcessedRecord, 0, len(rs.records))
	for _, rec := range rs.records {
		if filter.Source != "" && string(rec.Source) != filter.Source {
			continue
		}
		if !filter.Since.IsZero() && rec.FirstSeen.Before(filter.Since) {
			continue
		}
		out = append(out, rec)
	}

	types.SortRecords(out)

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Get retrieves a single record, errors.ErrRecordNotFound when absent
func (rs *recordSet) Get(ctx context.Context, source types.Source, externalID string) (*types.ProcessedRecord, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	rec, ok := rs.records[string(source)+":"+externalID]
	if !ok {
		return nil, errors.ErrRecordNotFound
	}
	return &rec, nil
}

// Count returns the number of records in the set
func (rs *recordSet) Count(ctx context.Context) (int, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.records), nil
}

// snapshot returns a stable sorted copy for persisting
func (rs *recordSet) snapshot() []types.ProcessedRecord {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]types.ProcessedRecord, 0, len(rs.records))
	for _, rec := range rs.records {
		out = append(out, rec)
	}
	types.SortRecords(out)
	return out
}

// replace swaps the full set, used by backend load paths
func (rs *recordSet) replace(records []types.ProcessedRecord) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.records = make(map[string]types.ProcessedRecord, len(records))
	for _, rec := range records {
		rs.records[rec.Identity()] = rec
	}
}
