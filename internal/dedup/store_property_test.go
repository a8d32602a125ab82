package dedup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/perimetra/vulnfeed/internal/types"
)

// TestMarkProcessedIdempotenceProperty tests that replaying the same
// identities never grows the set beyond the distinct count
func TestMarkProcessedIdempotenceProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	ctx := context.Background()
	now := time.Now().UTC()

	properties.Property("marking the same records twice equals marking once", prop.ForAll(
		func(ids []string) bool {
			store := NewMemoryStore()

			for _, id := range ids {
				store.MarkProcessed(types.ProcessedRecord{
					Source:     types.SourceCVE,
					ExternalID: id,
					FirstSeen:  now,
				})
			}
			once, _ := store.Count(ctx)

			for _, id := range ids {
				store.MarkProcessed(types.ProcessedRecord{
					Source:     types.SourceCVE,
					ExternalID: id,
					FirstSeen:  now,
				})
			}
			twice, _ := store.Count(ctx)

			distinct := make(map[string]bool)
			for _, id := range ids {
				distinct[id] = true
			}

			return once == twice && once == len(distinct)
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("IsProcessed holds for every marked identity", prop.ForAll(
		func(ids []string) bool {
			store := NewMemoryStore()

			for _, id := range ids {
				store.MarkProcessed(types.ProcessedRecord{
					Source:     types.SourceNews,
					ExternalID: id,
					FirstSeen:  now,
				})
			}

			for _, id := range ids {
				if !store.IsProcessed("NEWS:" + id) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestPruneProperty tests that prune removes exactly the records older than
// the cutoff and nothing else
func TestPruneProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	ctx := context.Background()
	now := time.Now().UTC()
	cutoff := now.Add(-90 * 24 * time.Hour)

	properties.Property("removed plus remaining equals distinct, no old record survives", prop.ForAll(
		func(ids []string, agesDays []int) bool {
			store := NewMemoryStore()

			n := len(ids)
			if len(agesDays) < n {
				n = len(agesDays)
			}

			distinct := make(map[string]bool)
			for i := 0; i < n; i++ {
				store.MarkProcessed(types.ProcessedRecord{
					Source:     types.SourceCVE,
					ExternalID: ids[i],
					FirstSeen:  now.Add(-time.Duration(agesDays[i]) * 24 * time.Hour),
				})
				distinct[ids[i]] = true
			}

			before, _ := store.Count(ctx)
			removed := store.Prune(cutoff)
			after, _ := store.Count(ctx)

			if before != len(distinct) || removed+after != before {
				return false
			}

			records, _ := store.List(ctx, RecordFilter{})
			for _, rec := range records {
				if rec.FirstSeen.Before(cutoff) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.IntRange(0, 365)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestCommitRoundtripProperty tests that a commit+reopen cycle preserves the
// exact identity set
func TestCommitRoundtripProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	properties.Property("reopened store holds exactly the committed set", prop.ForAll(
		func(ids []string) bool {
			path := filepath.Join(t.TempDir(), "processed_items.json")

			store, err := NewJSONFileStore(path, Options{})
			if err != nil {
				t.Logf("Failed to open store: %v", err)
				return false
			}

			for _, id := range ids {
				store.MarkProcessed(types.ProcessedRecord{
					Source:     types.SourceAdvisory,
					ExternalID: id,
					FirstSeen:  now,
				})
			}
			committed, _ := store.Count(ctx)

			if err := store.Commit(ctx); err != nil {
				t.Logf("Commit failed: %v", err)
				return false
			}
			if err := store.Close(); err != nil {
				t.Logf("Close failed: %v", err)
				return false
			}

			reopened, err := NewJSONFileStore(path, Options{})
			if err != nil {
				t.Logf("Failed to reopen store: %v", err)
				return false
			}
			defer reopened.Close()

			reloaded, _ := reopened.Count(ctx)
			if reloaded != committed {
				return false
			}

			for _, id := range ids {
				if !reopened.IsProcessed("ADVISORY:" + id) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
