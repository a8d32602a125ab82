package dedup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/types"
)

func testRecord(source types.Source, id string, firstSeen time.Time) types.ProcessedRecord {
	return types.ProcessedRecord{
		Source:     source,
		ExternalID: id,
		Title:      "record " + id,
		FirstSeen:  firstSeen,
	}
}

func TestJSONFileStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_items.json")
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	store, err := NewJSONFileStore(path, Options{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	t.Run("EmptyOnFirstOpen", func(t *testing.T) {
		count, err := store.Count(ctx)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 0 {
			t.Errorf("Expected empty store, got %d records", count)
		}
		if store.IsProcessed("CVE:CVE-2025-1234") {
			t.Error("Empty store reported an item as processed")
		}
	})

	t.Run("MarkIsIdempotent", func(t *testing.T) {
		rec := testRecord(types.SourceCVE, "CVE-2025-1234", now)
		store.MarkProcessed(rec)
		store.MarkProcessed(rec)
		store.MarkProcessed(testRecord(types.SourceNews, "https://example.com/a", now))

		if !store.IsProcessed("CVE:CVE-2025-1234") {
			t.Error("Marked item not reported as processed")
		}

		count, _ := store.Count(ctx)
		if count != 2 {
			t.Errorf("Expected 2 records after duplicate mark, got %d", count)
		}
	})

	t.Run("CommitAndReopen", func(t *testing.T) {
		if err := store.Commit(ctx); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		reopened, err := NewJSONFileStore(path, Options{})
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		defer reopened.Close()

		if !reopened.IsProcessed("CVE:CVE-2025-1234") {
			t.Error("Committed item lost after reopen")
		}
		if !reopened.IsProcessed("NEWS:https://example.com/a") {
			t.Error("Committed news item lost after reopen")
		}

		rec, err := reopened.Get(ctx, types.SourceCVE, "CVE-2025-1234")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !rec.FirstSeen.Equal(now) {
			t.Errorf("FirstSeen changed across persist: got %v, want %v", rec.FirstSeen, now)
		}
	})

	t.Run("NoTempFilesLeftBehind", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if strings.Contains(e.Name(), ".tmp-") {
				t.Errorf("Temp file left behind: %s", e.Name())
			}
		}
	})
}

func TestJSONFileStoreUncommittedMarksNotPersisted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_items.json")
	ctx := context.Background()
	now := time.Now().UTC()

	store, err := NewJSONFileStore(path, Options{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	store.MarkProcessed(testRecord(types.SourceCVE, "CVE-2025-0001", now))
	if err := store.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Marked after the commit, never persisted
	store.MarkProcessed(testRecord(types.SourceCVE, "CVE-2025-0002", now))
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewJSONFileStore(path, Options{})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	if !reopened.IsProcessed("CVE:CVE-2025-0001") {
		t.Error("Committed item lost")
	}
	if reopened.IsProcessed("CVE:CVE-2025-0002") {
		t.Error("Uncommitted item survived a close without commit")
	}
}

func TestJSONFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_items.json")

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewJSONFileStore(path, Options{})
	if err == nil {
		t.Fatal("Expected error for corrupt store file")
	}
	if !errors.IsPermanent(err) {
		t.Errorf("Expected permanent error, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to decode store file") {
		t.Errorf("Unexpected error message: %v", err)
	}

	// The failed open must not leave its lock behind
	if _, statErr := os.Stat(path + ".lock"); !os.IsNotExist(statErr) {
		t.Error("Lock file left behind after failed open")
	}
}

func TestJSONFileStorePrune(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_items.json")
	ctx := context.Background()
	now := time.Now().UTC()

	store, err := NewJSONFileStore(path, Options{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	store.MarkProcessed(testRecord(types.SourceCVE, "old-1", now.Add(-100*24*time.Hour)))
	store.MarkProcessed(testRecord(types.SourceCVE, "old-2", now.Add(-91*24*time.Hour)))
	store.MarkProcessed(testRecord(types.SourceNews, "fresh", now.Add(-time.Hour)))

	removed := store.Prune(now.Add(-90 * 24 * time.Hour))
	if removed != 2 {
		t.Errorf("Expected 2 pruned records, got %d", removed)
	}

	if store.IsProcessed("CVE:old-1") || store.IsProcessed("CVE:old-2") {
		t.Error("Pruned record still present")
	}
	if !store.IsProcessed("NEWS:fresh") {
		t.Error("Fresh record pruned")
	}

	// Prune is reflected by the next commit
	if err := store.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewJSONFileStore(path, Options{})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	count, _ := reopened.Count(ctx)
	if count != 1 {
		t.Errorf("Expected 1 record after prune+commit, got %d", count)
	}
}

func TestJSONFileStoreLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_items.json")

	t.Run("SecondOpenFails", func(t *testing.T) {
		store, err := NewJSONFileStore(path, Options{})
		if err != nil {
			t.Fatalf("Failed to open store: %v", err)
		}
		defer store.Close()

		_, err = NewJSONFileStore(path, Options{})
		if err == nil {
			t.Fatal("Expected lock contention error")
		}
		if !strings.Contains(err.Error(), "lock held by running process") {
			t.Errorf("Unexpected error message: %v", err)
		}
		if !errors.IsPermanent(err) {
			t.Errorf("Expected permanent error, got %v", err)
		}
	})

	t.Run("ReadOnlyIgnoresLock", func(t *testing.T) {
		store, err := NewJSONFileStore(path, Options{})
		if err != nil {
			t.Fatalf("Failed to open store: %v", err)
		}
		defer store.Close()

		ro, err := NewJSONFileStore(path, Options{ReadOnly: true})
		if err != nil {
			t.Fatalf("Read-only open failed while lock held: %v", err)
		}
		defer ro.Close()

		if err := ro.Commit(context.Background()); err == nil {
			t.Error("Expected commit to fail on read-only store")
		}
	})

	t.Run("DeadHolderTakenOver", func(t *testing.T) {
		// Far beyond the default pid_max, no such process exists
		if err := os.WriteFile(path+".lock", []byte("99999999\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		store, err := NewJSONFileStore(path, Options{})
		if err != nil {
			t.Fatalf("Expected stale lock takeover, got %v", err)
		}
		defer store.Close()
	})

	t.Run("UnreadableLockRefused", func(t *testing.T) {
		if err := os.WriteFile(path+".lock", []byte("garbage"), 0o644); err != nil {
			t.Fatal(err)
		}
		defer os.Remove(path + ".lock")

		_, err := NewJSONFileStore(path, Options{})
		if err == nil {
			t.Fatal("Expected error for unreadable lock file")
		}
		if !strings.Contains(err.Error(), "unreadable") {
			t.Errorf("Unexpected error message: %v", err)
		}
	})
}

func TestJSONFileStoreCommitCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_items.json")

	store, err := NewJSONFileStore(path, Options{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	store.MarkProcessed(testRecord(types.SourceCVE, "CVE-2025-0001", time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Commit(ctx); err == nil {
		t.Fatal("Expected commit to fail with cancelled context")
	}

	// The original file must be untouched
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("Cancelled commit wrote the store file")
	}
}

func TestJSONFileStoreList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_items.json")
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	store, err := NewJSONFileStore(path, Options{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	store.MarkProcessed(testRecord(types.SourceCVE, "CVE-2025-0001", now.Add(-3*time.Hour)))
	store.MarkProcessed(testRecord(types.SourceCVE, "CVE-2025-0002", now.Add(-time.Hour)))
	store.MarkProcessed(testRecord(types.SourceNews, "https://example.com/a", now.Add(-2*time.Hour)))

	t.Run("NewestFirst", func(t *testing.T) {
		records, err := store.List(ctx, RecordFilter{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(records))
		}
		if records[0].ExternalID != "CVE-2025-0002" {
			t.Errorf("Expected newest record first, got %s", records[0].ExternalID)
		}
	})

	t.Run("SourceFilter", func(t *testing.T) {
		records, err := store.List(ctx, RecordFilter{Source: "NEWS"})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 1 || records[0].Source != types.SourceNews {
			t.Errorf("Unexpected source filter result: %v", records)
		}
	})

	t.Run("SinceFilter", func(t *testing.T) {
		records, err := store.List(ctx, RecordFilter{Since: now.Add(-90 * time.Minute)})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 1 || records[0].ExternalID != "CVE-2025-0002" {
			t.Errorf("Unexpected since filter result: %v", records)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		records, err := store.List(ctx, RecordFilter{Limit: 2})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("Expected 2 records with limit, got %d", len(records))
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, types.SourceCVE, "CVE-9999-0000")
		if err == nil {
			t.Fatal("Expected error for missing record")
		}
	})
}
