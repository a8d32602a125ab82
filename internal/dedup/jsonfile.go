package dedup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/types"
)

const jsonFileVersion = 1

// jsonFile is the on-disk layout of the jsonfile backend
type jsonFile struct {
	Version        int                   `json:"version"`
	UpdatedAt      time.Time             `json:"updated_at"`
	ProcessedItems map[string]jsonRecord `json:"processed_items"`
}

type jsonRecord struct {
	Source     string    `json:"source"`
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
}

// JSONFileStore persists processed identities in a single JSON file that is
// rewritten atomically at commit
type JSONFileStore struct {
	*recordSet
	path     string
	lockPath string
	readOnly bool
}

// NewJSONFileStore opens (or initializes) the JSON file at path. Unless
// opened read-only it acquires the run lock next to the file.
func NewJSONFileStore(path string, opts Options) (*JSONFileStore, error) {
	store := &JSONFileStore{
		recordSet: newRecordSet(),
		path:      path,
		lockPath:  path + ".lock",
		readOnly:  opts.ReadOnly,
	}

	if !opts.ReadOnly {
		if err := acquireLock(store.lockPath); err != nil {
			return nil, err
		}
	}

	if err := store.load(); err != nil {
		if !opts.ReadOnly {
			_ = releaseLock(store.lockPath)
		}
		return nil, err
	}

	return store, nil
}

func (s *JSONFileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// First run, start empty
			return nil
		}
		return errors.NewPermanentf("failed to read store file: %v: %w", err, errors.ErrStoreCorrupt)
	}

	var file jsonFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.NewPermanentf("failed to decode store file: %v: %w", err, errors.ErrStoreCorrupt)
	}

	records := make([]types.ProcessedRecord, 0, len(file.ProcessedItems))
	for _, jr := range file.ProcessedItems {
		source, ok := types.ParseSource(jr.Source)
		if !ok {
			return errors.NewPermanentf("unknown source %q in store file: %w", jr.Source, errors.ErrStoreCorrupt)
		}
		records = append(records, types.ProcessedRecord{
			Source:     source,
			ExternalID: jr.ExternalID,
			Title:      jr.Title,
			FirstSeen:  jr.FirstSeen,
		})
	}

	s.replace(records)
	return nil
}

// Commit writes the full set to a temp file in the same directory, then
// renames it over the original. A reader never observes a partial file and
// a crash mid-commit leaves the previous file intact.
func (s *JSONFileStore) Commit(ctx context.Context) error {
	if s.readOnly {
		return errors.NewPermanentf("store opened read-only")
	}
	if err := ctx.Err(); err != nil {
		return errors.NewTransientf("commit cancelled: %w", err)
	}

	snapshot := s.snapshot()
	file := jsonFile{
		Version:        jsonFileVersion,
		UpdatedAt:      time.Now().UTC(),
		ProcessedItems: make(map[string]jsonRecord, len(snapshot)),
	}
	for _, rec := range snapshot {
		file.ProcessedItems[rec.Identity()] = jsonRecord{
			Source:     string(rec.Source),
			ExternalID: rec.ExternalID,
			Title:      rec.Title,
			FirstSeen:  rec.FirstSeen,
		}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.NewPermanentf("failed to encode store file: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.NewTransientf("failed to create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return errors.NewTransientf("failed to write temp store file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return errors.NewTransientf("failed to sync temp store file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewTransientf("failed to close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.NewTransientf("failed to replace store file: %w", err)
	}

	return nil
}

// Close releases the run lock
func (s *JSONFileStore) Close() error {
	if s.readOnly {
		return nil
	}
	return releaseLock(s.lockPath)
}
