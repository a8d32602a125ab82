package dedup

import "context"

// MemoryStore keeps the processed set in memory only, for tests and
// ephemeral runs
type MemoryStore struct {
	*recordSet
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recordSet: newRecordSet()}
}

// Commit is a no-op; nothing outlives the process
func (s *MemoryStore) Commit(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
