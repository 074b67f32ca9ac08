package storage

import (
	"context"
	"encoding/json"
	"sync"

	"risk_calculator/internal/trading/portfolio"
)

// MemoryStore implements Store in memory
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot []byte
	journal  []JournalEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadSnapshot(ctx context.Context) (*portfolio.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, nil
	}
	var snap portfolio.Snapshot
	if err := json.Unmarshal(s.snapshot, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Commit stores an encoded copy so later portfolio mutations do not leak in
func (s *MemoryStore) Commit(ctx context.Context, snapshot portfolio.Snapshot, entries ...JournalEntry) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = data
	s.journal = append(s.journal, entries...)
	return nil
}

func (s *MemoryStore) Journal(ctx context.Context, limit int) ([]JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.journal) > limit {
		start = len(s.journal) - limit
	}
	out := make([]JournalEntry, len(s.journal)-start)
	copy(out, s.journal[start:])
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
