package history

import (
	"context"
	"sync"
)

// MemoryStore keeps records for the life of the process.
type MemoryStore struct {
	mu        sync.RWMutex
	seen      map[string]bool
	byRivalry map[string][]MatchRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen:      make(map[string]bool),
		byRivalry: make(map[string][]MatchRecord),
	}
}

func (m *MemoryStore) Save(_ context.Context, rec MatchRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen[rec.ID] {
		return nil
	}
	m.seen[rec.ID] = true
	key := RivalryKey(rec.Winner, rec.Loser)
	m.byRivalry[key] = append(m.byRivalry[key], rec)
	return nil
}

func (m *MemoryStore) Rivalry(_ context.Context, a, b string) (RivalryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return buildRivalry(a, b, m.byRivalry[RivalryKey(a, b)]), nil
}

func (m *MemoryStore) Close() error { return nil }
