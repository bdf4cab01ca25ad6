package consent

import (
	"context"
	"sync"
)

// MemoryStore keeps one visitor's state and language in process memory.
// Hosts without a durable channel use it as the degraded fallback; tests use
// it everywhere.
type MemoryStore struct {
	mu       sync.RWMutex
	state    *State
	language string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) LoadState(_ context.Context, websiteID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil || m.state.WebsiteID != websiteID || m.state.SchemaVersion != SchemaVersion {
		return nil, nil
	}
	return m.state.Clone(), nil
}

func (m *MemoryStore) SaveState(_ context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state.Clone()
	return nil
}

func (m *MemoryStore) ClearState(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

func (m *MemoryStore) LoadLanguage(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.language, nil
}

func (m *MemoryStore) SaveLanguage(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.language = code
	return nil
}
