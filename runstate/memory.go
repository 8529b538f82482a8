package runstate

import (
	"context"
	"sync"

	"newsbot/types"
)

// MemoryStore keeps encoded states in a map. Saved values are copied, so
// later changes by the caller are not visible until the next Save.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string][]byte
	saves  int
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

// Load implements Store
func (m *MemoryStore) Load(ctx context.Context, runDate string) (*types.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.states[runDate]
	if !ok {
		return nil, ErrNotFound
	}
	return decode(runDate, data)
}

// Save implements Store
func (m *MemoryStore) Save(ctx context.Context, state *types.RunState) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.RunDate] = data
	m.saves++
	return nil
}

// List implements Store
func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.states))
	for k := range m.states {
		keys = append(keys, k)
	}
	return sortedDates(keys, func(k string) (string, bool) { return k, true }), nil
}

// Saves counts successful Save calls
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
