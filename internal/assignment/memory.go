package assignment

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store implementation, suitable for tests and
// for running the engine without any durable mirror.
type MemoryStore struct {
	mu          sync.Mutex
	assignments []Assignment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of all appended assignments.
func (m *MemoryStore) Load(ctx context.Context) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Assignment, len(m.assignments))
	copy(out, m.assignments)
	return out, nil
}

// Append adds one assignment.
func (m *MemoryStore) Append(ctx context.Context, a Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, a)
	return nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error { return nil }
