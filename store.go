package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Store defines the interface for persisting transaction state.
//
// A Store holds at most one transaction: the host is provisioned by a single
// operator at a time, and the state's absence means "nothing in progress".
type Store interface {
	// Save persists the state, keeping a backup of the previous copy.
	Save(ctx context.Context, state TransactionState) error

	// Load retrieves the state. It returns ErrNoTransaction when none exists.
	Load(ctx context.Context) (*TransactionState, error)

	// Delete removes the state and its backup.
	Delete(ctx context.Context) error
}

// MemoryStore provides an in-memory implementation of Store for testing
// or scenarios where persistence is not required. Like FileStore it keeps a
// backup of the previous copy.
type MemoryStore struct {
	mu      sync.RWMutex
	primary []byte
	backup  []byte
	saves   int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save stores the state in memory.
func (m *MemoryStore) Save(ctx context.Context, state TransactionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if json.Valid(m.primary) {
		m.backup = m.primary
	} else {
		m.backup = data
	}
	m.primary = data
	m.saves++
	return nil
}

// Load retrieves the state from memory, falling back to the backup when the
// primary copy cannot be decoded.
func (m *MemoryStore) Load(ctx context.Context) (*TransactionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.primary == nil && m.backup == nil {
		return nil, ErrNoTransaction
	}
	for _, data := range [][]byte{m.primary, m.backup} {
		if data == nil {
			continue
		}
		var state TransactionState
		if err := json.Unmarshal(data, &state); err == nil {
			return &state, nil
		}
	}
	return nil, ErrCorruptState
}

// Delete removes the state from memory.
func (m *MemoryStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.primary = nil
	m.backup = nil
	return nil
}

// Saves returns how many times Save has been called.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Corrupt overwrites the primary copy with raw bytes. It simulates a torn
// write in tests.
func (m *MemoryStore) Corrupt(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primary = data
}
