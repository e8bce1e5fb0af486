package session

import (
	"context"
	"sync"
)

// MemoryStore keeps state in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	state State
}

// NewMemoryStore returns an empty, signed-out store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the current state.
func (m *MemoryStore) Load(context.Context) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneState(m.state), nil
}

// Save stores creds and, when non-nil, user.
func (m *MemoryStore) Save(_ context.Context, creds Credentials, user *User) error {
	if err := validateCredentials(creds); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := creds
	m.state.Credentials = &c
	if user != nil {
		m.state.User = cloneUser(user)
	}
	return nil
}

// Clear drops credentials and user together.
func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.state = State{}
	m.mu.Unlock()
	return nil
}
