package flowstate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the fallback used when Redis is not configured. Safe
// for concurrent use; expired entries are dropped on read.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Put(ctx context.Context, s State) error {
	if s.SessionID == "" {
		return fmt.Errorf("flowstate: missing session_id")
	}
	if !time.Now().Before(s.ExpiresAt) {
		return fmt.Errorf("flowstate: expires_at must be in the future")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.SessionID] = s

	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[sessionID]
	if !ok {
		return nil, nil
	}

	if !time.Now().Before(s.ExpiresAt) {
		delete(m.states, sessionID)
		return nil, nil
	}

	return &s, nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
	return nil
}
