package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/parley/internal/session"
)

var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// Sessions are lost when the process exits; it is meant for practice runs
// and tests.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]session.Session
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[uuid.UUID]session.Session)}
}

// Persist implements [Store.Persist].
func (m *MemStore) Persist(ctx context.Context, s session.Session) error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("%w: session has no id", ErrStorage)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Get implements [Store.Get].
func (m *MemStore) Get(ctx context.Context, id uuid.UUID) (session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return session.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Clone(), nil
}

// List implements [Store.List].
func (m *MemStore) List(ctx context.Context) ([]session.Session, error) {
	m.mu.RLock()
	out := make([]session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()
	sortRecentFirst(out)
	return out, nil
}

// Delete implements [Store.Delete].
func (m *MemStore) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.sessions, id)
	}
	return nil
}

// Export implements [Store.Export].
func (m *MemStore) Export(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return exportFrom(ctx, m.Get, id)
}

// Close implements [Store.Close]. It is a no-op.
func (m *MemStore) Close() error { return nil }
