// ABOUTME: In-memory Store implementation guarded by a RWMutex
// ABOUTME: Used by tests and when the store driver is "memory"

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2389/coven-cloudworker/internal/session"
)

// MemoryStore keeps sessions in a map keyed by local ID.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.TrackedSession
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*session.TrackedSession),
		now:      time.Now,
	}
}

// AddSession stores a copy of s.
func (m *MemoryStore) AddSession(ctx context.Context, s *session.TrackedSession) error {
	if err := validateNew(s); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return ErrDuplicateSession
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// GetSession returns a copy of the session.
func (m *MemoryStore) GetSession(ctx context.Context, id string) (*session.TrackedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// UpdateSession merges p under the write lock.
func (m *MemoryStore) UpdateSession(ctx context.Context, id string, p session.Patch) (*session.TrackedSession, *session.TrackedSession, error) {
	if err := validatePatch(p); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	before := s.Clone()
	s.Apply(p, m.now())
	return before, s.Clone(), nil
}

// ListSessions returns all sessions, newest first.
func (m *MemoryStore) ListSessions(ctx context.Context) ([]*session.TrackedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*session.TrackedSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetPendingSessions returns non-terminal sessions, oldest first.
func (m *MemoryStore) GetPendingSessions(ctx context.Context) ([]*session.TrackedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*session.TrackedSession
	for _, s := range m.sessions {
		if !s.Status.Terminal() {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
