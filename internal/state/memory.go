package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erentorlak/todv2/pkg/models"
)

// Memory is an in-process SessionStore. Sessions are cloned on the way in
// and out so callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*models.Session)}
}

// CreateSession inserts a new session.
func (m *Memory) CreateSession(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("create session: %s already exists", s.ID)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// GetSession returns a copy of the session, or nil when absent.
func (m *Memory) GetSession(id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// SaveSession inserts or replaces a session.
func (m *Memory) SaveSession(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

// DeleteSession removes a session.
func (m *Memory) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// ListSessions lists all sessions, most recently updated first.
func (m *Memory) ListSessions() ([]SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, SessionInfo{
			ID:        s.ID,
			Intent:    s.CurrentIntent,
			Ended:     s.Ended,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PurgeOldSessions deletes sessions not updated within olderThan.
func (m *Memory) PurgeOldSessions(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
