package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"rag-chatbot-backend/internal/logger"

	"github.com/google/uuid"
)

const maxIDLength = 128

var ErrInvalidSessionID = errors.New("invalid session id")

// Manager hands out one *Session per id so every request of a conversation
// shares the same lock. Histories are written through to the store.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store  Store
	window int
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(store Store, window int, ttl time.Duration) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		window:   window,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the session for id, creating it (and a fresh id when id is
// empty) if needed. A session unknown to this process is read back from the
// store.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if len(id) > maxIDLength {
		return nil, ErrInvalidSessionID
	}
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.touch(m.now())
		return s, nil
	}

	s := New(id, m.window)
	turns, err := m.store.Load(ctx, id)
	if err != nil {
		// start fresh rather than refuse the conversation
		logger.Warn("Failed to load session history", "session_id", id, "error", err)
	}
	if len(turns) > 0 {
		s.Restore(turns)
	}
	s.touch(m.now())
	m.sessions[id] = s
	return s, nil
}

// Save writes the session's history to the store.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	return m.store.Save(ctx, s.ID, s.History())
}

// EvictIdle drops sessions unused for longer than the idle TTL from memory.
// Their history stays in the store until it expires there.
func (m *Manager) EvictIdle() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Len is the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
