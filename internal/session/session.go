// Package session keeps per-conversation history for the answer pipeline.
package session

import (
	"sync"
	"time"

	"rag-chatbot-backend/models"
)

// DefaultWindow is the number of turns a session keeps.
const DefaultWindow = 20

// Session is one conversation. Lock/Unlock serialize answers so turns of two
// requests never interleave; the history accessors are safe on their own.
type Session struct {
	ID string

	call sync.Mutex

	mu       sync.Mutex
	turns    []models.Turn
	window   int
	lastUsed time.Time
}

// New returns an empty session keeping the last window turns. A window of
// zero or less keeps everything.
func New(id string, window int) *Session {
	return &Session{ID: id, window: window, lastUsed: time.Now()}
}

func (s *Session) Lock()   { s.call.Lock() }
func (s *Session) Unlock() { s.call.Unlock() }

// History returns a copy of the turns, oldest first.
func (s *Session) History() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Turn(nil), s.turns...)
}

// Append adds a turn and drops the oldest ones beyond the window.
func (s *Session) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.turns = append(s.turns, models.Turn{Role: role, Content: content, At: now})
	s.trim()
	s.lastUsed = now
}

// Restore replaces the history, used when a session is read back from a store.
func (s *Session) Restore(turns []models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append([]models.Turn(nil), turns...)
	s.trim()
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.lastUsed = t
	s.mu.Unlock()
}

func (s *Session) trim() {
	if s.window > 0 && len(s.turns) > s.window {
		s.turns = append([]models.Turn(nil), s.turns[len(s.turns)-s.window:]...)
	}
}
