package orchestrator

import (
	"sync"

	"github.com/bantzhq/bantz/internal/memory"
)

// Session is the per-conversation state. It is owned by one turn loop;
// turns within a session are serial, sessions are independent.
type Session struct {
	ID     string
	Memory *memory.Tracer

	mu   sync.Mutex
	turn int
}

// NewSession creates a session with the given memory budgets.
func NewSession(id string, config memory.Config) *Session {
	return &Session{ID: id, Memory: memory.NewTracer(config)}
}

// nextTurn increments and returns the turn counter.
func (s *Session) nextTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turn++
	return s.turn
}

// Turn returns the number of completed turns.
func (s *Session) Turn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}
