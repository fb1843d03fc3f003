// Package transcript accumulates the ordered conversational turns of one
// voice session.
package transcript

import (
	"sync"
	"time"
)

// Turn is one conversational turn.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Sink is an append-only, insertion-ordered log of turns.
// One goroutine appends; any number may read snapshots.
type Sink struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// New creates an empty Sink.
func New() *Sink {
	return &Sink{now: time.Now}
}

// Append adds one turn at the end.
func (s *Sink) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Content: content, At: s.now()})
}

// Snapshot returns a copy of all turns in insertion order.
func (s *Sink) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Reset clears the sink. Only called when a new session starts.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
