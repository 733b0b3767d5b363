// Package mock provides a scripted VAD engine for tests.
package mock

import (
	"sync"

	"github.com/rexvoice/rex/pkg/provider/vad"
)

// Engine returns sessions that replay a fixed sequence of scores.
type Engine struct {
	// Scores is the sequence returned by successive Score calls. When the
	// sequence is exhausted the session returns 0.
	Scores []float64

	// Err, when non-nil, is returned by every Score call.
	Err error
}

var _ vad.Engine = (*Engine)(nil)

// NewSession returns a session replaying e.Scores from the beginning.
func (e *Engine) NewSession(vad.Config) (vad.Session, error) {
	return &Session{scores: e.Scores, err: e.Err}, nil
}

// Session replays scripted scores. Safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	scores []float64
	err    error
	next   int
	resets int
	closed bool
}

var _ vad.Session = (*Session)(nil)

// Score returns the next scripted score, or 0 once the script runs out.
func (s *Session) Score([]int16) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if s.next >= len(s.scores) {
		return 0, nil
	}
	v := s.scores[s.next]
	s.next++
	return v, nil
}

// Reset records the reset and rewinds the script.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.next = 0
}

// Resets reports how many times Reset was called.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
