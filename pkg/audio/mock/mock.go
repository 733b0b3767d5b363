// Package mock provides an in-memory [audio.Source] for unit tests. It
// replays a scripted slice of frames and then closes the stream, mimicking
// a capture device reaching end of input.
package mock

import (
	"context"
	"sync"

	"github.com/rexvoice/rex/pkg/audio"
)

// Source replays scripted frames. Safe for concurrent use.
type Source struct {
	// FramesScript is replayed in order by Stream.
	FramesScript []audio.Frame

	// StreamErr, when non-nil, is returned by Stream immediately.
	StreamErr error

	// HoldOpen keeps the stream open after the script is exhausted until
	// ctx is cancelled or Close is called. Use this in tests that must
	// control shutdown ordering.
	HoldOpen bool

	mu        sync.Mutex
	streams   int
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// New returns a Source replaying the given frames.
func New(frames ...audio.Frame) *Source {
	return &Source{FramesScript: frames, done: make(chan struct{})}
}

// Stream replays the script on a fresh channel.
func (s *Source) Stream(ctx context.Context) (<-chan audio.Frame, error) {
	if s.StreamErr != nil {
		return nil, s.StreamErr
	}
	s.mu.Lock()
	s.streams++
	if s.done == nil {
		s.done = make(chan struct{})
	}
	done := s.done
	s.mu.Unlock()

	out := make(chan audio.Frame)
	go func() {
		defer close(out)
		for _, f := range s.FramesScript {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		if s.HoldOpen {
			select {
			case <-ctx.Done():
			case <-done:
			}
		}
	}()
	return out, nil
}

// Close ends any open stream.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.done == nil {
			s.done = make(chan struct{})
		}
		close(s.done)
		s.mu.Unlock()
	})
	return nil
}

// Streams reports how many times Stream was called.
func (s *Source) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
