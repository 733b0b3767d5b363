// Package energy implements a pure-Go VAD engine based on RMS signal
// energy with exponential smoothing. It needs no model file, which makes
// it the default engine for environments where a neural detector is not
// available; accuracy is adequate for close-mic command audio.
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rexvoice/rex/pkg/provider/vad"
)

// referenceRMS is the RMS level (against int16 full scale) mapped to
// probability 1.0. Close-mic speech typically peaks well above this.
const referenceRMS = 6000.0

// defaultSmoothing is the weight of the newest observation in the
// exponentially smoothed score.
const defaultSmoothing = 0.3

// Engine creates energy-based VAD sessions.
type Engine struct {
	smoothing float64
}

var _ vad.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithSmoothing sets the exponential smoothing factor in (0, 1]. Higher
// values react faster to level changes; 1 disables smoothing entirely.
func WithSmoothing(alpha float64) Option {
	return func(e *Engine) { e.smoothing = alpha }
}

// New returns an energy VAD engine.
func New(opts ...Option) *Engine {
	e := &Engine{smoothing: defaultSmoothing}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession creates a scoring session for one audio stream.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("energy: frame size %d is invalid", cfg.FrameSize)
	}
	if e.smoothing <= 0 || e.smoothing > 1 {
		return nil, fmt.Errorf("energy: smoothing %.2f out of range (0, 1]", e.smoothing)
	}
	return &session{
		frameSize: cfg.FrameSize,
		smoothing: e.smoothing,
	}, nil
}

// session scores frames for a single stream. Not safe for concurrent use;
// the segmenter owns it.
type session struct {
	mu        sync.Mutex
	frameSize int
	smoothing float64
	last      float64
	started   bool
	closed    bool
}

// Score returns a smoothed speech probability derived from frame RMS.
func (s *session) Score(samples []int16) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("energy: session is closed")
	}
	if len(samples) != s.frameSize {
		return 0, fmt.Errorf("energy: expected %d samples, got %d", s.frameSize, len(samples))
	}

	p := math.Min(rms(samples)/referenceRMS, 1.0)
	if s.started {
		p = s.smoothing*p + (1-s.smoothing)*s.last
	}
	s.last = p
	s.started = true
	return p, nil
}

// Reset clears the smoothing history.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = 0
	s.started = false
}

// Close marks the session closed. Safe to call more than once.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// rms computes the root mean square amplitude of the samples.
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
