// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-stream session. Each session maintains its own internal
// state (smoothing history, hysteresis counters) so that independent audio
// streams can be scored without interference.
//
// VAD is synchronous by design: Score returns immediately with a speech
// probability, making it suitable for the per-frame hot path that gates
// the segmenter. From the segmenter's perspective each call is stateless —
// a frame in, a score out.
//
// Implementations must be safe for concurrent use across different
// sessions. A single Session must not be shared across goroutines unless
// the implementation documents otherwise.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of
	// the PCM frames passed to Score. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSize is the number of samples per frame. Most detectors operate
	// on fixed frame sizes; Score returns an error when the supplied frame
	// does not match.
	FrameSize int
}

// Session is an active VAD scoring session for a single audio stream. Reset
// clears accumulated state without closing the session; use it when the
// stream is interrupted so stale history does not bleed into the next
// segment.
type Session interface {
	// Score returns the speech probability (0.0–1.0) for one frame of
	// 16-bit signed mono PCM. It must not block; it is called once per
	// capture tick on the segmenter goroutine.
	Score(samples []int16) (float64, error)

	// Reset clears all accumulated detection state.
	Reset()

	// Close releases session resources. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions, implemented by each backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a session ready to accept frames. Returns an
	// error if cfg is invalid or resources cannot be allocated.
	NewSession(cfg Config) (Session, error)
}
