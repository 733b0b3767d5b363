package energy

import (
	"testing"

	"github.com/rexvoice/rex/pkg/provider/vad"
)

func testConfig() vad.Config {
	return vad.Config{SampleRate: 16000, FrameSize: 512}
}

// frame returns 512 samples of constant amplitude, whose RMS equals the
// amplitude itself.
func frame(amplitude int16) []int16 {
	out := make([]int16, 512)
	for i := range out {
		out[i] = amplitude
	}
	return out
}

func TestSession_SilenceScoresLow(t *testing.T) {
	t.Parallel()
	sess, err := New().NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	score, err := sess.Score(frame(0))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 0 {
		t.Errorf("silence score = %v, want 0", score)
	}
}

func TestSession_LoudSpeechScoresHigh(t *testing.T) {
	t.Parallel()
	// Smoothing 1 disables history so the raw mapping is visible.
	sess, err := New(WithSmoothing(1)).NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// Amplitude at the reference level maps to probability 1.
	score, err := sess.Score(frame(6000))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 1 {
		t.Errorf("reference-level score = %v, want 1", score)
	}

	// Louder input stays clamped at 1.
	score, _ = sess.Score(frame(20000))
	if score != 1 {
		t.Errorf("clamped score = %v, want 1", score)
	}
}

func TestSession_SmoothingDampsTransitions(t *testing.T) {
	t.Parallel()
	sess, err := New(WithSmoothing(0.3)).NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// First frame seeds the history unsmoothed.
	first, _ := sess.Score(frame(6000))
	if first != 1 {
		t.Fatalf("first score = %v, want 1", first)
	}

	// An abrupt drop to silence is damped: 0.3*0 + 0.7*1 = 0.7.
	second, _ := sess.Score(frame(0))
	if second != 0.7 {
		t.Errorf("second score = %v, want 0.7", second)
	}
}

func TestSession_ResetClearsHistory(t *testing.T) {
	t.Parallel()
	sess, err := New(WithSmoothing(0.3)).NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sess.Score(frame(6000))
	sess.Reset()

	// After reset the next frame seeds fresh, unsmoothed.
	score, _ := sess.Score(frame(0))
	if score != 0 {
		t.Errorf("post-reset score = %v, want 0", score)
	}
}

func TestSession_FrameSizeMismatch(t *testing.T) {
	t.Parallel()
	sess, err := New().NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := sess.Score(make([]int16, 256)); err == nil {
		t.Error("Score: expected error for wrong frame size")
	}
}

func TestSession_ScoreAfterClose(t *testing.T) {
	t.Parallel()
	sess, err := New().NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := sess.Score(frame(0)); err == nil {
		t.Error("Score: expected error after Close")
	}
	// Close is idempotent.
	if err := sess.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewSession_InvalidConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		eng  *Engine
		cfg  vad.Config
	}{
		{"zero sample rate", New(), vad.Config{SampleRate: 0, FrameSize: 512}},
		{"zero frame size", New(), vad.Config{SampleRate: 16000, FrameSize: 0}},
		{"smoothing too high", New(WithSmoothing(1.5)), testConfig()},
		{"smoothing negative", New(WithSmoothing(-0.1)), testConfig()},
	}
	for _, tc := range cases {
		if _, err := tc.eng.NewSession(tc.cfg); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
