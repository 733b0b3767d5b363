package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rexvoice/rex/internal/session"
	"github.com/rexvoice/rex/internal/stats"
	"github.com/rexvoice/rex/pkg/media"
	mediamock "github.com/rexvoice/rex/pkg/media/mock"
	"github.com/rexvoice/rex/pkg/provider/vad"
	vadmock "github.com/rexvoice/rex/pkg/provider/vad/mock"
)

func testSession(t *testing.T, silence time.Duration) *session.State {
	t.Helper()
	st, err := session.New(
		map[string]media.Backend{"ytmd": mediamock.New("ytmd")},
		"ytmd",
		session.Params{SilenceTimeout: silence, BeamWidth: 5, VolumeStep: 10},
	)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return st
}

// runSegmenter feeds scripted scores through a segmenter and returns the
// emitted utterances. One frame is enqueued per score; the frame channel is
// closed afterwards so Run terminates deterministically.
func runSegmenter(t *testing.T, cfg SegmenterConfig, silence time.Duration, scores []float64) []QueuedUtterance {
	t.Helper()

	sc := stats.NewCollector(0)
	frames := NewFrameChannel(len(scores)+1, sc, nil)
	utterances := NewUtteranceChannel(10, sc, nil)

	engine := &vadmock.Engine{Scores: scores}
	sess, err := engine.NewSession(vad.Config{SampleRate: 16000, FrameSize: 512})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	seg, err := NewSegmenter(cfg, sess, testSession(t, silence), frames, utterances)
	if err != nil {
		t.Fatalf("NewSegmenter: %v", err)
	}

	for i := range scores {
		frames.Enqueue(makeFrame(i))
	}
	frames.Close()

	if err := seg.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	utterances.Close()

	var out []QueuedUtterance
	for u := range utterances.Recv() {
		out = append(out, u)
	}
	return out
}

func defaultSegCfg() SegmenterConfig {
	return SegmenterConfig{
		SpeechThreshold: 0.65,
		OnsetFrames:     2,
		MaxUtterance:    10 * time.Second,
	}
}

func TestSegmenter_BasicUtterance(t *testing.T) {
	t.Parallel()

	// Two leading silence frames, three speech frames, four trailing
	// silence frames. Silence timeout of three frame periods closes the
	// utterance on the third silent frame.
	scores := []float64{0.1, 0.2, 0.9, 0.9, 0.9, 0.1, 0.1, 0.1, 0.1}
	got := runSegmenter(t, defaultSegCfg(), 3*framePeriod, scores)

	if len(got) != 1 {
		t.Fatalf("utterances = %d, want 1", len(got))
	}
	utt := got[0].Utterance

	// Opened at frame 2; three speech frames plus three silent frames
	// buffered, one trimmed beyond the two-frame trailing padding.
	if want := 2 * framePeriod; utt.Start != want {
		t.Errorf("start = %v, want %v", utt.Start, want)
	}
	if want := 5; len(utt.Frames) != want {
		t.Errorf("frames = %d, want %d", len(utt.Frames), want)
	}
	if err := utt.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestSegmenter_OnsetDebounce(t *testing.T) {
	t.Parallel()

	// Isolated single-frame spikes never reach the two-frame onset run.
	scores := []float64{0.9, 0.1, 0.9, 0.1, 0.9, 0.1}
	got := runSegmenter(t, defaultSegCfg(), 3*framePeriod, scores)

	if len(got) != 0 {
		t.Fatalf("utterances = %d, want 0 (spikes debounced)", len(got))
	}
}

func TestSegmenter_MaxUtteranceCap(t *testing.T) {
	t.Parallel()

	// Continuous speech with no pause: the cap forces a flush.
	scores := make([]float64, 20)
	for i := range scores {
		scores[i] = 0.9
	}
	cfg := defaultSegCfg()
	cfg.MaxUtterance = 10 * framePeriod

	got := runSegmenter(t, cfg, 3*framePeriod, scores)

	if len(got) < 1 {
		t.Fatal("expected at least one utterance from max-duration flush")
	}
	if d := got[0].Utterance.Duration(); d < cfg.MaxUtterance {
		t.Errorf("first utterance duration = %v, want >= %v", d, cfg.MaxUtterance)
	}
}

func TestSegmenter_FlushesPartialOnInputClose(t *testing.T) {
	t.Parallel()

	// Speech still in progress when the stream ends.
	scores := []float64{0.9, 0.9, 0.9, 0.9}
	got := runSegmenter(t, defaultSegCfg(), 3*framePeriod, scores)

	if len(got) != 1 {
		t.Fatalf("utterances = %d, want 1 (partial flushed at shutdown)", len(got))
	}
	if want := 4; len(got[0].Utterance.Frames) != want {
		t.Errorf("frames = %d, want %d", len(got[0].Utterance.Frames), want)
	}
}

func TestSegmenter_MultipleUtterances(t *testing.T) {
	t.Parallel()

	scores := []float64{
		0.9, 0.9, 0.1, 0.1, 0.1, // first utterance + silence
		0.9, 0.9, 0.1, 0.1, 0.1, // second utterance + silence
	}
	got := runSegmenter(t, defaultSegCfg(), 3*framePeriod, scores)

	if len(got) != 2 {
		t.Fatalf("utterances = %d, want 2", len(got))
	}
	if got[0].Utterance.Start != 0 {
		t.Errorf("first start = %v, want 0", got[0].Utterance.Start)
	}
	if want := 5 * framePeriod; got[1].Utterance.Start != want {
		t.Errorf("second start = %v, want %v", got[1].Utterance.Start, want)
	}
}

func TestSegmenter_SilenceTimeoutReadLive(t *testing.T) {
	t.Parallel()

	// With a one-frame silence timeout the utterance closes on the first
	// silent frame; trailing padding keeps it.
	scores := []float64{0.9, 0.9, 0.1, 0.1, 0.1}
	got := runSegmenter(t, defaultSegCfg(), framePeriod, scores)

	if len(got) != 1 {
		t.Fatalf("utterances = %d, want 1", len(got))
	}
	if want := 3; len(got[0].Utterance.Frames) != want {
		t.Errorf("frames = %d, want %d (2 speech + 1 padded silence)", len(got[0].Utterance.Frames), want)
	}
}

func TestSegmenter_InvalidConfig(t *testing.T) {
	t.Parallel()

	sc := stats.NewCollector(0)
	frames := NewFrameChannel(1, sc, nil)
	utterances := NewUtteranceChannel(1, sc, nil)
	sess, _ := (&vadmock.Engine{}).NewSession(vad.Config{SampleRate: 16000, FrameSize: 512})
	st := testSession(t, 400*time.Millisecond)

	bad := []SegmenterConfig{
		{SpeechThreshold: 0, OnsetFrames: 2, MaxUtterance: time.Second},
		{SpeechThreshold: 1.5, OnsetFrames: 2, MaxUtterance: time.Second},
		{SpeechThreshold: 0.65, OnsetFrames: 0, MaxUtterance: time.Second},
		{SpeechThreshold: 0.65, OnsetFrames: 2, MaxUtterance: 0},
	}
	for i, cfg := range bad {
		if _, err := NewSegmenter(cfg, sess, st, frames, utterances); err == nil {
			t.Errorf("config %d: expected error", i)
		}
	}
}
