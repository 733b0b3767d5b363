package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rexvoice/rex/internal/session"
	"github.com/rexvoice/rex/pkg/audio"
	"github.com/rexvoice/rex/pkg/provider/vad"
)

// trailingPaddingFrames is how many non-speech frames are kept at the tail
// of a flushed utterance. A little silence after the last word helps the
// decoder close the final token cleanly.
const trailingPaddingFrames = 2

// SegmenterConfig tunes the utterance boundary detection.
type SegmenterConfig struct {
	// SpeechThreshold is the VAD score at or above which a frame counts as
	// speech.
	SpeechThreshold float64

	// OnsetFrames is the number of consecutive speech frames required to
	// open an utterance. Debounces clicks and short noise bursts.
	OnsetFrames int

	// MaxUtterance force-closes an utterance after this much buffered
	// audio, even if the speaker has not paused.
	MaxUtterance time.Duration
}

// Segmenter groups scored frames into utterances. It is a two-state
// machine: idle until OnsetFrames consecutive frames score at or above the
// threshold, then speaking until the accumulated trailing silence reaches
// the session's silence timeout (or the utterance hits MaxUtterance).
//
// The silence timeout is read from the session state on every flush
// decision, so live tuning takes effect mid-stream.
type Segmenter struct {
	cfg   SegmenterConfig
	vad   vad.Session
	state *session.State
	in    *FrameChannel
	out   *UtteranceChannel

	// state machine
	speaking    bool
	onsetRun    []audio.Frame
	current     []audio.Frame
	silentTail  int
	silentFor   time.Duration
	speechStart time.Time
}

// NewSegmenter creates a Segmenter reading frames from in and emitting
// utterances to out. The vad session scores each frame before it is
// buffered.
func NewSegmenter(cfg SegmenterConfig, vs vad.Session, st *session.State, in *FrameChannel, out *UtteranceChannel) (*Segmenter, error) {
	if cfg.SpeechThreshold <= 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("pipeline: speech threshold %.2f out of range (0, 1]", cfg.SpeechThreshold)
	}
	if cfg.OnsetFrames < 1 {
		return nil, fmt.Errorf("pipeline: onset frames %d must be at least 1", cfg.OnsetFrames)
	}
	if cfg.MaxUtterance <= 0 {
		return nil, fmt.Errorf("pipeline: max utterance %v must be positive", cfg.MaxUtterance)
	}
	return &Segmenter{
		cfg:   cfg,
		vad:   vs,
		state: st,
		in:    in,
		out:   out,
	}, nil
}

// Run consumes frames until ctx is cancelled or the frame channel closes.
// A partial utterance in progress at shutdown is flushed so the last
// command spoken before quitting is not lost.
func (s *Segmenter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush("shutdown")
			return ctx.Err()
		case frame, ok := <-s.in.Recv():
			if !ok {
				s.flush("input closed")
				return nil
			}
			s.in.take()
			if err := s.process(frame); err != nil {
				return err
			}
		}
	}
}

// process scores one frame and advances the state machine.
func (s *Segmenter) process(frame audio.Frame) error {
	score, err := s.vad.Score(frame.Samples)
	if err != nil {
		return fmt.Errorf("pipeline: vad score: %w", err)
	}
	frame.Speech = score
	isSpeech := score >= s.cfg.SpeechThreshold

	if !s.speaking {
		s.idleFrame(frame, isSpeech)
		return nil
	}
	s.speakingFrame(frame, isSpeech)
	return nil
}

// idleFrame handles a frame while no utterance is open. Speech frames
// accumulate in the onset run; the run is promoted to an open utterance
// once it reaches OnsetFrames.
func (s *Segmenter) idleFrame(frame audio.Frame, isSpeech bool) {
	if !isSpeech {
		s.onsetRun = s.onsetRun[:0]
		return
	}

	s.onsetRun = append(s.onsetRun, frame)
	if len(s.onsetRun) < s.cfg.OnsetFrames {
		return
	}

	// Onset confirmed: the debounced run becomes the utterance head.
	s.speaking = true
	s.speechStart = time.Now()
	s.current = append(s.current[:0], s.onsetRun...)
	s.onsetRun = s.onsetRun[:0]
	s.silentTail = 0
	s.silentFor = 0
	slog.Debug("utterance opened", "start", frame.Timestamp)
}

// speakingFrame handles a frame while an utterance is open.
func (s *Segmenter) speakingFrame(frame audio.Frame, isSpeech bool) {
	s.current = append(s.current, frame)

	if isSpeech {
		s.silentTail = 0
		s.silentFor = 0
	} else {
		s.silentTail++
		s.silentFor += frame.Duration()
	}

	if s.silentFor >= s.state.Params().SilenceTimeout {
		s.flush("silence")
		return
	}
	if s.utteranceDuration() >= s.cfg.MaxUtterance {
		s.flush("max duration")
	}
}

// utteranceDuration is the span of the currently buffered frames.
func (s *Segmenter) utteranceDuration() time.Duration {
	if len(s.current) == 0 {
		return 0
	}
	first := s.current[0]
	last := s.current[len(s.current)-1]
	return last.Timestamp + last.Duration() - first.Timestamp
}

// flush trims the trailing silence (keeping a short padding) and emits the
// buffered utterance. A no-op when no utterance is open.
func (s *Segmenter) flush(reason string) {
	if !s.speaking {
		return
	}
	s.speaking = false

	frames := s.current
	if trim := s.silentTail - trailingPaddingFrames; trim > 0 {
		frames = frames[:len(frames)-trim]
	}
	// Hand ownership of the backing array to the utterance.
	owned := make([]audio.Frame, len(frames))
	copy(owned, frames)
	s.current = nil
	s.silentTail = 0
	s.silentFor = 0

	utt := audio.NewUtterance(owned)
	if err := utt.Validate(); err != nil {
		slog.Warn("segmenter produced invalid utterance, discarding", "reason", reason, "err", err)
		return
	}

	dropped := s.out.Enqueue(QueuedUtterance{
		Utterance:  utt,
		SpeechEnd:  time.Now(),
		EnqueuedAt: time.Now(),
	})
	if dropped > 0 {
		slog.Warn("utterance queue overflow, evicted oldest", "evicted", dropped)
	}
	slog.Debug("utterance flushed",
		"reason", reason,
		"duration", utt.Duration(),
		"frames", len(utt.Frames),
		"speech_started", s.speechStart,
	)
}
