package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rexvoice/rex/internal/command"
	"github.com/rexvoice/rex/internal/observe"
	"github.com/rexvoice/rex/internal/session"
	"github.com/rexvoice/rex/internal/stats"
	"github.com/rexvoice/rex/pkg/provider/asr"
)

// defaultInferenceDeadline bounds a single transcription so one pathological
// utterance cannot wedge the worker forever.
const defaultInferenceDeadline = 15 * time.Second

// beamTuner is implemented by ASR providers whose decoding beam width can
// be changed while running. The worker applies the session's beam width
// before each inference when the provider supports it.
type beamTuner interface {
	SetBeamSize(int)
}

// Transcriber is the single consumer of the utterance queue. It serialises
// inference — whisper contexts are not safe for concurrent use, and
// interleaved decodes would thrash the CPU anyway — and hands recognised
// text to the command router.
type Transcriber struct {
	provider asr.Provider
	router   *command.Router
	state    *session.State
	in       *UtteranceChannel
	stats    *stats.Collector
	metrics  *observe.Metrics
	deadline time.Duration

	lastBeam int
}

// TranscriberOption is a functional option for configuring a Transcriber.
type TranscriberOption func(*Transcriber)

// WithInferenceDeadline bounds a single transcription. Defaults to 15 s.
func WithInferenceDeadline(d time.Duration) TranscriberOption {
	return func(t *Transcriber) {
		if d > 0 {
			t.deadline = d
		}
	}
}

// WithTranscriberMetrics attaches OTel instruments. When nil, only the
// stats collector is fed.
func WithTranscriberMetrics(m *observe.Metrics) TranscriberOption {
	return func(t *Transcriber) { t.metrics = m }
}

// NewTranscriber creates a Transcriber consuming from in and dispatching
// recognised text through router.
func NewTranscriber(p asr.Provider, r *command.Router, st *session.State, in *UtteranceChannel, sc *stats.Collector, opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{
		provider: p,
		router:   r,
		state:    st,
		in:       in,
		stats:    sc,
		deadline: defaultInferenceDeadline,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Run warms up the model, then consumes utterances until ctx is cancelled
// or the utterance channel closes. Per-utterance failures are logged and
// counted but never stop the worker; only warmup failure is fatal, because
// a model that cannot run inference at all has no recovery path.
func (t *Transcriber) Run(ctx context.Context) error {
	start := time.Now()
	if err := t.provider.Warmup(ctx); err != nil {
		return fmt.Errorf("pipeline: asr warmup: %w", err)
	}
	slog.Info("asr warmup complete", "duration", time.Since(start))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-t.in.Recv():
			if !ok {
				return nil
			}
			t.in.take()
			t.handle(ctx, item)
		}
	}
}

// handle transcribes one utterance and dispatches the result.
func (t *Transcriber) handle(ctx context.Context, item QueuedUtterance) {
	queueWait := time.Since(item.EnqueuedAt)
	t.stats.RecordQueueWait(queueWait)
	if t.metrics != nil {
		t.metrics.QueueWaitDuration.Record(ctx, queueWait.Seconds())
	}

	t.applyBeamWidth()

	infCtx, cancel := context.WithTimeout(ctx, t.deadline)
	infStart := time.Now()
	utt := item.Utterance
	result, err := t.provider.Transcribe(infCtx, utt.Samples(), utt.Frames[0].SampleRate)
	cancel()
	inference := time.Since(infStart)

	t.stats.RecordInference(inference)
	if t.metrics != nil {
		t.metrics.InferenceDuration.Record(ctx, inference.Seconds())
	}

	if err != nil {
		t.stats.TranscriptionFailed()
		if t.metrics != nil {
			t.metrics.TranscriptionErrors.Add(ctx, 1)
		}
		level := slog.LevelWarn
		if errors.Is(err, context.DeadlineExceeded) {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "transcription failed",
			"utterance_duration", utt.Duration(),
			"inference", inference,
			"error", err,
		)
		return
	}

	if result.Text == "" {
		slog.Debug("empty transcription, skipping dispatch",
			"utterance_duration", utt.Duration())
		return
	}

	outcome := t.router.Dispatch(ctx, result.Text)

	e2e := time.Since(item.SpeechEnd)
	t.stats.RecordEndToEnd(e2e)
	if t.metrics != nil {
		t.metrics.EndToEndDuration.Record(ctx, e2e.Seconds())
	}
	t.stats.RecordActivity(stats.Activity{
		Time:    time.Now(),
		Text:    result.Text,
		Matched: outcome.Matched,
		Pattern: outcome.Pattern,
		E2E:     stats.Millis(e2e),
	})

	slog.Debug("utterance processed",
		"text", result.Text,
		"matched", outcome.Matched,
		"queue_wait", queueWait,
		"inference", inference,
		"e2e", e2e,
	)
}

// applyBeamWidth pushes the session's beam width to the provider when it
// changed since the last inference.
func (t *Transcriber) applyBeamWidth() {
	tuner, ok := t.provider.(beamTuner)
	if !ok {
		return
	}
	beam := t.state.Params().BeamWidth
	if beam >= 1 && beam != t.lastBeam {
		tuner.SetBeamSize(beam)
		t.lastBeam = beam
		slog.Debug("beam width updated", "beam", beam)
	}
}
