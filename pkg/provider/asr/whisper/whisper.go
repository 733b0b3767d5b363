// Package whisper implements asr.Provider using the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once in New — a load failure is a startup failure,
// not a runtime one — and shared across inferences. whisper.cpp contexts
// are not thread-safe, so a fresh context is created per Transcribe call;
// the pipeline serialises those calls anyway.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/rexvoice/rex/pkg/provider/asr"
)

const (
	defaultLanguage = "en"
	defaultBeamSize = 1

	// warmupDuration is the length of the silent clip fed through the model
	// by Warmup. Long enough to exercise the full encoder pass.
	warmupDuration = time.Second
)

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Provider transcribes utterances with a locally loaded whisper.cpp model.
type Provider struct {
	model    whisperlib.Model
	language string
	beamSize atomic.Int32
	device   string
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the transcription language code (e.g. "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithBeamSize sets the beam width for decoding. 1 is fastest; larger
// values trade latency for accuracy. Defaults to 1.
func WithBeamSize(n int) Option {
	return func(p *Provider) { p.beamSize.Store(int32(n)) }
}

// WithDevice records the requested inference device ("cpu", "gpu" or
// "auto"). whisper.cpp selects its compute backend at build time, so the
// value is informational; it is logged at startup so a CPU-only build
// running with --device gpu is visible in the logs.
func WithDevice(device string) Option {
	return func(p *Provider) { p.device = device }
}

// New loads the whisper.cpp model at modelPath. The returned Provider owns
// the model; call Close when done. A load failure here should abort process
// startup — no pipeline can run without a model.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
		device:   "auto",
	}
	p.beamSize.Store(defaultBeamSize)
	for _, o := range opts {
		o(p)
	}

	slog.Info("whisper model loaded",
		"path", modelPath,
		"language", p.language,
		"beam_size", p.beamSize.Load(),
		"device", p.device,
	)
	return p, nil
}

// SetBeamSize changes the decoding beam width for subsequent inferences.
// Safe to call while the provider is in use.
func (p *Provider) SetBeamSize(n int) {
	if n >= 1 {
		p.beamSize.Store(int32(n))
	}
}

// Warmup runs one inference over a second of silence to force lazy
// initialisation before the first real utterance.
func (p *Provider) Warmup(ctx context.Context) error {
	silence := make([]int16, int(warmupDuration.Seconds()*float64(whisperlib.SampleRate)))
	start := time.Now()
	if _, err := p.Transcribe(ctx, silence, whisperlib.SampleRate); err != nil {
		return fmt.Errorf("whisper: warmup inference: %w", err)
	}
	slog.Debug("whisper warmup complete", "duration", time.Since(start))
	return nil
}

// Transcribe runs whisper.cpp inference over one utterance and returns the
// concatenated segment text, lower-cased and trimmed.
func (p *Provider) Transcribe(ctx context.Context, samples []int16, sampleRate int) (asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return asr.Result{}, err
	}
	if sampleRate != whisperlib.SampleRate {
		return asr.Result{}, fmt.Errorf("whisper: sample rate %d not supported (need %d)", sampleRate, whisperlib.SampleRate)
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return asr.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "err", err)
	}
	wctx.SetBeamSize(int(p.beamSize.Load()))

	// Process blocks inside CGO and cannot be interrupted; ctx is honoured
	// only between segment reads, so a decode that overruns the inference
	// deadline holds the worker until whisper.cpp returns.
	if err := wctx.Process(toFloat32(samples), nil, nil, nil); err != nil {
		return asr.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return asr.Result{}, err
		}
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return asr.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		parts = append(parts, strings.TrimSpace(segment.Text))
	}

	text := strings.ToLower(strings.TrimSpace(strings.Join(parts, " ")))
	return asr.Result{Text: text}, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// toFloat32 converts 16-bit signed PCM to float32 samples normalised to
// [-1.0, 1.0], the input format whisper.cpp expects.
func toFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v) / 32768.0
	}
	return out
}
