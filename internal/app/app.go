// Package app wires all subsystems into a running voice command pipeline.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the pipeline and the dashboard, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithASRProvider, etc.). When an option is not provided, New
// creates real implementations from the config registry.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rexvoice/rex/internal/command"
	"github.com/rexvoice/rex/internal/config"
	"github.com/rexvoice/rex/internal/dashboard"
	"github.com/rexvoice/rex/internal/health"
	"github.com/rexvoice/rex/internal/observe"
	"github.com/rexvoice/rex/internal/pipeline"
	"github.com/rexvoice/rex/internal/session"
	"github.com/rexvoice/rex/internal/stats"
	"github.com/rexvoice/rex/pkg/audio"
	"github.com/rexvoice/rex/pkg/media"
	"github.com/rexvoice/rex/pkg/provider/asr"
	"github.com/rexvoice/rex/pkg/provider/vad"
)

// App owns all subsystem lifetimes and orchestrates the voice pipeline.
type App struct {
	cfg      *config.Config
	registry *config.Registry

	// Pluggable components — injected via options or created from the
	// registry in New.
	source      audio.Source
	asrProvider asr.Provider
	vadEngine   vad.Engine
	backends    map[string]media.Backend
	metrics     *observe.Metrics
	logLevel    *slog.LevelVar

	// Subsystems — initialised in New, torn down in Shutdown.
	state     *session.State
	stats     *stats.Collector
	router    *command.Router
	pipeline  *pipeline.Pipeline
	dashboard *dashboard.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects an audio source instead of the default capture stream.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithASRProvider injects a speech-to-text provider instead of creating one
// from the registry.
func WithASRProvider(p asr.Provider) Option {
	return func(a *App) { a.asrProvider = p }
}

// WithVADEngine injects a voice-activity detector instead of creating one
// from the registry.
func WithVADEngine(e vad.Engine) Option {
	return func(a *App) { a.vadEngine = e }
}

// WithBackends injects the media backend map instead of creating backends
// from the registry.
func WithBackends(b map[string]media.Backend) Option {
	return func(a *App) { a.backends = b }
}

// WithMetrics attaches OTel instruments to the pipeline and the dashboard.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the App the level var backing the process logger so
// config reloads can adjust verbosity live.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The registry holds
// the provider constructors registered by main. Use Option functions to
// inject test doubles for any component.
func New(cfg *config.Config, registry *config.Registry, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	a := &App{
		cfg:      cfg,
		registry: registry,
	}
	for _, o := range opts {
		o(a)
	}
	if a.source == nil {
		return nil, fmt.Errorf("app: no audio source configured")
	}

	if err := a.initBackends(); err != nil {
		return nil, fmt.Errorf("app: init backends: %w", err)
	}
	if err := a.initSession(); err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.initDashboard()

	return a, nil
}

// initBackends creates every registered media backend unless a map was
// injected. Creating all of them up front is what makes "switch to spotify"
// instant at runtime.
func (a *App) initBackends() error {
	if a.backends != nil {
		return nil
	}
	a.backends = make(map[string]media.Backend)
	for _, name := range a.registry.BackendNames() {
		b, err := a.registry.CreateBackend(name, a.cfg)
		if err != nil {
			// Only the active backend is required at startup; the others
			// just become unavailable switch targets.
			if name == a.cfg.Backends.Active {
				return fmt.Errorf("create backend %q: %w", name, err)
			}
			slog.Warn("media backend unavailable", "backend", name, "error", err)
			continue
		}
		a.backends[name] = b
		slog.Info("media backend ready", "backend", name)
	}
	return nil
}

func (a *App) initSession() error {
	st, err := session.New(a.backends, a.cfg.Backends.Active, sessionParams(a.cfg))
	if err != nil {
		return err
	}
	a.state = st
	return nil
}

// initProviders creates the VAD engine and ASR provider from the registry
// unless injected.
func (a *App) initProviders() error {
	if a.vadEngine == nil {
		engine, err := a.registry.CreateVAD(a.cfg.Audio.VAD)
		if err != nil {
			return err
		}
		a.vadEngine = engine
	}

	if a.asrProvider == nil {
		p, err := a.registry.CreateASR(a.cfg.Model.Provider, a.cfg)
		if err != nil {
			return err
		}
		a.asrProvider = p
		a.closers = append(a.closers, p.Close)
	}
	return nil
}

// initPipeline assembles the capture → segment → transcribe → dispatch chain.
func (a *App) initPipeline() error {
	a.stats = stats.NewCollector(0)

	routerOpts := []command.Option{
		command.WithDispatchTimeout(a.cfg.Pipeline.DispatchTimeout.Std()),
	}
	if a.metrics != nil {
		routerOpts = append(routerOpts, command.WithMetrics(a.metrics))
	}
	a.router = command.New(a.state, a.stats, routerOpts...)

	vadSession, err := a.vadEngine.NewSession(vad.Config{
		SampleRate: a.cfg.Audio.SampleRate,
		FrameSize:  a.cfg.Audio.FrameSize,
	})
	if err != nil {
		return fmt.Errorf("create vad session: %w", err)
	}
	a.closers = append(a.closers, vadSession.Close)

	frames := pipeline.NewFrameChannel(a.cfg.Pipeline.FrameQueueSize, a.stats, a.metrics)
	utterances := pipeline.NewUtteranceChannel(a.cfg.Pipeline.UtteranceQueueSize, a.stats, a.metrics)

	seg, err := pipeline.NewSegmenter(pipeline.SegmenterConfig{
		SpeechThreshold: a.cfg.Pipeline.SpeechThreshold,
		OnsetFrames:     a.cfg.Pipeline.OnsetFrames,
		MaxUtterance:    a.cfg.Pipeline.MaxUtterance.Std(),
	}, vadSession, a.state, frames, utterances)
	if err != nil {
		return fmt.Errorf("create segmenter: %w", err)
	}

	worker := pipeline.NewTranscriber(a.asrProvider, a.router, a.state, utterances, a.stats,
		pipeline.WithInferenceDeadline(a.cfg.Pipeline.InferenceDeadline.Std()),
		pipeline.WithTranscriberMetrics(a.metrics),
	)

	a.pipeline = pipeline.New(a.source, frames, utterances, seg, worker)
	a.closers = append(a.closers, a.source.Close)
	return nil
}

func (a *App) initDashboard() {
	if !a.cfg.Dashboard.Enabled {
		return
	}
	a.dashboard = dashboard.New(a.cfg.Dashboard, a.stats, a.state, a.metrics,
		health.BackendChecker(a.state))
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the pipeline (and the dashboard when enabled) and blocks until
// ctx is cancelled or the pipeline fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.pipeline.Run(ctx) })
	if a.dashboard != nil {
		g.Go(func() error { return a.dashboard.Run(ctx) })
	}

	slog.Info("pipeline running",
		"backend", a.state.ActiveName(),
		"backends", a.state.Names(),
		"dashboard", a.cfg.Dashboard.Enabled,
	)
	return g.Wait()
}

// State exposes the session state, primarily for health checks and tests.
func (a *App) State() *session.State { return a.state }

// Stats exposes the collector, primarily for tests.
func (a *App) Stats() *stats.Collector { return a.stats }

// ─── Config reload ───────────────────────────────────────────────────────────

// HandleConfigChange applies a hot config reload. Wire it as the callback of
// a [config.Watcher]. Live-appliable changes — log level, pipeline tuning,
// active backend — take effect immediately; everything else logs a warning
// that a restart is required.
func (a *App) HandleConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level updated", "level", d.NewLogLevel)
	}

	if d.TuningChanged {
		p := a.state.Params()
		p.SilenceTimeout = d.NewTuning.SilenceTimeout.Std()
		p.VolumeStep = d.NewTuning.VolumeStep
		a.state.SetParams(p)
		slog.Info("pipeline tuning updated",
			"silence_timeout", p.SilenceTimeout,
			"volume_step", p.VolumeStep,
		)
	}

	if d.ActiveBackendChanged {
		if err := a.state.Switch(d.NewActiveBackend); err != nil {
			slog.Warn("cannot switch backend from config", "error", err)
		} else {
			slog.Info("active backend updated", "backend", d.NewActiveBackend)
		}
	}

	if d.RestartRequired {
		slog.Warn("config change requires restart to take effect")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// sessionParams derives the live tuning parameters from the static config.
func sessionParams(cfg *config.Config) session.Params {
	return session.Params{
		SilenceTimeout: cfg.Pipeline.SilenceTimeout.Std(),
		BeamWidth:      cfg.Model.BeamSize,
		VolumeStep:     cfg.Pipeline.VolumeStep,
	}
}
