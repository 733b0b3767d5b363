// Command rex is a push-to-talk-free voice remote for music players. It
// reads raw PCM from stdin, segments speech, transcribes it locally with
// whisper.cpp, and dispatches recognised commands to YouTube Music Desktop
// or Spotify.
//
// Typical invocation:
//
//	arecord -f S16_LE -r 16000 -c 1 -t raw | rex --config config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rexvoice/rex/internal/app"
	"github.com/rexvoice/rex/internal/config"
	"github.com/rexvoice/rex/internal/observe"
	"github.com/rexvoice/rex/pkg/audio/pcm"
	"github.com/rexvoice/rex/pkg/media"
	"github.com/rexvoice/rex/pkg/media/spotify"
	"github.com/rexvoice/rex/pkg/media/ytmd"
	"github.com/rexvoice/rex/pkg/provider/asr"
	"github.com/rexvoice/rex/pkg/provider/asr/whisper"
	"github.com/rexvoice/rex/pkg/provider/vad"
	"github.com/rexvoice/rex/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	modelPath := flag.String("model", "", "whisper model file (overrides model.path)")
	device := flag.String("device", "", "inference device: auto, cpu, or gpu (overrides model.device)")
	beam := flag.Int("beam", 0, "decoder beam width (overrides model.beam_size)")
	debug := flag.Bool("debug", false, "enable debug logging")
	logFile := flag.String("log-file", "", "write logs to a rotating file (overrides log.file)")
	logMaxSize := flag.Int("log-max-size", 0, "log rotation threshold in MB (overrides log.max_size_mb)")
	dashboardOn := flag.Bool("dashboard", false, "enable the web dashboard")
	dashboardPort := flag.Int("dashboard-port", 0, "dashboard port (overrides dashboard.listen_addr)")
	lowLatency := flag.Bool("low-latency", false, "use the 250ms silence timeout for faster dispatch")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "rex: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "rex: %v\n", err)
		}
		return 1
	}
	applyFlagOverrides(cfg, flagOverrides{
		modelPath:     *modelPath,
		device:        *device,
		beam:          *beam,
		debug:         *debug,
		logFile:       *logFile,
		logMaxSize:    *logMaxSize,
		dashboardOn:   *dashboardOn,
		dashboardPort: *dashboardPort,
		lowLatency:    *lowLatency,
	})
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "rex: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := &slog.LevelVar{}
	levelVar.Set(cfg.Log.Level.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(logSink(cfg), &slog.HandlerOptions{Level: levelVar})))

	slog.Info("rex starting",
		"config", *configPath,
		"model", cfg.Model.Path,
		"backend", cfg.Backends.Active,
		"low_latency", cfg.Pipeline.LowLatency,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "rex",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()

	// ── Capture source ────────────────────────────────────────────────────────
	source, err := pcm.New(os.Stdin, cfg.Audio.SampleRate, cfg.Audio.FrameSize)
	if err != nil {
		slog.Error("failed to create capture source", "error", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, builtinRegistry(),
		app.WithSource(source),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithLogLevel(levelVar),
	)
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		return 1
	}

	checkBackendCredentials(ctx, application)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.HandleConfigChange)
	if err != nil {
		slog.Warn("config watcher disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("listening — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "error", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Flag overrides ────────────────────────────────────────────────────────────

type flagOverrides struct {
	modelPath     string
	device        string
	beam          int
	debug         bool
	logFile       string
	logMaxSize    int
	dashboardOn   bool
	dashboardPort int
	lowLatency    bool
}

// applyFlagOverrides lets command-line flags win over the config file.
func applyFlagOverrides(cfg *config.Config, f flagOverrides) {
	if f.modelPath != "" {
		cfg.Model.Path = f.modelPath
	}
	if f.device != "" {
		cfg.Model.Device = config.Device(f.device)
	}
	if f.beam > 0 {
		cfg.Model.BeamSize = f.beam
	}
	if f.debug {
		cfg.Log.Level = config.LogDebug
	}
	if f.logFile != "" {
		cfg.Log.File = f.logFile
	}
	if f.logMaxSize > 0 {
		cfg.Log.MaxSizeMB = f.logMaxSize
	}
	if f.dashboardOn {
		cfg.Dashboard.Enabled = true
	}
	if f.dashboardPort > 0 {
		cfg.Dashboard.ListenAddr = fmt.Sprintf(":%d", f.dashboardPort)
	}
	if f.lowLatency {
		cfg.Pipeline.LowLatency = true
		cfg.Pipeline.SilenceTimeout = config.Duration(config.LowLatencySilenceTimeout)
	}
}

// ── Logger sink ───────────────────────────────────────────────────────────────

// logSink returns stderr or a rotating file writer per the log config.
func logSink(cfg *config.Config) io.Writer {
	if cfg.Log.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: 3,
		Compress:   true,
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinRegistry wires the provider factories that ship with rex.
func builtinRegistry() *config.Registry {
	reg := config.NewRegistry()

	reg.RegisterASR("whisper", func(cfg *config.Config) (asr.Provider, error) {
		return whisper.New(cfg.Model.Path,
			whisper.WithLanguage(cfg.Model.Language),
			whisper.WithBeamSize(cfg.Model.BeamSize),
			whisper.WithDevice(string(cfg.Model.Device)),
		)
	})

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if alpha := optFloat(entry.Options, "smoothing"); alpha > 0 {
			opts = append(opts, energy.WithSmoothing(alpha))
		}
		return energy.New(opts...), nil
	})

	reg.RegisterBackend("ytmd", func(cfg *config.Config) (media.Backend, error) {
		return ytmd.New(cfg.Backends.YTMD.BaseURL(), cfg.Backends.YTMD.Token), nil
	})

	reg.RegisterBackend("spotify", func(cfg *config.Config) (media.Backend, error) {
		sp := cfg.Backends.Spotify
		if sp.ClientID == "" || sp.ClientSecret == "" {
			return nil, errors.New("spotify backend requires SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET")
		}
		return spotify.NewFromCredentials(sp.ClientID, sp.ClientSecret), nil
	})

	return reg
}

// checkBackendCredentials pings the active backend once at startup. Failures
// are logged but not fatal: the player may simply not be running yet.
func checkBackendCredentials(ctx context.Context, a *app.App) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	st := a.State()
	if err := st.Backend().Ping(pingCtx); err != nil {
		slog.Warn("active backend is not reachable — commands will fail until it is",
			"backend", st.ActiveName(),
			"error", err,
		)
	} else {
		slog.Info("active backend reachable", "backend", st.ActiveName())
	}
}

// optFloat extracts a float value from a provider Options map. Returns 0 if
// the key is absent or not numeric.
func optFloat(opts map[string]any, key string) float64 {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
