package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Segmenter timing defaults. The low-latency timeout trades robustness
// against slow speech for faster command turnaround.
const (
	DefaultSilenceTimeout    = 400 * time.Millisecond
	LowLatencySilenceTimeout = 250 * time.Millisecond
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults and environment overrides applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "whisper"
	}
	if cfg.Model.Language == "" {
		cfg.Model.Language = "en"
	}
	if cfg.Model.Device == "" {
		cfg.Model.Device = DeviceAuto
	}
	if cfg.Model.BeamSize == 0 {
		cfg.Model.BeamSize = 5
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = 512
	}
	if cfg.Audio.VAD.Name == "" {
		cfg.Audio.VAD.Name = "energy"
	}

	if cfg.Pipeline.FrameQueueSize == 0 {
		cfg.Pipeline.FrameQueueSize = 50
	}
	if cfg.Pipeline.UtteranceQueueSize == 0 {
		cfg.Pipeline.UtteranceQueueSize = 10
	}
	if cfg.Pipeline.SpeechThreshold == 0 {
		cfg.Pipeline.SpeechThreshold = 0.65
	}
	if cfg.Pipeline.OnsetFrames == 0 {
		cfg.Pipeline.OnsetFrames = 2
	}
	if cfg.Pipeline.SilenceTimeout == 0 {
		if cfg.Pipeline.LowLatency {
			cfg.Pipeline.SilenceTimeout = Duration(LowLatencySilenceTimeout)
		} else {
			cfg.Pipeline.SilenceTimeout = Duration(DefaultSilenceTimeout)
		}
	}
	if cfg.Pipeline.MaxUtterance == 0 {
		cfg.Pipeline.MaxUtterance = Duration(10 * time.Second)
	}
	if cfg.Pipeline.InferenceDeadline == 0 {
		cfg.Pipeline.InferenceDeadline = Duration(15 * time.Second)
	}
	if cfg.Pipeline.DispatchTimeout == 0 {
		cfg.Pipeline.DispatchTimeout = Duration(2 * time.Second)
	}
	if cfg.Pipeline.VolumeStep == 0 {
		cfg.Pipeline.VolumeStep = 10
	}

	if cfg.Backends.Active == "" {
		cfg.Backends.Active = "ytmd"
	}
	if cfg.Backends.YTMD.Host == "" {
		cfg.Backends.YTMD.Host = "localhost"
	}
	if cfg.Backends.YTMD.Port == 0 {
		cfg.Backends.YTMD.Port = 9863
	}

	if cfg.Dashboard.ListenAddr == "" {
		cfg.Dashboard.ListenAddr = ":8765"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = LogInfo
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
}

// ApplyEnv overlays secrets and machine-local paths from the environment.
// Environment values win over file values so credentials can stay out of
// version-controlled configs.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("YTMD_TOKEN"); v != "" {
		cfg.Backends.YTMD.Token = v
	}
	if v := os.Getenv("YTMD_HOST"); v != "" {
		cfg.Backends.YTMD.Host = v
	}
	if v := os.Getenv("YTMD_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Backends.YTMD.Port = p
		}
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		cfg.Backends.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		cfg.Backends.Spotify.ClientSecret = v
	}
	if dir := os.Getenv("REX_MODEL_DIR"); dir != "" && cfg.Model.Path != "" && !filepath.IsAbs(cfg.Model.Path) {
		cfg.Model.Path = filepath.Join(dir, cfg.Model.Path)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	if !cfg.Model.Device.IsValid() {
		errs = append(errs, fmt.Errorf("model.device %q is invalid; valid values: auto, cpu, gpu", cfg.Model.Device))
	}
	if cfg.Model.BeamSize < 1 {
		errs = append(errs, fmt.Errorf("model.beam_size %d must be at least 1", cfg.Model.BeamSize))
	}

	if cfg.Audio.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported; whisper models expect 16000", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize < 1 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	if cfg.Pipeline.SpeechThreshold < 0 || cfg.Pipeline.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.speech_threshold %.2f is out of range [0, 1]", cfg.Pipeline.SpeechThreshold))
	}
	if cfg.Pipeline.FrameQueueSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.frame_queue_size %d must be positive", cfg.Pipeline.FrameQueueSize))
	}
	if cfg.Pipeline.UtteranceQueueSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.utterance_queue_size %d must be positive", cfg.Pipeline.UtteranceQueueSize))
	}
	if cfg.Pipeline.OnsetFrames < 1 {
		errs = append(errs, fmt.Errorf("pipeline.onset_frames %d must be at least 1", cfg.Pipeline.OnsetFrames))
	}
	if cfg.Pipeline.SilenceTimeout.Std() <= 0 {
		errs = append(errs, errors.New("pipeline.silence_timeout must be positive"))
	}
	if cfg.Pipeline.MaxUtterance.Std() <= cfg.Pipeline.SilenceTimeout.Std() {
		errs = append(errs, errors.New("pipeline.max_utterance must exceed pipeline.silence_timeout"))
	}
	if cfg.Pipeline.VolumeStep < 1 || cfg.Pipeline.VolumeStep > 100 {
		errs = append(errs, fmt.Errorf("pipeline.volume_step %d is out of range [1, 100]", cfg.Pipeline.VolumeStep))
	}

	switch cfg.Backends.Active {
	case "ytmd", "spotify":
	default:
		errs = append(errs, fmt.Errorf("backends.active %q is invalid; valid values: ytmd, spotify", cfg.Backends.Active))
	}
	if cfg.Backends.YTMD.Port < 1 || cfg.Backends.YTMD.Port > 65535 {
		errs = append(errs, fmt.Errorf("backends.ytmd.port %d is out of range [1, 65535]", cfg.Backends.YTMD.Port))
	}

	if !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.MaxSizeMB < 1 {
		errs = append(errs, fmt.Errorf("log.max_size_mb %d must be positive", cfg.Log.MaxSizeMB))
	}

	return errors.Join(errs...)
}
