// Package config provides the configuration schema, loader, and provider
// registry for the voice command pipeline.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding [slog.Level]. Unrecognised values map
// to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Device selects where whisper inference runs.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceGPU  Device = "gpu"
)

// IsValid reports whether d is a recognised device.
func (d Device) IsValid() bool {
	switch d {
	case DeviceAuto, DeviceCPU, DeviceGPU:
		return true
	}
	return false
}

// Duration wraps [time.Duration] so YAML configs can use values like "400ms".
type Duration time.Duration

// UnmarshalYAML decodes a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Audio     AudioConfig     `yaml:"audio"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Backends  BackendsConfig  `yaml:"backends"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Log       LogConfig       `yaml:"log"`
}

// ModelConfig selects and tunes the speech-to-text model.
type ModelConfig struct {
	// Provider selects the registered speech-to-text implementation
	// (default "whisper").
	Provider string `yaml:"provider"`

	// Path is the whisper model file (e.g. "models/ggml-base.en.bin").
	// Relative paths are resolved against the REX_MODEL_DIR environment
	// variable when set.
	Path string `yaml:"path"`

	// Language is the transcription language hint (default "en").
	Language string `yaml:"language"`

	// Device selects where inference runs: auto, cpu, or gpu.
	Device Device `yaml:"device"`

	// BeamSize is the decoder beam width (default 5).
	BeamSize int `yaml:"beam_size"`
}

// AudioConfig describes the capture format and the VAD provider.
type AudioConfig struct {
	// SampleRate in Hz. The whisper models expect 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per capture frame (default 512,
	// i.e. 32 ms at 16 kHz).
	FrameSize int `yaml:"frame_size"`

	// VAD selects the registered voice-activity detector.
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by pluggable
// providers. The Name field is used to look up the constructor in the
// [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "energy", "whisper").
	Name string `yaml:"name"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// PipelineConfig tunes the segmenter and the bounded channels between stages.
type PipelineConfig struct {
	// FrameQueueSize bounds the capture → segmenter channel (default 50).
	FrameQueueSize int `yaml:"frame_queue_size"`

	// UtteranceQueueSize bounds the segmenter → transcriber channel
	// (default 10).
	UtteranceQueueSize int `yaml:"utterance_queue_size"`

	// SpeechThreshold is the VAD score at or above which a frame counts as
	// speech (default 0.65).
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// OnsetFrames is the number of consecutive speech frames required to
	// open an utterance (default 2).
	OnsetFrames int `yaml:"onset_frames"`

	// SilenceTimeout is the continuous non-speech duration that closes an
	// utterance (default 400ms).
	SilenceTimeout Duration `yaml:"silence_timeout"`

	// LowLatency shortens SilenceTimeout to 250ms for snappier command
	// turnaround at the cost of splitting slow speech.
	LowLatency bool `yaml:"low_latency"`

	// MaxUtterance force-closes an utterance after this much speech
	// (default 10s).
	MaxUtterance Duration `yaml:"max_utterance"`

	// InferenceDeadline bounds a single transcription (default 15s).
	InferenceDeadline Duration `yaml:"inference_deadline"`

	// DispatchTimeout bounds a single command handler execution
	// (default 2s).
	DispatchTimeout Duration `yaml:"dispatch_timeout"`

	// VolumeStep is the percentage applied by "volume up" / "volume down"
	// (default 10).
	VolumeStep int `yaml:"volume_step"`
}

// BackendsConfig declares the available media backends and which one starts
// active.
type BackendsConfig struct {
	// Active names the backend selected at startup: "ytmd" or "spotify".
	Active string `yaml:"active"`

	YTMD    YTMDConfig    `yaml:"ytmd"`
	Spotify SpotifyConfig `yaml:"spotify"`
}

// YTMDConfig holds the YouTube Music Desktop companion server connection.
type YTMDConfig struct {
	// Host of the companion server (default "localhost").
	Host string `yaml:"host"`

	// Port of the companion server (default 9863).
	Port int `yaml:"port"`

	// Token authorises requests. Usually injected via the YTMD_TOKEN
	// environment variable rather than stored in the file.
	Token string `yaml:"token"`
}

// BaseURL returns the companion server base URL.
func (y YTMDConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", y.Host, y.Port)
}

// SpotifyConfig holds Spotify Web API credentials. Usually injected via the
// SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET environment variables.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// DashboardConfig controls the embedded web dashboard.
type DashboardConfig struct {
	// Enabled starts the dashboard HTTP server when true.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the TCP address the dashboard listens on
	// (default ":8765").
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	// Level controls verbosity (default "info").
	Level LogLevel `yaml:"level"`

	// File, when set, writes logs to a rotating file instead of stderr.
	File string `yaml:"file"`

	// MaxSizeMB is the rotation threshold for File (default 10).
	MaxSizeMB int `yaml:"max_size_mb"`
}
