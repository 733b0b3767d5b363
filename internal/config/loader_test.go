package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
model:
  path: models/ggml-base.en.bin
  language: en
  device: cpu
  beam_size: 5
audio:
  sample_rate: 16000
  frame_size: 512
  vad:
    name: energy
pipeline:
  speech_threshold: 0.65
  silence_timeout: 400ms
  max_utterance: 10s
backends:
  active: ytmd
  ytmd:
    host: localhost
    port: 9863
    token: secret
dashboard:
  enabled: true
  listen_addr: ":8765"
log:
  level: info
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Model.Path != "models/ggml-base.en.bin" {
		t.Errorf("model path = %q", cfg.Model.Path)
	}
	if got := cfg.Pipeline.SilenceTimeout.Std(); got != 400*time.Millisecond {
		t.Errorf("silence timeout = %v, want 400ms", got)
	}
	if cfg.Backends.YTMD.BaseURL() != "http://localhost:9863" {
		t.Errorf("ytmd base url = %q", cfg.Backends.YTMD.BaseURL())
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := validYAML + "\nnot_a_field: true\n"
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("model:\n  path: m.bin\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Pipeline.FrameQueueSize != 50 {
		t.Errorf("frame queue size = %d, want 50", cfg.Pipeline.FrameQueueSize)
	}
	if cfg.Pipeline.UtteranceQueueSize != 10 {
		t.Errorf("utterance queue size = %d, want 10", cfg.Pipeline.UtteranceQueueSize)
	}
	if cfg.Pipeline.SpeechThreshold != 0.65 {
		t.Errorf("speech threshold = %v, want 0.65", cfg.Pipeline.SpeechThreshold)
	}
	if got := cfg.Pipeline.SilenceTimeout.Std(); got != DefaultSilenceTimeout {
		t.Errorf("silence timeout = %v, want %v", got, DefaultSilenceTimeout)
	}
	if cfg.Pipeline.VolumeStep != 10 {
		t.Errorf("volume step = %d, want 10", cfg.Pipeline.VolumeStep)
	}
	if cfg.Backends.Active != "ytmd" {
		t.Errorf("active backend = %q, want ytmd", cfg.Backends.Active)
	}
	if cfg.Audio.VAD.Name != "energy" {
		t.Errorf("vad provider = %q, want energy", cfg.Audio.VAD.Name)
	}
	if cfg.Log.Level != LogInfo {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadFromReader_LowLatencyDefault(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("model:\n  path: m.bin\npipeline:\n  low_latency: true\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.Pipeline.SilenceTimeout.Std(); got != LowLatencySilenceTimeout {
		t.Errorf("silence timeout = %v, want %v", got, LowLatencySilenceTimeout)
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Model.Path = ""
	cfg.Model.Device = "tpu"
	cfg.Pipeline.SpeechThreshold = 1.5
	cfg.Backends.Active = "winamp"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"model.path", "model.device", "speech_threshold", "backends.active"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidate_SampleRate(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Model.Path = "m.bin"
	cfg.Audio.SampleRate = 44100

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unsupported sample rate")
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("YTMD_TOKEN", "env-token")
	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")
	t.Setenv("REX_MODEL_DIR", "/opt/models")

	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Model.Path = "ggml-base.en.bin"
	cfg.Backends.YTMD.Token = "file-token"
	ApplyEnv(cfg)

	if cfg.Backends.YTMD.Token != "env-token" {
		t.Errorf("ytmd token = %q, want env-token", cfg.Backends.YTMD.Token)
	}
	if cfg.Backends.Spotify.ClientID != "env-id" || cfg.Backends.Spotify.ClientSecret != "env-secret" {
		t.Errorf("spotify credentials not overridden: %+v", cfg.Backends.Spotify)
	}
	if cfg.Model.Path != "/opt/models/ggml-base.en.bin" {
		t.Errorf("model path = %q, want /opt/models/ggml-base.en.bin", cfg.Model.Path)
	}
}

func TestApplyEnv_AbsoluteModelPathUntouched(t *testing.T) {
	t.Setenv("REX_MODEL_DIR", "/opt/models")

	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Model.Path = "/home/me/custom.bin"
	ApplyEnv(cfg)

	if cfg.Model.Path != "/home/me/custom.bin" {
		t.Errorf("model path = %q, want /home/me/custom.bin", cfg.Model.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/rex.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "open") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDuration_Unmarshal(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("model:\n  path: m.bin\npipeline:\n  silence_timeout: 250ms\n  inference_deadline: 15s\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.Pipeline.SilenceTimeout.Std(); got != 250*time.Millisecond {
		t.Errorf("silence timeout = %v, want 250ms", got)
	}
	if got := cfg.Pipeline.InferenceDeadline.Std(); got != 15*time.Second {
		t.Errorf("inference deadline = %v, want 15s", got)
	}
}

func TestDuration_InvalidString(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("model:\n  path: m.bin\npipeline:\n  silence_timeout: soon\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "soon") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_MaxUtteranceMustExceedSilence(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Model.Path = "m.bin"
	cfg.Pipeline.MaxUtterance = cfg.Pipeline.SilenceTimeout

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "max_utterance") {
		t.Fatalf("expected max_utterance error, got %v", err)
	}
}
