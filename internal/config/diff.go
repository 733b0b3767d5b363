package config

// DiffResult describes what changed between two configs. Model and audio
// changes cannot be applied live and only set RestartRequired.
type DiffResult struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TuningChanged covers the parameters the running pipeline reads live
	// through the session state: silence timeout and volume step. Other
	// pipeline settings are baked in at construction and set
	// RestartRequired instead.
	TuningChanged bool
	NewTuning     PipelineConfig

	ActiveBackendChanged bool
	NewActiveBackend     string

	// RestartRequired is set when model, audio, dashboard, or backend
	// connection settings changed. These cannot be applied live.
	RestartRequired bool
}

// Empty reports whether nothing hot-reloadable changed.
func (d DiffResult) Empty() bool {
	return !d.LogLevelChanged && !d.TuningChanged && !d.ActiveBackendChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) DiffResult {
	d := DiffResult{}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	if old.Pipeline.SilenceTimeout != new.Pipeline.SilenceTimeout ||
		old.Pipeline.VolumeStep != new.Pipeline.VolumeStep {
		d.TuningChanged = true
		d.NewTuning = new.Pipeline
	}

	if old.Backends.Active != new.Backends.Active {
		d.ActiveBackendChanged = true
		d.NewActiveBackend = new.Backends.Active
	}

	// Compare the pipeline blocks with the live-tunable fields (and the
	// LowLatency flag, which only feeds the silence-timeout default)
	// normalised away, so only construction-time settings trigger a
	// restart.
	oldFixed, newFixed := old.Pipeline, new.Pipeline
	oldFixed.SilenceTimeout, newFixed.SilenceTimeout = 0, 0
	oldFixed.VolumeStep, newFixed.VolumeStep = 0, 0
	oldFixed.LowLatency, newFixed.LowLatency = false, false

	if old.Model != new.Model ||
		oldFixed != newFixed ||
		old.Audio.SampleRate != new.Audio.SampleRate ||
		old.Audio.FrameSize != new.Audio.FrameSize ||
		old.Audio.VAD.Name != new.Audio.VAD.Name ||
		old.Backends.YTMD != new.Backends.YTMD ||
		old.Backends.Spotify != new.Backends.Spotify ||
		old.Dashboard != new.Dashboard ||
		old.Log.File != new.Log.File ||
		old.Log.MaxSizeMB != new.Log.MaxSizeMB {
		d.RestartRequired = true
	}

	return d
}
