// Package asr defines the Provider interface for speech recognition
// backends.
//
// Unlike a streaming STT service, an ASR provider here transcribes one
// complete utterance at a time: the segmenter has already decided where
// speech starts and ends, so each Transcribe call receives a closed span
// of PCM and returns the recognised text. Transcription is compute-heavy;
// the pipeline serialises calls through a single worker, and providers may
// assume at most one in-flight Transcribe per provider instance.
package asr

import "context"

// Provider is the abstraction over any utterance-level ASR backend.
type Provider interface {
	// Warmup runs one synthetic inference so that lazy initialisation
	// (model weight mapping, kernel compilation) completes before the
	// first real utterance arrives. Implementations for which warm-up is
	// meaningless should return nil.
	Warmup(ctx context.Context) error

	// Transcribe converts one utterance of 16-bit signed mono PCM at the
	// given sample rate into text. The returned text is already lower-cased
	// and trimmed. An empty Text with a nil error means the audio contained
	// no recognisable speech.
	//
	// Implementations must respect ctx cancellation; the pipeline applies
	// a deadline to guard against hung inference.
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (Result, error)

	// Close releases model resources. Calling Close more than once is safe.
	Close() error
}
