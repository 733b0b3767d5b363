package asr

// Result is the outcome of transcribing a single utterance.
type Result struct {
	// Text is the recognised speech, lower-cased and trimmed. Empty when
	// the audio contained no recognisable speech.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// backend does not report confidence.
	Confidence float64
}
