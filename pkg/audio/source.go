package audio

import "context"

// Source produces capture frames. Implementations wrap a microphone, a
// PCM byte stream, or a scripted test fixture.
//
// This package defines only the interface; adapter packages (audio/pcm,
// audio/mock) provide implementations.
type Source interface {
	// Stream starts capture and returns the frame channel. The channel is
	// closed when ctx is cancelled, the underlying input ends, or Close is
	// called.
	Stream(ctx context.Context) (<-chan Frame, error)

	// Close releases capture resources. Safe to call more than once.
	Close() error
}
