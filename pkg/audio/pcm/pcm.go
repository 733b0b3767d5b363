// Package pcm implements audio.Source over a raw little-endian 16-bit mono
// PCM byte stream. The usual producer is a capture tool piped into stdin:
//
//	arecord -f S16_LE -r 16000 -c 1 -t raw | rex
//
// Keeping capture outside the process avoids a CGO audio dependency and
// lets the same binary consume recorded files for offline testing.
package pcm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rexvoice/rex/pkg/audio"
)

// Source reads fixed-size frames from an io.Reader.
type Source struct {
	r          io.Reader
	sampleRate int
	frameSize  int

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Source reading frameSize-sample frames at sampleRate from r.
func New(r io.Reader, sampleRate, frameSize int) (*Source, error) {
	if r == nil {
		return nil, errors.New("pcm: reader must not be nil")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("pcm: sample rate %d must be positive", sampleRate)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("pcm: frame size %d must be positive", frameSize)
	}
	return &Source{
		r:          r,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		closed:     make(chan struct{}),
	}, nil
}

// Stream reads frames until EOF, ctx cancellation, or Close. A trailing
// partial frame at EOF is discarded — the segmenter needs uniform frame
// durations.
func (s *Source) Stream(ctx context.Context) (<-chan audio.Frame, error) {
	out := make(chan audio.Frame)
	framePeriod := time.Duration(s.frameSize) * time.Second / time.Duration(s.sampleRate)

	go func() {
		defer close(out)
		var elapsed time.Duration

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			default:
			}

			samples := make([]int16, s.frameSize)
			if err := binary.Read(s.r, binary.LittleEndian, samples); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					// Reader failure ends the stream; the pipeline treats a
					// closed frame channel as end of input.
					return
				}
				return
			}

			frame := audio.Frame{
				Samples:    samples,
				SampleRate: s.sampleRate,
				Timestamp:  elapsed,
			}
			elapsed += framePeriod

			select {
			case out <- frame:
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			}
		}
	}()

	return out, nil
}

// Close stops the stream. The underlying reader is not closed; the caller
// owns it.
func (s *Source) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)
