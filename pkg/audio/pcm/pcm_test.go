package pcm

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/rexvoice/rex/pkg/audio"
)

// pcmBytes encodes samples as the little-endian byte stream arecord emits.
func pcmBytes(t *testing.T, samples []int16) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, samples); err != nil {
		t.Fatalf("encode samples: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func collect(t *testing.T, frames <-chan audio.Frame) []audio.Frame {
	t.Helper()
	var out []audio.Frame
	deadline := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-deadline:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestNew_InvalidArgs(t *testing.T) {
	t.Parallel()

	r := bytes.NewReader(nil)
	if _, err := New(nil, 16000, 512); err == nil {
		t.Error("expected error for nil reader")
	}
	if _, err := New(r, 0, 512); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := New(r, 16000, 0); err == nil {
		t.Error("expected error for zero frame size")
	}
}

func TestSource_FramesAndTimestamps(t *testing.T) {
	t.Parallel()

	// Three full frames of 4 samples at 16 kHz: 250µs per frame.
	samples := make([]int16, 12)
	for i := range samples {
		samples[i] = int16(i + 1)
	}
	src, err := New(pcmBytes(t, samples), 16000, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	frames, err := src.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	got := collect(t, frames)

	if len(got) != 3 {
		t.Fatalf("frames = %d, want 3", len(got))
	}
	period := 250 * time.Microsecond
	for i, f := range got {
		if want := time.Duration(i) * period; f.Timestamp != want {
			t.Errorf("frame %d timestamp = %v, want %v", i, f.Timestamp, want)
		}
		if f.SampleRate != 16000 || len(f.Samples) != 4 {
			t.Errorf("frame %d shape = %d samples @ %d Hz, want 4 @ 16000", i, len(f.Samples), f.SampleRate)
		}
	}
	if got[1].Samples[0] != 5 {
		t.Errorf("frame 1 starts at sample %d, want 5", got[1].Samples[0])
	}
}

func TestSource_DiscardsPartialFinalFrame(t *testing.T) {
	t.Parallel()

	// One full frame plus two leftover samples.
	src, err := New(pcmBytes(t, make([]int16, 6)), 16000, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	frames, err := src.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got := collect(t, frames); len(got) != 1 {
		t.Errorf("frames = %d, want 1 (partial tail discarded)", len(got))
	}
}

func TestSource_EmptyInput(t *testing.T) {
	t.Parallel()

	src, err := New(bytes.NewReader(nil), 16000, 512)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	frames, err := src.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got := collect(t, frames); len(got) != 0 {
		t.Errorf("frames = %d, want 0", len(got))
	}
}

func TestSource_ContextCancelStopsStream(t *testing.T) {
	t.Parallel()

	src, err := New(pcmBytes(t, make([]int16, 4096)), 16000, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	frames, err := src.Stream(ctx)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	// Take one frame, then cancel; the stream must close without the
	// consumer draining the rest.
	if _, ok := <-frames; !ok {
		t.Fatal("stream closed before first frame")
	}
	cancel()
	collect(t, frames)
}

func TestSource_CloseStopsStream(t *testing.T) {
	t.Parallel()

	src, err := New(pcmBytes(t, make([]int16, 4096)), 16000, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	frames, err := src.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if _, ok := <-frames; !ok {
		t.Fatal("stream closed before first frame")
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	collect(t, frames)

	// Close is idempotent.
	if err := src.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
