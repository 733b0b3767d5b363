// Package audio defines the frame and utterance types flowing through the
// rex pipeline. Frames are the atomic unit of audio transport — captured
// from the input source, scored by VAD, and grouped into utterances by the
// segmenter. Utterances are the unit of transcription.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Frame represents a single fixed-duration frame of audio flowing through
// the pipeline. A Frame is immutable once produced; stages must not modify
// its sample data.
type Frame struct {
	// Samples is raw 16-bit signed mono PCM.
	Samples []int16

	// SampleRate in Hz (16000 for whisper input).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	// Monotonically increasing across a capture session.
	Timestamp time.Duration

	// Speech is the voice-activity probability (0.0–1.0) assigned by the
	// VAD stage. Zero until scored.
	Speech float64
}

// Duration returns the play time of the frame's samples.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Utterance is a contiguous, time-ordered run of frames judged to contain
// one spoken phrase, bounded by silence on both sides.
type Utterance struct {
	// Frames are the buffered frames in capture order.
	Frames []Frame

	// Start is the timestamp of the first frame.
	Start time.Duration

	// End is the timestamp of the last frame plus its duration.
	End time.Duration
}

// Duration returns the total span of the utterance.
func (u Utterance) Duration() time.Duration {
	return u.End - u.Start
}

// Samples concatenates the PCM of all frames into one slice.
func (u Utterance) Samples() []int16 {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// ErrEmptyUtterance is returned by Validate for an utterance with no frames.
var ErrEmptyUtterance = errors.New("audio: utterance has no frames")

// Validate checks the utterance invariants: at least one frame, positive
// duration, strictly time-ordered frames, and no internal gap wider than one
// frame period (with a small tolerance for timestamp jitter).
func (u Utterance) Validate() error {
	if len(u.Frames) == 0 {
		return ErrEmptyUtterance
	}
	if u.End <= u.Start {
		return fmt.Errorf("audio: utterance duration %v is not positive", u.End-u.Start)
	}
	period := u.Frames[0].Duration()
	for i := 1; i < len(u.Frames); i++ {
		prev, cur := u.Frames[i-1], u.Frames[i]
		if cur.Timestamp <= prev.Timestamp {
			return fmt.Errorf("audio: frame %d timestamp %v not after frame %d timestamp %v",
				i, cur.Timestamp, i-1, prev.Timestamp)
		}
		gap := cur.Timestamp - prev.Timestamp
		if period > 0 && gap > 2*period {
			return fmt.Errorf("audio: gap %v between frames %d and %d exceeds one frame period", gap, i-1, i)
		}
	}
	return nil
}

// NewUtterance builds an Utterance from frames, deriving Start and End.
// The caller retains no ownership of the slice.
func NewUtterance(frames []Frame) Utterance {
	u := Utterance{Frames: frames}
	if len(frames) > 0 {
		u.Start = frames[0].Timestamp
		last := frames[len(frames)-1]
		u.End = last.Timestamp + last.Duration()
	}
	return u
}
