// Package pipeline wires the audio capture path: frames flow through a
// bounded channel into the voice-activity segmenter, utterances flow
// through a second bounded channel into the transcription worker, and
// recognised text is handed to the command router.
//
// Both channels are lossy by design. A slow consumer must never block the
// capture callback, so the frame channel drops the newest frame on
// overflow; stale pending utterances are worth less than fresh ones, so
// the utterance queue evicts its oldest entry instead.
package pipeline

import (
	"context"
	"time"

	"github.com/rexvoice/rex/internal/observe"
	"github.com/rexvoice/rex/internal/stats"
	"github.com/rexvoice/rex/pkg/audio"
)

// FrameChannel is the bounded capture → segmenter queue. Enqueue never
// blocks: when the channel is full the incoming frame is dropped and
// counted, keeping the capture thread real-time.
type FrameChannel struct {
	ch      chan audio.Frame
	stats   *stats.Collector
	metrics *observe.Metrics
}

// NewFrameChannel creates a frame channel holding at most capacity frames.
// metrics may be nil.
func NewFrameChannel(capacity int, sc *stats.Collector, m *observe.Metrics) *FrameChannel {
	return &FrameChannel{
		ch:      make(chan audio.Frame, capacity),
		stats:   sc,
		metrics: m,
	}
}

// Enqueue offers one frame without blocking. Returns false when the channel
// was full and the frame was dropped. Every offered frame counts as
// ingested, so ingested == delivered + dropped holds over the counters.
func (f *FrameChannel) Enqueue(frame audio.Frame) bool {
	f.stats.FrameIngested()
	if f.metrics != nil {
		f.metrics.FramesIngested.Add(context.Background(), 1)
	}
	select {
	case f.ch <- frame:
		if f.metrics != nil {
			f.metrics.RecordQueueDepth(context.Background(), "frames", 1)
		}
		return true
	default:
		f.stats.FrameDropped()
		if f.metrics != nil {
			f.metrics.FramesDropped.Add(context.Background(), 1)
		}
		return false
	}
}

// Recv returns the consumer side of the channel.
func (f *FrameChannel) Recv() <-chan audio.Frame {
	return f.ch
}

// take records a dequeue on the depth gauge. Called by the segmenter.
func (f *FrameChannel) take() {
	if f.metrics != nil {
		f.metrics.RecordQueueDepth(context.Background(), "frames", -1)
	}
}

// Close closes the producer side. Enqueue must not be called afterwards.
func (f *FrameChannel) Close() {
	close(f.ch)
}

// QueuedUtterance is one segmented utterance awaiting transcription, with
// the wall-clock timestamps needed for latency accounting.
type QueuedUtterance struct {
	Utterance audio.Utterance

	// SpeechEnd is when the segmenter decided the utterance was complete.
	// End-to-end latency is measured from here.
	SpeechEnd time.Time

	// EnqueuedAt is when the utterance entered the queue.
	EnqueuedAt time.Time
}

// UtteranceChannel is the bounded segmenter → transcriber queue. When full,
// Enqueue evicts the oldest pending utterance to make room for the new one.
type UtteranceChannel struct {
	ch      chan QueuedUtterance
	stats   *stats.Collector
	metrics *observe.Metrics
}

// NewUtteranceChannel creates an utterance channel holding at most capacity
// pending utterances. metrics may be nil.
func NewUtteranceChannel(capacity int, sc *stats.Collector, m *observe.Metrics) *UtteranceChannel {
	return &UtteranceChannel{
		ch:      make(chan QueuedUtterance, capacity),
		stats:   sc,
		metrics: m,
	}
}

// Enqueue adds one utterance, evicting the oldest pending entry when the
// queue is full. Returns the number of evicted utterances (0 or more; more
// than 1 is possible only under concurrent producers, which the pipeline
// does not have).
func (u *UtteranceChannel) Enqueue(item QueuedUtterance) int {
	dropped := 0
	for {
		select {
		case u.ch <- item:
			u.stats.UtteranceEmitted()
			if u.metrics != nil {
				u.metrics.UtterancesEmitted.Add(context.Background(), 1)
				u.metrics.RecordQueueDepth(context.Background(), "utterances", 1)
			}
			return dropped
		default:
		}

		select {
		case <-u.ch:
			dropped++
			u.stats.UtteranceDropped()
			if u.metrics != nil {
				u.metrics.UtterancesDropped.Add(context.Background(), 1)
				u.metrics.RecordQueueDepth(context.Background(), "utterances", -1)
			}
		default:
			// Consumer raced us and drained the queue; retry the send.
		}
	}
}

// Recv returns the consumer side of the channel.
func (u *UtteranceChannel) Recv() <-chan QueuedUtterance {
	return u.ch
}

// take records a dequeue on the depth gauge. Called by the transcriber.
func (u *UtteranceChannel) take() {
	if u.metrics != nil {
		u.metrics.RecordQueueDepth(context.Background(), "utterances", -1)
	}
}

// Close closes the producer side. Enqueue must not be called afterwards.
func (u *UtteranceChannel) Close() {
	close(u.ch)
}
