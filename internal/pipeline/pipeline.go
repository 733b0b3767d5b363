package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rexvoice/rex/pkg/audio"
)

// Pipeline runs the three capture-path stages under one supervisor: the
// source pump, the segmenter, and the transcription worker. The stages are
// connected by the bounded channels; each stage owns closing its output so
// shutdown drains in order (pump → segmenter → transcriber).
type Pipeline struct {
	source     audio.Source
	frames     *FrameChannel
	utterances *UtteranceChannel
	segmenter  *Segmenter
	worker     *Transcriber
}

// New assembles a Pipeline from already-constructed stages.
func New(source audio.Source, frames *FrameChannel, utterances *UtteranceChannel, seg *Segmenter, worker *Transcriber) *Pipeline {
	return &Pipeline{
		source:     source,
		frames:     frames,
		utterances: utterances,
		segmenter:  seg,
		worker:     worker,
	}
}

// Run starts all stages and blocks until the source ends, ctx is
// cancelled, or a stage fails. Context cancellation is a clean shutdown,
// not an error.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Pump: source → frame channel. Enqueue never blocks; overflow drops
	// the incoming frame.
	g.Go(func() error {
		defer p.frames.Close()

		stream, err := p.source.Stream(ctx)
		if err != nil {
			return fmt.Errorf("pipeline: start capture: %w", err)
		}
		for frame := range stream {
			p.frames.Enqueue(frame)
		}
		slog.Debug("capture stream ended")
		return nil
	})

	// Segmenter: frame channel → utterance channel.
	g.Go(func() error {
		defer p.utterances.Close()
		return p.segmenter.Run(ctx)
	})

	// Transcriber: utterance channel → command router.
	g.Go(func() error {
		return p.worker.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
