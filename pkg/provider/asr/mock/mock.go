// Package mock provides a scripted ASR provider for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/rexvoice/rex/pkg/provider/asr"
)

// Provider returns scripted transcripts in order. Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Texts is the sequence of transcripts returned by successive
	// Transcribe calls. When exhausted, Transcribe returns empty text.
	Texts []string

	// Err, when non-nil, is returned by every Transcribe call.
	Err error

	// Errs, when non-empty, scripts per-call Transcribe errors: call i
	// returns Errs[i] (nil entries succeed). Takes precedence over Err
	// while entries remain.
	Errs []error

	// WarmupErr, when non-nil, is returned by Warmup instead of Err.
	WarmupErr error

	// Delay is slept inside Transcribe (respecting ctx) to simulate
	// inference time.
	Delay time.Duration

	warmups     int
	transcribes int
	closed      bool
}

var _ asr.Provider = (*Provider)(nil)

// Warmup records the call and returns WarmupErr.
func (p *Provider) Warmup(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warmups++
	return p.WarmupErr
}

// Transcribe returns the next scripted text.
func (p *Provider) Transcribe(ctx context.Context, _ []int16, _ int) (asr.Result, error) {
	p.mu.Lock()
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return asr.Result{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	call := p.transcribes
	p.transcribes++
	if call < len(p.Errs) {
		if err := p.Errs[call]; err != nil {
			return asr.Result{}, err
		}
	} else if p.Err != nil {
		return asr.Result{}, p.Err
	}
	var text string
	if call < len(p.Texts) {
		text = p.Texts[call]
	}
	return asr.Result{Text: text, Confidence: 1}, nil
}

// Close marks the provider closed.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Warmups reports how many times Warmup was called.
func (p *Provider) Warmups() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.warmups
}

// Transcribes reports how many times Transcribe was called.
func (p *Provider) Transcribes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transcribes
}

// Closed reports whether Close was called.
func (p *Provider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
