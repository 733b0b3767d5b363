// Package mock provides a recording media backend for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/rexvoice/rex/pkg/media"
)

// Backend records every operation invoked on it. Safe for concurrent use.
type Backend struct {
	// BackendName is returned by Name. Defaults to "mock".
	BackendName string

	// Err, when non-nil, is returned by every operation.
	Err error

	mu     sync.Mutex
	calls  []string
	volume int
}

var _ media.Backend = (*Backend)(nil)

// New returns a recording backend with the given name.
func New(name string) *Backend {
	return &Backend{BackendName: name, volume: 50}
}

// Name identifies the backend.
func (b *Backend) Name() string {
	if b.BackendName == "" {
		return "mock"
	}
	return b.BackendName
}

func (b *Backend) record(call string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
	return b.Err
}

// Calls returns a copy of the recorded operation log.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

// Play records "play".
func (b *Backend) Play(context.Context) error { return b.record("play") }

// Pause records "pause".
func (b *Backend) Pause(context.Context) error { return b.record("pause") }

// Next records "next".
func (b *Backend) Next(context.Context) error { return b.record("next") }

// Previous records "previous".
func (b *Backend) Previous(context.Context) error { return b.record("previous") }

// Restart records "restart".
func (b *Backend) Restart(context.Context) error { return b.record("restart") }

// SetVolume records "set_volume(n)" and stores n.
func (b *Backend) SetVolume(_ context.Context, percent int) error {
	b.mu.Lock()
	b.calls = append(b.calls, fmt.Sprintf("set_volume(%d)", percent))
	err := b.Err
	if err == nil {
		b.volume = percent
	}
	b.mu.Unlock()
	return err
}

// Volume returns the stored volume.
func (b *Backend) Volume(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volume, b.Err
}

// SearchAndPlay records "search(title, artist)".
func (b *Backend) SearchAndPlay(_ context.Context, title, artist string) error {
	return b.record(fmt.Sprintf("search(%s, %s)", title, artist))
}

// Like records "like".
func (b *Backend) Like(context.Context) error { return b.record("like") }

// Dislike records "dislike".
func (b *Backend) Dislike(context.Context) error { return b.record("dislike") }

// Ping records "ping".
func (b *Backend) Ping(context.Context) error { return b.record("ping") }
