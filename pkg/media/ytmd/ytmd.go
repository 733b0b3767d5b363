// Package ytmd implements media.Backend against the YouTube Music Desktop
// companion server REST API (POST /api/v1/command with an Authorization
// token header).
//
// The companion server runs on the user's desktop next to the player, so
// calls are LAN-local and cheap; a short request timeout keeps a wedged
// player from stalling dispatch.
package ytmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rexvoice/rex/pkg/media"
)

const (
	commandEndpoint = "/api/v1/command"
	stateEndpoint   = "/api/v1/state"

	defaultTimeout = 2 * time.Second
	defaultVolume  = 50
)

// Compile-time interface assertion.
var _ media.Backend = (*Backend)(nil)

// Backend talks to a YTMD companion server.
type Backend struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// volMu guards the locally tracked volume. The companion command API
	// is write-only for volume, so Volume reports the last value written.
	volMu  sync.Mutex
	volume int
}

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithTimeout sets the per-request HTTP timeout. Defaults to 2 s.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) { b.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client entirely. Mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) { b.httpClient = c }
}

// New creates a Backend for the companion server at baseURL (e.g.
// "http://localhost:9863"). The token authorises every request; an empty
// token yields a backend whose operations fail with media.ErrNotConfigured.
func New(baseURL, token string, opts ...Option) *Backend {
	b := &Backend{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		volume:     defaultVolume,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name identifies this backend in logs and metrics.
func (b *Backend) Name() string { return "ytmd" }

// commandRequest is the JSON body for POST /api/v1/command.
type commandRequest struct {
	Command string `json:"command"`
	Value   any    `json:"value,omitempty"`
}

// send POSTs a command to the companion server and checks for a 2xx reply.
func (b *Backend) send(ctx context.Context, command string, value any) error {
	if b.token == "" {
		return fmt.Errorf("ytmd: %w: missing token", media.ErrNotConfigured)
	}

	body, err := json.Marshal(commandRequest{Command: command, Value: value})
	if err != nil {
		return fmt.Errorf("ytmd: encode command %q: %w", command, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+commandEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ytmd: build request: %w", err)
	}
	req.Header.Set("Authorization", b.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ytmd: command %q: %w", command, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ytmd: command %q: unexpected status %d", command, resp.StatusCode)
	}
	return nil
}

// Play resumes playback.
func (b *Backend) Play(ctx context.Context) error { return b.send(ctx, "play", nil) }

// Pause pauses playback.
func (b *Backend) Pause(ctx context.Context) error { return b.send(ctx, "pause", nil) }

// Next skips to the next track.
func (b *Backend) Next(ctx context.Context) error { return b.send(ctx, "next", nil) }

// Previous returns to the previous track.
func (b *Backend) Previous(ctx context.Context) error { return b.send(ctx, "previous", nil) }

// Restart seeks to the beginning of the current track.
func (b *Backend) Restart(ctx context.Context) error { return b.send(ctx, "seekTo", 0) }

// SetVolume sets the player volume to an absolute percentage.
func (b *Backend) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("ytmd: volume %d out of range [0, 100]", percent)
	}
	if err := b.send(ctx, "setVolume", percent); err != nil {
		return err
	}
	b.volMu.Lock()
	b.volume = percent
	b.volMu.Unlock()
	return nil
}

// Volume returns the last volume written through this backend.
func (b *Backend) Volume(context.Context) (int, error) {
	b.volMu.Lock()
	defer b.volMu.Unlock()
	return b.volume, nil
}

// SearchAndPlay queues the best search match for title/artist.
func (b *Backend) SearchAndPlay(ctx context.Context, title, artist string) error {
	query := title
	if artist != "" {
		query = title + " " + artist
	}
	return b.send(ctx, "search", query)
}

// Like marks the current track thumbs-up.
func (b *Backend) Like(ctx context.Context) error { return b.send(ctx, "toggleLike", nil) }

// Dislike marks the current track thumbs-down.
func (b *Backend) Dislike(ctx context.Context) error { return b.send(ctx, "toggleDislike", nil) }

// Ping checks connectivity and token validity via GET /api/v1/state.
func (b *Backend) Ping(ctx context.Context) error {
	if b.token == "" {
		return fmt.Errorf("ytmd: %w: missing token", media.ErrNotConfigured)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+stateEndpoint, nil)
	if err != nil {
		return fmt.Errorf("ytmd: build request: %w", err)
	}
	req.Header.Set("Authorization", b.token)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ytmd: ping: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ytmd: ping: unexpected status %d", resp.StatusCode)
	}
	return nil
}
