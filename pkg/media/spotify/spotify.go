// Package spotify implements media.Backend against the Spotify Web API
// (https://api.spotify.com/v1). Requests are authorised by an OAuth2 token
// source; the interactive grant flow that produces the refresh token is
// outside this package — callers hand in either a ready token or client
// credentials.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/rexvoice/rex/pkg/media"
)

const (
	defaultBaseURL = "https://api.spotify.com/v1"
	tokenURL       = "https://accounts.spotify.com/api/token"

	defaultTimeout = 3 * time.Second
	defaultVolume  = 50
)

// Compile-time interface assertion.
var _ media.Backend = (*Backend)(nil)

// Backend talks to the Spotify Web API player endpoints.
type Backend struct {
	baseURL    string
	httpClient *http.Client
	configured bool

	volMu  sync.Mutex
	volume int
}

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithBaseURL overrides the API base URL. Mainly for tests against a
// local httptest server.
func WithBaseURL(u string) Option {
	return func(b *Backend) { b.baseURL = u }
}

// WithHTTPClient replaces the OAuth2-wrapped HTTP client entirely.
// Mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) {
		b.httpClient = c
		b.configured = c != nil
	}
}

// New creates a Backend authorised by the given token source. A nil source
// yields a backend whose operations fail with media.ErrNotConfigured.
func New(ts oauth2.TokenSource, opts ...Option) *Backend {
	b := &Backend{
		baseURL: defaultBaseURL,
		volume:  defaultVolume,
	}
	if ts != nil {
		b.httpClient = oauth2.NewClient(context.Background(), ts)
		b.httpClient.Timeout = defaultTimeout
		b.configured = true
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// NewFromCredentials creates a Backend using the OAuth2 client-credentials
// flow with the given application id and secret. Empty credentials yield an
// unconfigured backend.
func NewFromCredentials(clientID, clientSecret string, opts ...Option) *Backend {
	if clientID == "" || clientSecret == "" {
		return New(nil, opts...)
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return New(cfg.TokenSource(context.Background()), opts...)
}

// Name identifies this backend in logs and metrics.
func (b *Backend) Name() string { return "spotify" }

// call issues one player API request and checks for a 2xx reply. Spotify
// returns 204 No Content for successful player commands.
func (b *Backend) call(ctx context.Context, method, path string, query url.Values) error {
	if !b.configured {
		return fmt.Errorf("spotify: %w: missing credentials", media.ErrNotConfigured)
	}

	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("spotify: build request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spotify: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("spotify: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return nil
}

// Play resumes playback on the active device.
func (b *Backend) Play(ctx context.Context) error {
	return b.call(ctx, http.MethodPut, "/me/player/play", nil)
}

// Pause pauses playback.
func (b *Backend) Pause(ctx context.Context) error {
	return b.call(ctx, http.MethodPut, "/me/player/pause", nil)
}

// Next skips to the next track.
func (b *Backend) Next(ctx context.Context) error {
	return b.call(ctx, http.MethodPost, "/me/player/next", nil)
}

// Previous returns to the previous track.
func (b *Backend) Previous(ctx context.Context) error {
	return b.call(ctx, http.MethodPost, "/me/player/previous", nil)
}

// Restart seeks to position zero in the current track.
func (b *Backend) Restart(ctx context.Context) error {
	return b.call(ctx, http.MethodPut, "/me/player/seek", url.Values{"position_ms": {"0"}})
}

// SetVolume sets the active device volume.
func (b *Backend) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("spotify: volume %d out of range [0, 100]", percent)
	}
	err := b.call(ctx, http.MethodPut, "/me/player/volume",
		url.Values{"volume_percent": {fmt.Sprint(percent)}})
	if err != nil {
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

// searchResponse is the subset of the /search reply we consume.
type searchResponse struct {
	Tracks struct {
		Items []struct {
			URI string `json:"uri"`
		} `json:"items"`
	} `json:"tracks"`
}

// SearchAndPlay finds the top track match and queues it on the active device.
func (b *Backend) SearchAndPlay(ctx context.Context, title, artist string) error {
	if !b.configured {
		return fmt.Errorf("spotify: %w: missing credentials", media.ErrNotConfigured)
	}

	q := "track:" + title
	if artist != "" {
		q += " artist:" + artist
	}
	query := url.Values{"q": {q}, "type": {"track"}, "limit": {"1"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/search?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("spotify: build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spotify: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("spotify: search: unexpected status %d", resp.StatusCode)
	}
	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return fmt.Errorf("spotify: decode search reply: %w", err)
	}
	if len(sr.Tracks.Items) == 0 {
		return fmt.Errorf("spotify: no track found for %q", q)
	}

	return b.call(ctx, http.MethodPost, "/me/player/queue",
		url.Values{"uri": {sr.Tracks.Items[0].URI}})
}

// Like saves the current track to the user's library. Requires reading the
// currently playing track first.
func (b *Backend) Like(ctx context.Context) error {
	id, err := b.currentTrackID(ctx)
	if err != nil {
		return err
	}
	return b.call(ctx, http.MethodPut, "/me/tracks", url.Values{"ids": {id}})
}

// Dislike removes the current track from the user's library — the closest
// Web API equivalent of a thumbs-down.
func (b *Backend) Dislike(ctx context.Context) error {
	id, err := b.currentTrackID(ctx)
	if err != nil {
		return err
	}
	return b.call(ctx, http.MethodDelete, "/me/tracks", url.Values{"ids": {id}})
}

// currentTrackID reads the id of the currently playing track.
func (b *Backend) currentTrackID(ctx context.Context) (string, error) {
	if !b.configured {
		return "", fmt.Errorf("spotify: %w: missing credentials", media.ErrNotConfigured)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/me/player/currently-playing", nil)
	if err != nil {
		return "", fmt.Errorf("spotify: build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("spotify: currently playing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("spotify: currently playing: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Item struct {
			ID string `json:"id"`
		} `json:"item"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("spotify: decode currently playing: %w", err)
	}
	if body.Item.ID == "" {
		return "", fmt.Errorf("spotify: nothing is playing")
	}
	return body.Item.ID, nil
}

// Ping verifies the token by fetching the current user profile.
func (b *Backend) Ping(ctx context.Context) error {
	return b.call(ctx, http.MethodGet, "/me", nil)
}
