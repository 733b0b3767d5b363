// Package media defines the Backend interface for media-control services.
//
// A backend wraps one player-control surface — the YouTube Music Desktop
// companion server or the Spotify Web API — behind a uniform set of
// operations. The command router invokes whichever backend the session
// currently selects; backends never see each other and never touch
// pipeline state.
//
// All operations are short network calls. Implementations must respect
// ctx cancellation and apply their own request timeouts so a slow backend
// cannot stall the dispatch stage.
package media

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by operations on a backend that is missing
// required credentials. The pipeline treats it as a recoverable dispatch
// failure, not a crash.
var ErrNotConfigured = errors.New("media: backend not configured")

// Backend is the abstraction over any media-control service.
type Backend interface {
	// Name identifies the backend ("ytmd", "spotify") for logs and metrics.
	Name() string

	// Play resumes playback.
	Play(ctx context.Context) error

	// Pause pauses playback.
	Pause(ctx context.Context) error

	// Next skips to the next track.
	Next(ctx context.Context) error

	// Previous returns to the previous track.
	Previous(ctx context.Context) error

	// Restart restarts the current track from the beginning.
	Restart(ctx context.Context) error

	// SetVolume sets the player volume to an absolute percentage in [0, 100].
	SetVolume(ctx context.Context, percent int) error

	// Volume returns the current player volume percentage. Backends that
	// cannot read volume return their last-written value.
	Volume(ctx context.Context) (int, error)

	// SearchAndPlay searches for a track by title (and optional artist)
	// and starts playing the best match.
	SearchAndPlay(ctx context.Context, title, artist string) error

	// Like marks the current track as liked. Backends without a rating
	// concept may map this to the closest equivalent.
	Like(ctx context.Context) error

	// Dislike marks the current track as disliked.
	Dislike(ctx context.Context) error

	// Ping checks connectivity and credentials. Used by the readiness
	// probe and the startup configuration check.
	Ping(ctx context.Context) error
}
