package command

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rexvoice/rex/internal/session"
)

// end tolerates trailing punctuation the recogniser sometimes appends.
const end = `[.!?\s]*$`

// defaultPatterns returns the built-in command table. Order matters: the
// router stops at the first match, so the specific "volume up" entries sit
// above the generic "volume N" one.
func defaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:      "stop_music",
			Canonical: "stop music",
			Regex:     regexp.MustCompile(`^\s*stop\s+music\s*` + end),
			Action: func(ctx context.Context, st *session.State, _ []string) (string, error) {
				if err := st.Backend().Pause(ctx); err != nil {
					return "", err
				}
				return "paused", nil
			},
		},
		{
			Name:      "play_music",
			Canonical: "play music",
			Regex:     regexp.MustCompile(`^\s*(?:play|start)\s+music\s*` + end),
			Action: func(ctx context.Context, st *session.State, _ []string) (string, error) {
				if err := st.Backend().Play(ctx); err != nil {
					return "", err
				}
				return "playing", nil
			},
		},
		{
			Name:      "next_track",
			Canonical: "next",
			Regex:     regexp.MustCompile(`^\s*(?:next|skip)\s*` + end),
			Action: func(ctx context.Context, st *session.State, _ []string) (string, error) {
				if err := st.Backend().Next(ctx); err != nil {
					return "", err
				}
				return "skipped", nil
			},
		},
		{
			Name:      "previous_track",
			Canonical: "previous",
			Regex:     regexp.MustCompile(`^\s*(?:last|previous)\s*` + end),
			Action: func(ctx context.Context, st *session.State, _ []string) (string, error) {
				if err := st.Backend().Previous(ctx); err != nil {
					return "", err
				}
				return "previous track", nil
			},
		},
		{
			Name:      "restart_track",
			Canonical: "restart",
			Regex:     regexp.MustCompile(`^\s*restart\s*` + end),
			Action: func(ctx context.Context, st *session.State, _ []string) (string, error) {
				if err := st.Backend().Restart(ctx); err != nil {
					return "", err
				}
				return "restarted", nil
			},
		},
		{
			Name:      "search_song",
			Canonical: "search",
			Regex:     regexp.MustCompile(`^\s*search\s+(.+?)(?:\s+by\s+(.+?))?` + end),
			Action: func(ctx context.Context, st *session.State, matches []string) (string, error) {
				title := strings.TrimSpace(matches[1])
				artist := strings.TrimSpace(matches[2])
				if err := st.Backend().SearchAndPlay(ctx, title, artist); err != nil {
					return "", err
				}
				if artist != "" {
					return fmt.Sprintf("searching %q by %q", title, artist), nil
				}
				return fmt.Sprintf("searching %q", title), nil
			},
		},
		{
			Name:      "volume_up",
			Canonical: "volume up",
			Regex:     regexp.MustCompile(`^\s*volume\s+up` + end),
			Action: func(ctx context.Context, st *session.State, _ []string) (string, error) {
				return adjustVolume(ctx, st, +st.Params().VolumeStep)
			},
		},
		{
			Name:      "volume_down",
			Canonical: "volume down",
			Regex:     regexp.MustCompile(`^\s*volume\s+down` + end),
			Action: func(ctx context.Context, st *session.State, _ []string) (string, error) {
				return adjustVolume(ctx, st, -st.Params().VolumeStep)
			},
		},
		{
			Name:      "set_volume",
			Canonical: "volume",
			Regex:     regexp.MustCompile(`^\s*volume\s+(\d{1,3})\s*` + end),
			Action: func(ctx context.Context, st *session.State, matches []string) (string, error) {
				percent, err := strconv.Atoi(matches[1])
				if err != nil {
					return "", err
				}
				percent = clampVolume(percent)
				if err := st.Backend().SetVolume(ctx, percent); err != nil {
					return "", err
				}
				return fmt.Sprintf("volume %d", percent), nil
			},
		},
		{
			Name:      "like",
			Canonical: "like",
			Regex:     regexp.MustCompile(`^\s*like\s*` + end),
			Action: func(ctx context.Context, st *session.State, _ []string) (string, error) {
				if err := st.Backend().Like(ctx); err != nil {
					return "", err
				}
				return "liked", nil
			},
		},
		{
			Name:      "dislike",
			Canonical: "dislike",
			Regex:     regexp.MustCompile(`^\s*dislike\s*` + end),
			Action: func(ctx context.Context, st *session.State, _ []string) (string, error) {
				if err := st.Backend().Dislike(ctx); err != nil {
					return "", err
				}
				return "disliked", nil
			},
		},
		{
			Name:      "so_sad",
			Canonical: "this is so sad",
			Regex:     regexp.MustCompile(`^\s*this\s+is\s+so\s+sad\s*` + end),
			Action: func(ctx context.Context, st *session.State, _ []string) (string, error) {
				if err := st.Backend().SearchAndPlay(ctx, "despacito", ""); err != nil {
					return "", err
				}
				return "playing despacito", nil
			},
		},
		{
			Name:      "switch_spotify",
			Canonical: "switch to spotify",
			Regex:     regexp.MustCompile(`^\s*switch\s+to\s+spotify` + end),
			Action: func(_ context.Context, st *session.State, _ []string) (string, error) {
				if err := st.Switch("spotify"); err != nil {
					return "", err
				}
				return "switched to spotify", nil
			},
		},
		{
			Name:      "switch_ytmd",
			Canonical: "switch to youtube music",
			Regex:     regexp.MustCompile(`^\s*switch\s+to\s+youtube\s+music` + end),
			Action: func(_ context.Context, st *session.State, _ []string) (string, error) {
				if err := st.Switch("ytmd"); err != nil {
					return "", err
				}
				return "switched to youtube music", nil
			},
		},
	}
}

// adjustVolume reads the current volume, applies delta, and writes the
// clamped result back.
func adjustVolume(ctx context.Context, st *session.State, delta int) (string, error) {
	cur, err := st.Backend().Volume(ctx)
	if err != nil {
		return "", err
	}
	target := clampVolume(cur + delta)
	if err := st.Backend().SetVolume(ctx, target); err != nil {
		return "", err
	}
	return fmt.Sprintf("volume %d", target), nil
}

// clampVolume bounds percent to [0, 100].
func clampVolume(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
