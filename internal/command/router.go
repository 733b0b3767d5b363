// Package command implements regex-based routing of recognised transcripts
// to media backend operations. Transcripts are checked against an ordered
// pattern table; the first match wins and its handler runs against the
// currently active backend.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/rexvoice/rex/internal/observe"
	"github.com/rexvoice/rex/internal/session"
	"github.com/rexvoice/rex/internal/stats"
)

// suggestionMaxDistance is the largest Levenshtein distance at which an
// unmatched transcript still produces a "did you mean" hint.
const suggestionMaxDistance = 3

// defaultDispatchTimeout bounds a single handler execution so a wedged
// backend cannot stall the transcription worker behind it.
const defaultDispatchTimeout = 2 * time.Second

// Pattern pairs a compiled regex with the action to execute when it matches.
type Pattern struct {
	// Regex is the compiled pattern. Positional groups are passed to Action
	// as matches[1], matches[2], etc.
	Regex *regexp.Regexp

	// Name is a stable label used in logs and per-command statistics.
	Name string

	// Canonical is the plain phrasing of the command, used for "did you
	// mean" suggestions on near-miss transcripts.
	Canonical string

	// Action executes the command using the matched groups.
	// matches is the full submatch slice from Regex.FindStringSubmatch.
	Action func(ctx context.Context, st *session.State, matches []string) (string, error)
}

// Outcome reports what the router did with one transcript.
type Outcome struct {
	// Matched is true when a pattern matched, even if its handler failed.
	Matched bool

	// Pattern is the name of the matched pattern, empty when unmatched.
	Pattern string

	// Result is the handler's human-readable result, empty on failure.
	Result string

	// Suggestion is a near-miss hint for unmatched transcripts, empty when
	// nothing was close enough.
	Suggestion string

	// Err holds the handler error. Handler errors are logged and counted
	// but never abort the pipeline.
	Err error
}

// Router dispatches transcripts against an ordered pattern table.
// Safe for concurrent use, though the pipeline calls it from a single
// goroutine.
type Router struct {
	patterns []Pattern
	state    *session.State
	stats    *stats.Collector
	metrics  *observe.Metrics
	timeout  time.Duration
}

// Option is a functional option for configuring a Router.
type Option func(*Router)

// WithPatterns replaces the built-in pattern table. Mainly for tests.
func WithPatterns(patterns []Pattern) Option {
	return func(r *Router) { r.patterns = patterns }
}

// WithDispatchTimeout bounds a single handler execution. Defaults to 2 s.
func WithDispatchTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics attaches OTel instruments. When nil, only the stats collector
// is fed.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a Router over the given session state. The stats collector
// receives per-pattern match counts and execute latencies.
func New(st *session.State, sc *stats.Collector, opts ...Option) *Router {
	r := &Router{
		patterns: defaultPatterns(),
		state:    st,
		stats:    sc,
		timeout:  defaultDispatchTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Normalize lowercases text, trims surrounding whitespace, and strips
// trailing punctuation so "Volume Up." routes the same as "volume up".
func Normalize(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(t, ".!?, ")
}

// Dispatch routes one transcript. The first pattern whose regex matches
// wins; later patterns are not tried. Handler errors are contained: they
// are logged, counted, and reported in the Outcome, and the router stays
// usable for the next transcript.
func (r *Router) Dispatch(ctx context.Context, text string) Outcome {
	trimmed := Normalize(text)
	if trimmed == "" {
		return Outcome{}
	}

	for _, p := range r.patterns {
		matches := p.Regex.FindStringSubmatch(trimmed)
		if matches == nil {
			continue
		}
		return r.execute(ctx, p, trimmed, matches)
	}

	r.stats.CommandUnmatched()
	if r.metrics != nil {
		r.metrics.RecordCommand(ctx, "", r.state.ActiveName(), "unmatched")
	}

	out := Outcome{Suggestion: r.suggest(trimmed)}
	if out.Suggestion != "" {
		slog.Debug("no command matched", "text", trimmed, "did_you_mean", out.Suggestion)
	} else {
		slog.Debug("no command matched", "text", trimmed)
	}
	return out
}

// execute runs one matched pattern's handler under the dispatch timeout.
func (r *Router) execute(ctx context.Context, p Pattern, text string, matches []string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := p.Action(ctx, r.state, matches)
	elapsed := time.Since(start)

	r.stats.CommandMatched(p.Name, elapsed)

	backend := r.state.ActiveName()
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordCommand(ctx, p.Name, backend, "error")
			r.metrics.RecordBackendError(ctx, backend)
		}
		slog.Warn("command failed",
			"pattern", p.Name,
			"text", text,
			"backend", backend,
			"error", err,
		)
		return Outcome{Matched: true, Pattern: p.Name, Err: fmt.Errorf("command: %s: %w", p.Name, err)}
	}

	if r.metrics != nil {
		r.metrics.RecordCommand(ctx, p.Name, backend, "ok")
		r.metrics.DispatchDuration.Record(ctx, elapsed.Seconds())
	}
	slog.Info("command executed",
		"pattern", p.Name,
		"text", text,
		"backend", backend,
		"result", result,
	)
	return Outcome{Matched: true, Pattern: p.Name, Result: result}
}

// suggest returns the canonical phrasing of the closest pattern when the
// transcript is within edit distance of one, or "" when nothing is close.
func (r *Router) suggest(text string) string {
	best := ""
	bestDist := suggestionMaxDistance + 1
	for _, p := range r.patterns {
		if p.Canonical == "" {
			continue
		}
		if d := matchr.Levenshtein(text, p.Canonical); d < bestDist {
			bestDist = d
			best = p.Canonical
		}
	}
	return best
}
