// Package session holds the mutable runtime state of a pipeline session:
// which media backend is active and the live tuning parameters.
//
// The state is single-writer by convention — only command handlers running
// on the dispatch goroutine mutate it — while the segmenter and the
// transcriber read it once per frame or per utterance. Reads go through an
// atomic snapshot swap so no reader ever blocks on a writer.
package session

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rexvoice/rex/pkg/media"
)

// Params are the live tuning parameters that voice commands may adjust at
// runtime.
type Params struct {
	// SilenceTimeout is the continuous non-speech duration that closes an
	// utterance. Read by the segmenter on every flush decision.
	SilenceTimeout time.Duration

	// BeamWidth is the ASR decoding beam width. Read by the transcription
	// worker before each inference.
	BeamWidth int

	// VolumeStep is the percentage applied by relative volume commands.
	VolumeStep int
}

// snapshot is the immutable value swapped on every mutation.
type snapshot struct {
	active string
	params Params
}

// State is the session state record. Construct with New; mutate only from
// the dispatch goroutine.
type State struct {
	backends map[string]media.Backend
	cur      atomic.Pointer[snapshot]
}

// New creates a State over the given backends with active as the initial
// selection. The backends map is not copied and must not be mutated after
// New returns.
func New(backends map[string]media.Backend, active string, params Params) (*State, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("session: no backends configured")
	}
	if _, ok := backends[active]; !ok {
		return nil, fmt.Errorf("session: initial backend %q is not configured (have %v)", active, names(backends))
	}
	s := &State{backends: backends}
	s.cur.Store(&snapshot{active: active, params: params})
	return s, nil
}

// Backend returns the currently selected media backend.
func (s *State) Backend() media.Backend {
	return s.backends[s.cur.Load().active]
}

// ActiveName returns the name of the currently selected backend.
func (s *State) ActiveName() string {
	return s.cur.Load().active
}

// Params returns the current tuning parameters.
func (s *State) Params() Params {
	return s.cur.Load().params
}

// Switch selects a different backend by name. Returns an error naming the
// configured backends when target is unknown.
func (s *State) Switch(target string) error {
	if _, ok := s.backends[target]; !ok {
		return fmt.Errorf("session: unknown backend %q (have %v)", target, names(s.backends))
	}
	old := s.cur.Load()
	s.cur.Store(&snapshot{active: target, params: old.params})
	return nil
}

// SetParams replaces the tuning parameters.
func (s *State) SetParams(p Params) {
	old := s.cur.Load()
	s.cur.Store(&snapshot{active: old.active, params: p})
}

// Names returns the configured backend names, sorted.
func (s *State) Names() []string {
	return names(s.backends)
}

func names(m map[string]media.Backend) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
