package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rexvoice/rex/pkg/media"
	"github.com/rexvoice/rex/pkg/provider/asr"
	"github.com/rexvoice/rex/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// pluggable component. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	asr      map[string]func(*Config) (asr.Provider, error)
	vad      map[string]func(ProviderEntry) (vad.Engine, error)
	backends map[string]func(*Config) (media.Backend, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		asr:      make(map[string]func(*Config) (asr.Provider, error)),
		vad:      make(map[string]func(ProviderEntry) (vad.Engine, error)),
		backends: make(map[string]func(*Config) (media.Backend, error)),
	}
}

// RegisterASR registers a speech-to-text provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterASR(name string, factory func(*Config) (asr.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterVAD registers a voice-activity detector factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterBackend registers a media backend factory under name.
func (r *Registry) RegisterBackend(name string, factory func(*Config) (media.Backend, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// CreateASR instantiates the speech-to-text provider registered under name.
// Returns [ErrProviderNotRegistered] if no factory has been registered.
func (r *Registry) CreateASR(name string, cfg *Config) (asr.Provider, error) {
	r.mu.RLock()
	factory, ok := r.asr[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}

// CreateVAD instantiates the voice-activity detector registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateBackend instantiates the media backend registered under name.
func (r *Registry) CreateBackend(name string, cfg *Config) (media.Backend, error) {
	r.mu.RLock()
	factory, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: backend/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}

// BackendNames returns the names of all registered backend factories.
func (r *Registry) BackendNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}
