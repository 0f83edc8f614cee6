package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/converse"
	"github.com/MrWong99/jarvis/pkg/provider/transcribe"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	transcription map[string]func(ProviderEntry) (transcribe.Provider, error)
	conversation  map[string]func(ProviderEntry) (converse.Provider, error)
	capture       map[string]func(ProviderEntry) (audio.Source, error)
	playback      map[string]func(ProviderEntry) (audio.Sink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcription: make(map[string]func(ProviderEntry) (transcribe.Provider, error)),
		conversation:  make(map[string]func(ProviderEntry) (converse.Provider, error)),
		capture:       make(map[string]func(ProviderEntry) (audio.Source, error)),
		playback:      make(map[string]func(ProviderEntry) (audio.Sink, error)),
	}
}

// RegisterTranscription registers a transcription provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscription(name string, factory func(ProviderEntry) (transcribe.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcription[name] = factory
}

// RegisterConversation registers a conversation provider factory under name.
func (r *Registry) RegisterConversation(name string, factory func(ProviderEntry) (converse.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversation[name] = factory
}

// RegisterCapture registers a capture device factory under name.
func (r *Registry) RegisterCapture(name string, factory func(ProviderEntry) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = factory
}

// RegisterPlayback registers an output device factory under name.
func (r *Registry) RegisterPlayback(name string, factory func(ProviderEntry) (audio.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playback[name] = factory
}

// CreateTranscription instantiates a transcription provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateTranscription(entry ProviderEntry) (transcribe.Provider, error) {
	r.mu.RLock()
	factory, ok := r.transcription[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcription/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateConversation instantiates a conversation provider using the factory
// registered under entry.Name.
func (r *Registry) CreateConversation(entry ProviderEntry) (converse.Provider, error) {
	r.mu.RLock()
	factory, ok := r.conversation[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: conversation/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateCapture instantiates a capture device using the factory registered
// under entry.Name.
func (r *Registry) CreateCapture(entry ProviderEntry) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.capture[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreatePlayback instantiates an output device using the factory registered
// under entry.Name.
func (r *Registry) CreatePlayback(entry ProviderEntry) (audio.Sink, error) {
	r.mu.RLock()
	factory, ok := r.playback[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: playback/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted provider names registered for kind
// ("transcription", "conversation", "capture" or "playback").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "transcription":
		names = keys(r.transcription)
	case "conversation":
		names = keys(r.conversation)
	case "capture":
		names = keys(r.capture)
	case "playback":
		names = keys(r.playback)
	}
	slices.Sort(names)
	return names
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
