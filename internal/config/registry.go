package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/llm"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	"github.com/MrWong99/murmur/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// AudioDevices is the capture and playback pair built by an audio factory.
type AudioDevices struct {
	Input  audio.Device
	Output audio.Player
}

// Factory builds a provider of type T from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name-to-factory table. Guarded by Registry.mu.
type factories[T any] struct {
	kind  string
	table map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, table: make(map[string]Factory[T])}
}

// lookup returns the factory for name. The caller holds Registry.mu.
func (f factories[T]) lookup(name string) (Factory[T], error) {
	factory, ok := f.table[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return factory, nil
}

// build runs factory outside the registry lock.
func build[T any](factory Factory[T], err error, entry ProviderEntry) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	return factory(entry)
}

// Registry maps provider names to constructors, one table per provider
// kind. Registering a name twice replaces the earlier factory. It is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   factories[stt.Provider]
	llm   factories[llm.Provider]
	tts   factories[tts.Provider]
	audio factories[AudioDevices]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   newFactories[stt.Provider]("stt"),
		llm:   newFactories[llm.Provider]("llm"),
		tts:   newFactories[tts.Provider]("tts"),
		audio: newFactories[AudioDevices]("audio"),
	}
}

// RegisterSTT registers an STT factory under name.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.table[name] = factory
}

// RegisterLLM registers an LLM factory under name.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.table[name] = factory
}

// RegisterTTS registers a TTS factory under name.
func (r *Registry) RegisterTTS(name string, factory Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.table[name] = factory
}

// RegisterAudio registers an audio device factory under name.
func (r *Registry) RegisterAudio(name string, factory Factory[AudioDevices]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio.table[name] = factory
}

// CreateSTT builds the STT provider registered under entry.Name, or fails
// with [ErrProviderNotRegistered].
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, err := r.stt.lookup(entry.Name)
	r.mu.RUnlock()
	return build(factory, err, entry)
}

// CreateLLM builds the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, err := r.llm.lookup(entry.Name)
	r.mu.RUnlock()
	return build(factory, err, entry)
}

// CreateTTS builds the TTS provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, err := r.tts.lookup(entry.Name)
	r.mu.RUnlock()
	return build(factory, err, entry)
}

// CreateAudio builds the devices registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (AudioDevices, error) {
	r.mu.RLock()
	factory, err := r.audio.lookup(entry.Name)
	r.mu.RUnlock()
	return build(factory, err, entry)
}

// Names returns the sorted provider names registered for kind ("stt",
// "llm", "tts" or "audio"). An unknown kind yields nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.stt.kind:
		return slices.Sorted(maps.Keys(r.stt.table))
	case r.llm.kind:
		return slices.Sorted(maps.Keys(r.llm.table))
	case r.tts.kind:
		return slices.Sorted(maps.Keys(r.tts.table))
	case r.audio.kind:
		return slices.Sorted(maps.Keys(r.audio.table))
	}
	return nil
}
