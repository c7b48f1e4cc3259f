package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/grenouille/pkg/provider/embeddings"
	"github.com/MrWong99/grenouille/pkg/provider/llm"
	"github.com/MrWong99/grenouille/pkg/provider/stt"
	"github.com/MrWong99/grenouille/pkg/provider/tts"
	"github.com/MrWong99/grenouille/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
//
// Text-to-speech comes in two shapes: synthesizers return a WAV clip and are
// played by the configured player, speakers play the reply themselves.
type Registry struct {
	mu         sync.RWMutex
	stt        map[string]func(ProviderEntry) (stt.Transcriber, error)
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	synth      map[string]func(ProviderEntry) (tts.Synthesizer, error)
	speaker    map[string]func(ProviderEntry) (tts.Speaker, error)
	embeddings map[string]func(ProviderEntry) (embeddings.Provider, error)
	vad        map[string]func(vad.Config) (vad.Classifier, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:        make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		synth:      make(map[string]func(ProviderEntry) (tts.Synthesizer, error)),
		speaker:    make(map[string]func(ProviderEntry) (tts.Speaker, error)),
		embeddings: make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
		vad:        make(map[string]func(vad.Config) (vad.Classifier, error)),
	}
}

// RegisterSTT registers a transcriber factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	register(&r.mu, r.stt, name, factory)
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	register(&r.mu, r.llm, name, factory)
}

// RegisterSynthesizer registers a speech synthesizer factory under name.
func (r *Registry) RegisterSynthesizer(name string, factory func(ProviderEntry) (tts.Synthesizer, error)) {
	register(&r.mu, r.synth, name, factory)
}

// RegisterSpeaker registers a factory for a backend that plays speech itself.
func (r *Registry) RegisterSpeaker(name string, factory func(ProviderEntry) (tts.Speaker, error)) {
	register(&r.mu, r.speaker, name, factory)
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	register(&r.mu, r.embeddings, name, factory)
}

// RegisterVAD registers a voice activity classifier factory under name.
func (r *Registry) RegisterVAD(name string, factory func(vad.Config) (vad.Classifier, error)) {
	register(&r.mu, r.vad, name, factory)
}

// CreateSTT instantiates the transcriber registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	return create(&r.mu, r.stt, "stt", entry.Name, entry)
}

// CreateLLM instantiates the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(&r.mu, r.llm, "llm", entry.Name, entry)
}

// CreateSynthesizer instantiates the synthesizer registered under entry.Name.
func (r *Registry) CreateSynthesizer(entry ProviderEntry) (tts.Synthesizer, error) {
	return create(&r.mu, r.synth, "tts", entry.Name, entry)
}

// CreateSpeaker instantiates the self-playing speaker registered under
// entry.Name.
func (r *Registry) CreateSpeaker(entry ProviderEntry) (tts.Speaker, error) {
	return create(&r.mu, r.speaker, "tts", entry.Name, entry)
}

// IsSpeaker reports whether name refers to a self-playing TTS backend.
func (r *Registry) IsSpeaker(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.speaker[name]
	return ok
}

// CreateEmbeddings instantiates the embeddings provider registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return create(&r.mu, r.embeddings, "embeddings", entry.Name, entry)
}

// CreateVAD instantiates the classifier registered under name.
func (r *Registry) CreateVAD(name string, cfg vad.Config) (vad.Classifier, error) {
	return create(&r.mu, r.vad, "vad", name, cfg)
}

// Names returns the sorted provider names registered for kind ("stt", "llm",
// "tts", "embeddings" or "vad").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "stt":
		names = keys(r.stt)
	case "llm":
		names = keys(r.llm)
	case "tts":
		names = append(keys(r.synth), keys(r.speaker)...)
	case "embeddings":
		names = keys(r.embeddings)
	case "vad":
		names = keys(r.vad)
	}
	slices.Sort(names)
	return names
}

func register[F any](mu *sync.RWMutex, m map[string]F, name string, factory F) {
	mu.Lock()
	defer mu.Unlock()
	m[name] = factory
}

func create[A, T any](mu *sync.RWMutex, m map[string]func(A) (T, error), kind, name string, arg A) (T, error) {
	mu.RLock()
	factory, ok := m[name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, name)
	}
	return factory(arg)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
