package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/beepwise/pkg/provider/llm"
	"github.com/MrWong99/beepwise/pkg/provider/stt"
	"github.com/MrWong99/beepwise/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the entry's name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories maps a provider name to its constructor.
type factories[T any] map[string]func(ProviderEntry) (T, error)

// Registry resolves [ProviderEntry] names to constructors for each provider
// kind. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm factories[llm.Provider]
	stt factories[stt.Provider]
	vad factories[vad.Engine]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: factories[llm.Provider]{},
		stt: factories[stt.Provider]{},
		vad: factories[vad.Engine]{},
	}
}

// RegisterLLM registers an LLM factory under name, replacing any earlier one.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	register(r, r.llm, name, factory)
}

// RegisterSTT registers an STT factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	register(r, r.stt, name, factory)
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	register(r, r.vad, name, factory)
}

// CreateLLM builds the LLM provider named by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateSTT builds the STT provider named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateVAD builds the VAD engine named by entry.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return create(r, r.vad, "vad", entry)
}

// Names returns the sorted names registered for kind ("llm", "stt" or
// "vad"). Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "llm":
		return slices.Sorted(maps.Keys(r.llm))
	case "stt":
		return slices.Sorted(maps.Keys(r.stt))
	case "vad":
		return slices.Sorted(maps.Keys(r.vad))
	}
	return nil
}

func register[T any](r *Registry, f factories[T], name string, factory func(ProviderEntry) (T, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f[name] = factory
}

func create[T any](r *Registry, f factories[T], kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := f[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}
