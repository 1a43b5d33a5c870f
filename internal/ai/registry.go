package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ProviderFactory builds a provider for one resolved model name.
type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry maps provider names (AI_PROVIDER) to factories. Each registration
// carries the provider's default model, so callers can pass an empty model
// and get the configured one; the webhook and the worker resolve providers
// the same way through it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
	defaults  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		defaults:  make(map[string]string),
	}
}

// Register adds a provider factory under a case-insensitive name.
// defaultModel is used whenever Get is called with an empty model.
func (r *Registry) Register(name, defaultModel string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	r.defaults[name] = strings.TrimSpace(defaultModel)
}

// Get builds a provider, falling back to the registered default model when
// model is empty.
func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	def := r.defaults[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = def
	}
	return f(ctx, model)
}
