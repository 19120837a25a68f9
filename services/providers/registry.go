package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ModelSeparator splits a model identifier into its provider prefix and the rest
const ModelSeparator = "-"

// Registry maps case-insensitive provider names to Provider instances
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register binds name to provider, replacing any previous binding
func (r *Registry) Register(name string, provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	key := NormalizeName(name)
	if key == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[key] = provider
	return nil
}

// Unregister removes a provider from the registry
func (r *Registry) Unregister(name string) error {
	key := NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[key]; !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	delete(r.providers, key)
	return nil
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[NormalizeName(name)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return provider, nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[NormalizeName(name)]
	return exists
}

// Names returns all registered provider names in lexical order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// NormalizeName returns the registry key for a provider name
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ProviderNameForModel derives a provider name from a model identifier:
// the lowercased segment before the first separator ("DeepSeek-R1" -> "deepseek").
// Model names that do not follow the convention resolve to whatever their first
// segment is, so callers must register providers under matching prefixes.
func ProviderNameForModel(model string) string {
	prefix, _, _ := strings.Cut(strings.TrimSpace(model), ModelSeparator)
	return NormalizeName(prefix)
}
