// Package provider maps stored bank provider rows to API clients.
package provider

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/anoteng/regnskap/internal/banksync/provider/enablebanking"
	"github.com/anoteng/regnskap/internal/config"
)

// Factory builds a client for a provider row. httpClient carries the
// configured timeout.
type Factory func(provider domain.Provider, httpClient *http.Client) (domain.Client, error)

type Registry struct {
	mu         sync.RWMutex
	factories  map[string]Factory
	httpClient *http.Client
}

func NewRegistry(httpClient *http.Client) *Registry {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Registry{
		factories:  make(map[string]Factory),
		httpClient: httpClient,
	}
}

// Provide returns a registry with the built-in providers registered.
func Provide(cfg config.Config) *Registry {
	registry := NewRegistry(&http.Client{Timeout: cfg.BankSync.HTTPTimeout})
	registry.Register(enablebanking.Name, enablebanking.New)
	return registry
}

func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Client(provider domain.Provider) (domain.Client, error) {
	if !provider.IsActive {
		return nil, domain.ErrProviderInactive
	}
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(strings.TrimSpace(provider.Name))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, provider.Name)
	}
	return factory(provider, r.httpClient)
}
