package ai

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

type ProviderFactory func(ctx context.Context, route Route) (Provider, error)

// Registry maps backends to provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Backend]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Backend]ProviderFactory)}
}

func (r *Registry) Register(backend Backend, f ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[backend] = f
}

// Get validates route and builds a provider for it.
func (r *Registry) Get(ctx context.Context, route Route) (Provider, error) {
	if err := route.Validate(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.factories[route.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai backend: %s", route.Backend)
	}
	return f(ctx, route)
}

// NewDefaultRegistry wires the real providers: the self-hosted endpoint, and
// the primary provider for both the proxy and direct routes. primaryBaseURL
// applies on the direct route, which carries no base URL of its own.
func NewDefaultRegistry(client *http.Client, primaryBaseURL string) *Registry {
	if client == nil {
		client = NewHTTPClient()
	}
	r := NewRegistry()
	r.Register(BackendSelfHosted, func(ctx context.Context, route Route) (Provider, error) {
		return NewSelfHostedProvider(route, client), nil
	})
	primary := func(ctx context.Context, route Route) (Provider, error) {
		p, err := NewTogetherProvider(ctx, route, primaryBaseURL, client)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	r.Register(BackendProxy, primary)
	r.Register(BackendDirect, primary)
	return r
}
