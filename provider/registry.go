package provider

import (
	"fmt"
	"sync"
)

// Registry maps a generation kind to its ordered provider chain: the first
// client is the primary, the rest are fallbacks tried in order when a
// submission fails.
type Registry struct {
	mu     sync.RWMutex
	chains map[string][]Client
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		chains: make(map[string][]Client),
	}
}

// Register sets the provider chain for a generation kind
func (r *Registry) Register(kind string, clients ...Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[kind] = clients
}

// ChainFor returns the provider chain for a generation kind
func (r *Registry) ChainFor(kind string) ([]Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain, ok := r.chains[kind]
	if !ok || len(chain) == 0 {
		return nil, fmt.Errorf("no provider registered for kind %q", kind)
	}
	return chain, nil
}

// ByName returns the registered client with the given name. Used by the
// poller to resolve the provider recorded on a job.
func (r *Registry) ByName(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, chain := range r.chains {
		for _, client := range chain {
			if client.Name() == name {
				return client, nil
			}
		}
	}
	return nil, fmt.Errorf("no provider registered with name %q", name)
}
