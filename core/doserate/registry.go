package doserate

import "sync"

// Registry shares one Provider per table path, so each file is read once per registry.
type Registry struct {
	mu        sync.Mutex
	providers map[string]*Provider
	opts      []Option
}

// NewRegistry creates an empty registry; opts apply to every provider it creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		providers: make(map[string]*Provider),
		opts:      opts,
	}
}

// Get returns the provider for the path, creating it on first request.
func (r *Registry) Get(path string) *Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[path]; ok {
		return p
	}
	p := FromFile(path, r.opts...)
	r.providers[path] = p
	return p
}

// Len returns the number of providers created so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.providers)
}
