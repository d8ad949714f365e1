package core

import (
	"context"
	"sync"

	"github.com/protonlab/scantime/core/doserate"
)

// ProviderPool shares doserate providers between the runs of one session,
// keeping one registry per memo size.
type ProviderPool struct {
	mu         sync.Mutex
	registries map[int]*doserate.Registry
}

// NewProviderPool returns an empty pool.
func NewProviderPool() *ProviderPool {
	return &ProviderPool{registries: map[int]*doserate.Registry{}}
}

// Provider returns the pooled provider for the table at path.
func (p *ProviderPool) Provider(path string, cacheSize int) *doserate.Provider {
	p.mu.Lock()
	reg, ok := p.registries[cacheSize]
	if !ok {
		reg = doserate.NewRegistry(doserate.WithCacheSize(cacheSize))
		p.registries[cacheSize] = reg
	}
	p.mu.Unlock()
	return reg.Get(path)
}

// providerFor resolves a provider through the pool attached to ctx.
// Without a pool every call reads the table afresh.
func providerFor(ctx context.Context, path string, cacheSize int) *doserate.Provider {
	pool := providerPool(ctx)
	if pool == nil {
		pool = NewProviderPool()
	}
	return pool.Provider(path, cacheSize)
}
