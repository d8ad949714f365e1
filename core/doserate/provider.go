package doserate

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/protonlab/scantime/internal/contract"
)

// DefaultCacheSize bounds the number of memoized energies.
const DefaultCacheSize = 256

// TableSource produces the reference table. It is called at most once per Provider.
type TableSource func() (Table, error)

// Stats describes the state of a Provider.
type Stats struct {
	Rows   int   `json:"rows"`
	Cached int   `json:"cached"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Provider answers dose-rate ceiling lookups from a lazily loaded table.
// It is safe for concurrent use.
type Provider struct {
	name      string
	source    TableSource
	warn      func(msg string, err error)
	cacheSize int

	once   sync.Once
	table  Table
	digest string
	err    error

	cache  *lru.Cache[float64, float64]
	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Provider.
type Option func(*Provider)

// WithCacheSize sets the memo capacity. Non-positive values keep the default.
func WithCacheSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.cacheSize = n
		}
	}
}

// WithWarnFunc replaces the function used to report a degraded table.
func WithWarnFunc(fn func(msg string, err error)) Option {
	return func(p *Provider) {
		if fn != nil {
			p.warn = fn
		}
	}
}

// WithName labels the provider in warnings.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// NewProvider creates a provider over an arbitrary table source.
func NewProvider(source TableSource, opts ...Option) *Provider {
	p := &Provider{
		name:      "doserate table",
		source:    source,
		warn:      contract.LogWarn,
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	// Only fails for a non-positive size, which the options rule out.
	p.cache, _ = lru.New[float64, float64](p.cacheSize)
	return p
}

// FromFile creates a provider that reads a CSV table on first use.
func FromFile(path string, opts ...Option) *Provider {
	opts = append([]Option{WithName(path)}, opts...)
	return NewProvider(func() (Table, error) { return LoadTableFile(path) }, opts...)
}

// FromTable creates a provider over an in-memory table.
func FromTable(t Table, opts ...Option) *Provider {
	return NewProvider(func() (Table, error) {
		if len(t) == 0 {
			return nil, fmt.Errorf("%w: no rows", ErrTableUnavailable)
		}
		return t, nil
	}, opts...)
}

func (p *Provider) load() {
	p.once.Do(func() {
		table, err := p.source()
		if err != nil {
			if !errors.Is(err, ErrTableUnavailable) {
				err = fmt.Errorf("%w: %w", ErrTableUnavailable, err)
			}
			p.err = err
			p.warn(fmt.Sprintf("Using zero dose-rate ceiling, cannot load %s", p.name), err)
			return
		}
		p.table = table
		p.digest = table.Digest()
	})
}

// MaxDoseRate returns the ceiling (MU/s) for the energy, or 0 when no row matches
// or the table is unavailable.
func (p *Provider) MaxDoseRate(energy float64) float64 {
	p.load()
	if p.err != nil {
		return 0
	}

	cacheable := !math.IsNaN(energy)
	if cacheable {
		if rate, ok := p.cache.Get(energy); ok {
			p.hits.Add(1)
			return rate
		}
	}
	p.misses.Add(1)

	rate := p.table.Lookup(energy)
	if cacheable {
		p.cache.Add(energy, rate)
	}
	return rate
}

// Err reports why the table is unavailable, or nil.
func (p *Provider) Err() error {
	p.load()
	return p.err
}

// Digest identifies the loaded table content. It is empty when the table is unavailable.
func (p *Provider) Digest() string {
	p.load()
	return p.digest
}

// Name returns the provider label, usually the table path.
func (p *Provider) Name() string {
	return p.name
}

// Stats reports table size and memo usage.
func (p *Provider) Stats() Stats {
	p.load()
	return Stats{
		Rows:   len(p.table),
		Cached: p.cache.Len(),
		Hits:   p.hits.Load(),
		Misses: p.misses.Load(),
	}
}

// Reset clears the memo and its counters. The table stays loaded.
func (p *Provider) Reset() {
	p.cache.Purge()
	p.hits.Store(0)
	p.misses.Store(0)
}
