package sources

import (
	"context"
	"errors"

	"github.com/marketlens/marketlens/config"
	"github.com/marketlens/marketlens/core"
)

// Source defines a pluggable upstream provider capable of fetching market
// events. Concrete scrapers (RSS, filings, rate boards) implement this
// contract; the ingestion coordinator only sees the interface.
type Source interface {
	Name() string
	Fetch(ctx context.Context, cfg config.Config) ([]core.Event, error)
}

// FetchFunc adapts a bare function into a Source.
type FetchFunc func(ctx context.Context, cfg config.Config) ([]core.Event, error)

type funcSource struct {
	name string
	fn   FetchFunc
}

// New wraps a fetch function as a named Source.
func New(name string, fn FetchFunc) (Source, error) {
	if name == "" {
		return nil, errors.New("sources: source requires a name")
	}
	if fn == nil {
		return nil, errors.New("sources: source requires a fetch function")
	}
	return &funcSource{name: name, fn: fn}, nil
}

func (s *funcSource) Name() string { return s.name }

func (s *funcSource) Fetch(ctx context.Context, cfg config.Config) ([]core.Event, error) {
	return s.fn(ctx, cfg)
}

// Registry keeps track of available sources and applies the configured
// enable/disable filtering.
type Registry struct {
	sources []Source
}

// NewRegistry builds a registry with the provided sources.
func NewRegistry(sources ...Source) *Registry {
	return &Registry{sources: sources}
}

// Add registers a new source instance.
func (r *Registry) Add(source Source) {
	r.sources = append(r.sources, source)
}

// All returns every registered source.
func (r *Registry) All() []Source {
	return append([]Source(nil), r.sources...)
}

// Enabled returns the sources that should run under the given configuration.
func (r *Registry) Enabled(cfg config.Config) []Source {
	var enabled []Source
	for _, source := range r.sources {
		if cfg.SourceEnabled(source.Name()) {
			enabled = append(enabled, source)
		}
	}
	return enabled
}

// SeedFunc produces the synthetic fallback events. The concrete generator is
// an external collaborator; the coordinator only invokes it under the seed
// fallback policy.
type SeedFunc func() []core.Event

// QuoteFunc fetches the latest quote snapshots for tracked assets. Best
// effort: an error is recorded in the refresh report without failing the
// cycle.
type QuoteFunc func(ctx context.Context, cfg config.Config) (map[string]core.QuoteSnapshot, error)
