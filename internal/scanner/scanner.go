package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsStream/internal/domain"
)

// Source is a single feed adapter.
//
// FetchRecent returns the feed's current listing; items may come back without
// a timestamp when the listing does not carry one. FetchTimestamp resolves such
// an item and must be safe for concurrent use.
type Source interface {
	Name() string
	FetchRecent(ctx context.Context) ([]domain.Item, error)
	FetchTimestamp(ctx context.Context, item domain.Item) (time.Time, error)
}

// Site is the configuration of one adapter instance.
type Site struct {
	Name    string
	Kind    string
	URL     string
	Options map[string]string
}

// Factory builds a source for a configured site.
type Factory func(site Site, logger *slog.Logger) (Source, error)

// Registry keeps a mapping from scanner kinds to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds or replaces a factory for kind.
func (r *Registry) Register(kind string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[kind] = factory
}

// Resolve returns a factory by kind or an error if it is absent.
func (r *Registry) Resolve(kind string) (Factory, error) {
	if factory, ok := r.factories[kind]; ok {
		return factory, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", kind)
}

// Build instantiates sources for sites, keeping their order.
func (r *Registry) Build(sites []Site, logger *slog.Logger) ([]Source, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sources := make([]Source, 0, len(sites))
	seen := make(map[string]struct{}, len(sites))
	for _, site := range sites {
		if _, dup := seen[site.Name]; dup {
			return nil, fmt.Errorf("site %s is configured twice", site.Name)
		}
		seen[site.Name] = struct{}{}

		factory, err := r.Resolve(site.Kind)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}
		source, err := factory(site, logger.With("component", "scanner."+site.Name))
		if err != nil {
			return nil, fmt.Errorf("build site %s: %w", site.Name, err)
		}
		sources = append(sources, source)
	}
	return sources, nil
}
