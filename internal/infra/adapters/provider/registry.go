package provider

import (
	"sort"

	"mayagen/internal/domain"
	"mayagen/internal/domain/ports/adapter"
)

// Registry maps provider names to adapters. Populated once at startup,
// read-only afterwards, so no locking.
type Registry struct {
	providers map[string]adapter.ImageProvider
}

func NewRegistry(providers ...adapter.ImageProvider) *Registry {
	m := make(map[string]adapter.ImageProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(name string) (adapter.ImageProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
