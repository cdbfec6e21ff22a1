// Package registry implements the Adapter Registry (spec.md §4.4, C3): an
// ordered lookup from site id or page URL to the Site Adapter that knows
// how to drive it.
package registry

import (
	"sync"

	"github.com/dgnsrekt/browserbridge/internal/adapter"
	"github.com/dgnsrekt/browserbridge/internal/bridgeerr"
)

// Registry holds the adapters known to this bridge instance, preserving
// registration order so GetByURL's first-match-wins rule is deterministic.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]adapter.Adapter
	ordered  []adapter.Adapter
}

// New builds a Registry pre-populated with adapters, in order.
func New(adapters ...adapter.Adapter) *Registry {
	r := &Registry{byID: make(map[string]adapter.Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter by its WebsiteID.
func (r *Registry) Register(a adapter.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[a.WebsiteID()]; !exists {
		r.ordered = append(r.ordered, a)
	} else {
		for i, existing := range r.ordered {
			if existing.WebsiteID() == a.WebsiteID() {
				r.ordered[i] = a
				break
			}
		}
	}
	r.byID[a.WebsiteID()] = a
}

// GetByID returns the adapter registered under id.
func (r *Registry) GetByID(id string) (adapter.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, bridgeerr.AdapterMissing(id, "")
	}
	return a, nil
}

// GetByURL returns the first registered adapter whose MatchesURL matches
// url, in registration order.
func (r *Registry) GetByURL(url string) (adapter.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.ordered {
		if a.MatchesURL(url) {
			return a, nil
		}
	}
	return nil, bridgeerr.AdapterMissing("", url)
}

// SupportedWebsites returns the website ids known to this registry, in
// registration order.
func (r *Registry) SupportedWebsites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.ordered))
	for i, a := range r.ordered {
		ids[i] = a.WebsiteID()
	}
	return ids
}
