package provider

import (
	"net/http"
	"sync"

	"aitester/config"
	"aitester/model"
)

// Registry owns one provider per configured id, built from an immutable
// settings snapshot. Reconfigure swaps in a fresh set; callers holding a
// provider from an older snapshot keep a working instance until they
// resolve again.
type Registry struct {
	mu         sync.RWMutex
	cfg        *config.Config
	providers  map[string]model.Provider
	order      []string
	httpClient *http.Client
}

// NewRegistry builds every provider in cfg. httpClient may be nil.
func NewRegistry(cfg *config.Config, httpClient *http.Client) *Registry {
	r := &Registry{httpClient: httpClient}
	r.Reconfigure(cfg)
	return r
}

// Reconfigure rebuilds all providers from a new settings snapshot.
func (r *Registry) Reconfigure(cfg *config.Config) {
	providers, order := buildProviders(cfg, r.httpClient)

	r.mu.Lock()
	r.cfg = cfg
	r.providers = providers
	r.order = order
	r.mu.Unlock()
}

// Resolve returns the provider for id, or *model.NotFoundError.
func (r *Registry) Resolve(id string) (model.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, &model.NotFoundError{ID: id}
	}
	return p, nil
}

// List returns every provider in display order.
func (r *Registry) List() []model.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]model.Provider, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, r.providers[id])
	}
	return list
}

// Settings returns the snapshot the current providers were built from.
func (r *Registry) Settings() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// buildProviders creates every provider the snapshot has settings for.
// A provider whose settings are unusable is logged and left out so the
// rest stay available.
func buildProviders(cfg *config.Config, httpClient *http.Client) (map[string]model.Provider, []string) {
	providers := make(map[string]model.Provider, len(config.ProviderIDs))
	order := make([]string, 0, len(config.ProviderIDs))

	for _, id := range config.ProviderIDs {
		pcfg, ok := ConfigFor(cfg, id, httpClient)
		if !ok {
			continue
		}

		p, err := NewProvider(pcfg)
		if err != nil {
			if config.Debug {
				config.DebugLog.Printf("[Provider] Warning: failed to initialize provider %s: %v", id, err)
			}
			continue
		}

		providers[id] = p
		order = append(order, id)
		if config.Debug {
			config.DebugLog.Printf("[Provider] Initialized provider: %s (%s)", id, pcfg.BaseURL)
		}
	}

	return providers, order
}
