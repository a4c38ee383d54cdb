package recorder

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/resilience"
)

// Factory builds an adapter instance for one jurisdiction's config.
type Factory func(cfg *domain.JurisdictionConfig, deps Deps) ports.RecorderAdapter

// Deps are the shared collaborators every adapter construction gets.
type Deps struct {
	HTTPClient *http.Client
	Executor   *resilience.Executor
}

// Registry resolves a county to a concrete adapter. It is built once
// during process initialization and read-only thereafter, so lookups
// are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	registered map[string]Factory
	deps       Deps
}

func NewRegistry(deps Deps) *Registry {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	return &Registry{
		registered: make(map[string]Factory),
		deps:       deps,
	}
}

// Register installs an explicit adapter factory for a county.
// Registration is idempotent: re-registering a county replaces the
// previous factory. Safe to call before any resolution.
func (r *Registry) Register(county string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[domain.NormalizeJurisdiction(county)] = factory
}

// builtin adapters for counties with bespoke scraping logic. Consulted
// after explicit registrations, before configuration.
var builtin = map[string]Factory{
	"denver":  NewDenver,
	"el paso": NewElPaso,
}

// byAdapterName maps configuration-declared adapter selectors to
// factories. The original system stored adapter class names in county
// configuration rows; here the name is a pure map key.
var byAdapterName = map[string]Factory{
	"denver":  NewDenver,
	"el paso": NewElPaso,
	"el_paso": NewElPaso,
	"generic": NewGeneric,
}

// Resolve picks the adapter for a county, first match wins:
// explicit registration, builtin map, configuration-declared adapter,
// then the generic adapter if the configuration carries a recorder URL.
// Anything else is an unsupported jurisdiction, which callers must
// treat as terminal, not retryable.
func (r *Registry) Resolve(county string, cfg *domain.JurisdictionConfig) (ports.RecorderAdapter, error) {
	key := domain.NormalizeJurisdiction(county)

	r.mu.RLock()
	factory, ok := r.registered[key]
	r.mu.RUnlock()
	if ok {
		return factory(cfg, r.deps), nil
	}

	if factory, ok := builtin[key]; ok {
		return factory(cfg, r.deps), nil
	}

	if cfg != nil {
		if name := domain.NormalizeJurisdiction(cfg.AdapterName); name != "" {
			if factory, ok := byAdapterName[name]; ok {
				return factory(cfg, r.deps), nil
			}
		}
		if cfg.RecorderURL != "" {
			return NewGeneric(cfg, r.deps), nil
		}
	}

	return nil, domain.WrapError(domain.ErrJurisdictionUnsupported, "resolve recorder adapter",
		fmt.Errorf("no adapter for county %q", county))
}
