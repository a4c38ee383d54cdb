package court

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/resilience"
)

// Factory builds a court-records adapter for one state.
type Factory func(cfg *domain.JurisdictionConfig, deps Deps) ports.CourtAdapter

type Deps struct {
	HTTPClient *http.Client
	Executor   *resilience.Executor
}

// Registry mirrors the recorder resolution pattern, keyed by state
// instead of county.
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

func (r *Registry) Register(state string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[domain.NormalizeJurisdiction(state)] = factory
}

var builtin = map[string]Factory{
	"co": NewColorado,
}

func (r *Registry) Resolve(state string, cfg *domain.JurisdictionConfig) (ports.CourtAdapter, error) {
	key := domain.NormalizeJurisdiction(state)

	r.mu.RLock()
	factory, ok := r.registered[key]
	r.mu.RUnlock()
	if ok {
		return factory(cfg, r.deps), nil
	}

	if factory, ok := builtin[key]; ok {
		return factory(cfg, r.deps), nil
	}

	return nil, domain.WrapError(domain.ErrJurisdictionUnsupported, "resolve court adapter",
		fmt.Errorf("no court adapter for state %q", state))
}
