package recorder

import (
	"testing"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

func TestResolveBuiltinCounties(t *testing.T) {
	reg := NewRegistry(Deps{})

	for _, county := range []string{"denver", "Denver", "  EL  PASO "} {
		adapter, err := reg.Resolve(county, nil)
		if err != nil {
			t.Errorf("Resolve(%q): %v", county, err)
			continue
		}
		if adapter == nil {
			t.Errorf("Resolve(%q) returned nil adapter", county)
		}
	}
}

func TestResolveExplicitRegistrationWins(t *testing.T) {
	reg := NewRegistry(Deps{})

	marker := &Generic{cfg: &domain.JurisdictionConfig{Name: "custom denver"}}
	reg.Register("Denver", func(*domain.JurisdictionConfig, Deps) ports.RecorderAdapter {
		return marker
	})

	adapter, err := reg.Resolve("denver", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if adapter != ports.RecorderAdapter(marker) {
		t.Error("explicit registration must shadow the builtin adapter")
	}
}

func TestResolveByConfiguredAdapterName(t *testing.T) {
	reg := NewRegistry(Deps{})

	cfg := &domain.JurisdictionConfig{
		Name:        "arapahoe",
		AdapterName: "generic",
		RecorderURL: "https://records.example/search",
	}
	adapter, err := reg.Resolve("arapahoe", cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if adapter.Jurisdiction() != "arapahoe" {
		t.Errorf("jurisdiction = %q", adapter.Jurisdiction())
	}
}

func TestResolveFallsBackToGenericOnRecorderURL(t *testing.T) {
	reg := NewRegistry(Deps{})

	cfg := &domain.JurisdictionConfig{Name: "jefferson", RecorderURL: "https://records.example/search"}
	if _, err := reg.Resolve("jefferson", cfg); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

func TestResolveUnknownCountyIsTerminal(t *testing.T) {
	reg := NewRegistry(Deps{})

	_, err := reg.Resolve("gunnison", nil)
	if !domain.IsKind(err, domain.ErrJurisdictionUnsupported) {
		t.Fatalf("err = %v, want jurisdiction unsupported", err)
	}
	if domain.Retryable(err) {
		t.Error("unsupported jurisdiction must not be retryable")
	}

	// Configuration without a recorder URL is equally unsupported.
	if _, err := reg.Resolve("gunnison", &domain.JurisdictionConfig{Name: "gunnison"}); err == nil {
		t.Error("expected error for config without recorder url")
	}
}
