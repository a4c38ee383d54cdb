package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

const seedYAML = `
jurisdictions:
  - name: Denver
    state: CO
    kind: recorder
    fips_code: "08031"
    recorder_url: https://records.example/denver
    adapter: denver
    requests_per_minute: 12
    request_delay_ms: 1500
    fallback_api_enabled: true
    fallback_api_provider: datatree
  - name: Boulder
    state: CO
    scraping_enabled: false
  - name: Colorado
    state: CO
    kind: court
    court_records_url: https://courts.example/co
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jurisdictions.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestLoadJurisdictionSeed(t *testing.T) {
	configs, err := LoadJurisdictionSeed(writeSeed(t, seedYAML))
	if err != nil {
		t.Fatalf("LoadJurisdictionSeed: %v", err)
	}
	if len(configs) != 3 {
		t.Fatalf("configs = %d, want 3", len(configs))
	}

	denver := configs[0]
	if denver.Name != "denver" {
		t.Errorf("name = %q, want normalized %q", denver.Name, "denver")
	}
	if denver.Kind != domain.JurisdictionRecorder || denver.AdapterName != "denver" {
		t.Errorf("denver = %+v", denver)
	}
	if denver.RequestsPerMinute != 12 || denver.RequestDelayMS != 1500 {
		t.Errorf("rate config = %d/%d", denver.RequestsPerMinute, denver.RequestDelayMS)
	}
	if !denver.FallbackAPIEnabled || denver.FallbackAPIProvider != "datatree" {
		t.Errorf("fallback = %v/%q", denver.FallbackAPIEnabled, denver.FallbackAPIProvider)
	}
	if !denver.IsHealthy {
		t.Error("seeded jurisdictions start healthy")
	}

	boulder := configs[1]
	if boulder.Kind != domain.JurisdictionRecorder {
		t.Errorf("kind defaults to recorder, got %s", boulder.Kind)
	}
	if boulder.ScrapingEnabled {
		t.Error("scraping_enabled: false must be honored")
	}
	if boulder.RequestsPerMinute != 10 || boulder.RequestDelayMS != 2000 {
		t.Errorf("rate defaults = %d/%d", boulder.RequestsPerMinute, boulder.RequestDelayMS)
	}

	court := configs[2]
	if court.Kind != domain.JurisdictionCourt || court.CourtRecordsURL == "" {
		t.Errorf("court = %+v", court)
	}
}

func TestLoadJurisdictionSeedDefaultsScrapingOn(t *testing.T) {
	configs, err := LoadJurisdictionSeed(writeSeed(t, "jurisdictions:\n  - name: Denver\n    state: CO\n"))
	if err != nil {
		t.Fatalf("LoadJurisdictionSeed: %v", err)
	}
	if !configs[0].ScrapingEnabled {
		t.Error("scraping defaults to enabled when omitted")
	}
}

func TestLoadJurisdictionSeedMissingFile(t *testing.T) {
	configs, err := LoadJurisdictionSeed(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if configs != nil {
		t.Errorf("configs = %v, want nil", configs)
	}
}

func TestLoadJurisdictionSeedRejectsBadYAML(t *testing.T) {
	if _, err := LoadJurisdictionSeed(writeSeed(t, "jurisdictions: [")); err == nil {
		t.Error("expected parse error")
	}
}
