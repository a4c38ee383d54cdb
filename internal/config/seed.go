package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

type seedFile struct {
	Jurisdictions []seedJurisdiction `yaml:"jurisdictions"`
}

type seedJurisdiction struct {
	Name                string            `yaml:"name"`
	State               string            `yaml:"state"`
	Kind                string            `yaml:"kind"`
	FIPSCode            string            `yaml:"fips_code"`
	RecorderURL         string            `yaml:"recorder_url"`
	CourtRecordsURL     string            `yaml:"court_records_url"`
	ScrapingEnabled     *bool             `yaml:"scraping_enabled"`
	AdapterName         string            `yaml:"adapter"`
	Selectors           map[string]string `yaml:"selectors"`
	RequestsPerMinute   int               `yaml:"requests_per_minute"`
	RequestDelayMS      int               `yaml:"request_delay_ms"`
	FallbackAPIEnabled  bool              `yaml:"fallback_api_enabled"`
	FallbackAPIProvider string            `yaml:"fallback_api_provider"`
}

// LoadJurisdictionSeed reads the jurisdiction seed file. A missing file
// is not an error: deployments may manage jurisdictions entirely
// through the database.
func LoadJurisdictionSeed(path string) ([]domain.JurisdictionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jurisdiction seed: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse jurisdiction seed: %w", err)
	}

	out := make([]domain.JurisdictionConfig, 0, len(file.Jurisdictions))
	for _, j := range file.Jurisdictions {
		kind := domain.JurisdictionKind(j.Kind)
		if kind == "" {
			kind = domain.JurisdictionRecorder
		}
		enabled := true
		if j.ScrapingEnabled != nil {
			enabled = *j.ScrapingEnabled
		}
		rpm := j.RequestsPerMinute
		if rpm <= 0 {
			rpm = 10
		}
		delay := j.RequestDelayMS
		if delay <= 0 {
			delay = 2000
		}
		out = append(out, domain.JurisdictionConfig{
			Name:                domain.NormalizeJurisdiction(j.Name),
			State:               j.State,
			Kind:                kind,
			FIPSCode:            j.FIPSCode,
			RecorderURL:         j.RecorderURL,
			CourtRecordsURL:     j.CourtRecordsURL,
			ScrapingEnabled:     enabled,
			AdapterName:         j.AdapterName,
			Selectors:           j.Selectors,
			RequestsPerMinute:   rpm,
			RequestDelayMS:      delay,
			FallbackAPIEnabled:  j.FallbackAPIEnabled,
			FallbackAPIProvider: j.FallbackAPIProvider,
			IsHealthy:           true,
		})
	}
	return out, nil
}
