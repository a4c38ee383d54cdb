package recorder

import (
	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

// NewDenver builds the adapter for the Denver Clerk & Recorder search
// portal. Denver runs a stock records portal, so the bespoke part is
// only the fixed URL and column layout; the generic HTTP/table engine
// does the rest.
func NewDenver(cfg *domain.JurisdictionConfig, deps Deps) ports.RecorderAdapter {
	merged := denverDefaults()
	applyOverrides(merged, cfg)
	return NewGeneric(merged, deps)
}

func denverDefaults() *domain.JurisdictionConfig {
	return &domain.JurisdictionConfig{
		Name:              "denver",
		State:             "CO",
		Kind:              domain.JurisdictionRecorder,
		RecorderURL:       "https://countyfusion.kofiletech.us/countyweb/denver/search",
		ScrapingEnabled:   true,
		RequestsPerMinute: 10,
		RequestDelayMS:    2000,
		IsHealthy:         true,
		Selectors: map[string]string{
			"parcel_param":      "parcelNumber",
			"party_param":       "partyName",
			"from_param":        "beginDate",
			"to_param":          "endDate",
			"date_format":       "01/02/2006",
			"results_table":     "searchResults",
			"col_instrument":    "0",
			"col_type":          "1",
			"col_date":          "2",
			"col_grantor":       "3",
			"col_grantee":       "4",
			"col_consideration": "5",
		},
	}
}

// applyOverrides lets stored configuration tune a bespoke adapter
// (rate limits, replacement URL) without losing its defaults.
func applyOverrides(base, cfg *domain.JurisdictionConfig) {
	if cfg == nil {
		return
	}
	if cfg.RecorderURL != "" {
		base.RecorderURL = cfg.RecorderURL
	}
	if cfg.RequestsPerMinute > 0 {
		base.RequestsPerMinute = cfg.RequestsPerMinute
	}
	if cfg.RequestDelayMS > 0 {
		base.RequestDelayMS = cfg.RequestDelayMS
	}
	for k, v := range cfg.Selectors {
		base.Selectors[k] = v
	}
}
