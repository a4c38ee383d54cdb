package recorder

import (
	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

// NewElPaso builds the adapter for the El Paso County recorder portal.
// El Paso's portal indexes by reception number and labels the party
// columns reversed relative to most Colorado portals.
func NewElPaso(cfg *domain.JurisdictionConfig, deps Deps) ports.RecorderAdapter {
	merged := elPasoDefaults()
	applyOverrides(merged, cfg)
	return NewGeneric(merged, deps)
}

func elPasoDefaults() *domain.JurisdictionConfig {
	return &domain.JurisdictionConfig{
		Name:              "el paso",
		State:             "CO",
		Kind:              domain.JurisdictionRecorder,
		RecorderURL:       "https://recordingsearch.car.elpasoco.com/rsui/opr/search.aspx",
		ScrapingEnabled:   true,
		RequestsPerMinute: 5,
		RequestDelayMS:    3000,
		IsHealthy:         true,
		Selectors: map[string]string{
			"parcel_param":   "ScheduleNumber",
			"party_param":    "PartyName",
			"from_param":     "RecordDateFrom",
			"to_param":       "RecordDateTo",
			"date_format":    "01/02/2006",
			"results_table":  "gvSearchResults",
			"col_instrument": "0",
			"col_type":       "1",
			"col_date":       "2",
			// Party columns are swapped on this portal.
			"col_grantor":       "4",
			"col_grantee":       "3",
			"col_consideration": "5",
		},
	}
}
