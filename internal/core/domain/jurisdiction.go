package domain

import (
	"strings"
	"time"
)

type JurisdictionKind string

const (
	JurisdictionRecorder JurisdictionKind = "recorder"
	JurisdictionCourt    JurisdictionKind = "court"
)

// JurisdictionConfig holds per-county (or per-state, for courts)
// sourcing configuration plus health counters. Health counters are the
// only cross-search shared mutable state; they are updated with atomic
// repository increments, never read-modify-write.
type JurisdictionConfig struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	State           string            `json:"state"`
	Kind            JurisdictionKind  `json:"kind"`
	FIPSCode        string            `json:"fips_code,omitempty"`
	RecorderURL     string            `json:"recorder_url,omitempty"`
	CourtRecordsURL string            `json:"court_records_url,omitempty"`
	ScrapingEnabled bool              `json:"scraping_enabled"`
	AdapterName     string            `json:"adapter_name,omitempty"`
	Selectors       map[string]string `json:"selectors,omitempty"`

	RequestsPerMinute int `json:"requests_per_minute"`
	RequestDelayMS    int `json:"request_delay_ms"`

	FallbackAPIEnabled  bool   `json:"fallback_api_enabled"`
	FallbackAPIProvider string `json:"fallback_api_provider,omitempty"`

	ConsecutiveFailures int        `json:"consecutive_failures"`
	IsHealthy           bool       `json:"is_healthy"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeJurisdiction is the canonical key form used by registries
// and repositories: lower-cased, trimmed, single-spaced.
func NormalizeJurisdiction(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}
