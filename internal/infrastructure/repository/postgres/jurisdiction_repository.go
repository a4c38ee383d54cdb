package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

type JurisdictionRepository struct {
	db *sql.DB
}

var _ ports.JurisdictionRepository = (*JurisdictionRepository)(nil)

func NewJurisdictionRepository(db *sql.DB) *JurisdictionRepository {
	return &JurisdictionRepository{db: db}
}

const jurisdictionColumns = `
id, name, state, kind, fips_code, recorder_url, court_records_url,
scraping_enabled, adapter_name, selectors, requests_per_minute,
request_delay_ms, fallback_api_enabled, fallback_api_provider,
consecutive_failures, is_healthy, last_success_at, last_failure_at,
created_at, updated_at`

func (r *JurisdictionRepository) GetByName(ctx context.Context, name string, kind domain.JurisdictionKind) (*domain.JurisdictionConfig, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+jurisdictionColumns+`
FROM jurisdictions
WHERE name = $1 AND kind = $2
`, domain.NormalizeJurisdiction(name), string(kind))
	return scanJurisdiction(row)
}

func (r *JurisdictionRepository) ListEnabled(ctx context.Context, kind domain.JurisdictionKind) ([]domain.JurisdictionConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+jurisdictionColumns+`
FROM jurisdictions
WHERE kind = $1 AND scraping_enabled = TRUE
ORDER BY name
`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list jurisdictions: %w", err)
	}
	defer rows.Close()

	var configs []domain.JurisdictionConfig
	for rows.Next() {
		cfg, err := scanJurisdiction(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jurisdictions: %w", err)
	}
	return configs, nil
}

func scanJurisdiction(row rowScanner) (*domain.JurisdictionConfig, error) {
	var cfg domain.JurisdictionConfig
	var kind string
	var fips, recorderURL, courtURL, adapterName, provider sql.NullString
	var selectorsRaw []byte

	err := row.Scan(
		&cfg.ID, &cfg.Name, &cfg.State, &kind, &fips, &recorderURL, &courtURL,
		&cfg.ScrapingEnabled, &adapterName, &selectorsRaw, &cfg.RequestsPerMinute,
		&cfg.RequestDelayMS, &cfg.FallbackAPIEnabled, &provider,
		&cfg.ConsecutiveFailures, &cfg.IsHealthy, &cfg.LastSuccessAt,
		&cfg.LastFailureAt, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJurisdictionUnsupported
		}
		return nil, fmt.Errorf("scan jurisdiction: %w", err)
	}

	if len(selectorsRaw) > 0 {
		if err := json.Unmarshal(selectorsRaw, &cfg.Selectors); err != nil {
			return nil, fmt.Errorf("unmarshal selectors: %w", err)
		}
	}
	cfg.Kind = domain.JurisdictionKind(kind)
	cfg.FIPSCode = fips.String
	cfg.RecorderURL = recorderURL.String
	cfg.CourtRecordsURL = courtURL.String
	cfg.AdapterName = adapterName.String
	cfg.FallbackAPIProvider = provider.String
	return &cfg, nil
}

// RecordSuccess resets the failure streak. A single success restores
// health regardless of how many failures preceded it.
func (r *JurisdictionRepository) RecordSuccess(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE jurisdictions
SET consecutive_failures = 0,
    is_healthy = TRUE,
    last_success_at = $2,
    updated_at = $2
WHERE id = $1
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record jurisdiction success: %w", err)
	}
	return nil
}

// RecordFailure bumps the streak atomically and flips health when the
// threshold is crossed, in one statement so concurrent searches never
// lose an increment.
func (r *JurisdictionRepository) RecordFailure(ctx context.Context, id string, unhealthyAfter int) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE jurisdictions
SET consecutive_failures = consecutive_failures + 1,
    is_healthy = (consecutive_failures + 1) < $2,
    last_failure_at = $3,
    updated_at = $3
WHERE id = $1
`, id, unhealthyAfter, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record jurisdiction failure: %w", err)
	}
	return nil
}

func (r *JurisdictionRepository) SetHealthy(ctx context.Context, id string, healthy bool) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE jurisdictions
SET is_healthy = $2,
    consecutive_failures = CASE WHEN $2 THEN 0 ELSE consecutive_failures END,
    updated_at = $3
WHERE id = $1
`, id, healthy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set jurisdiction health: %w", err)
	}
	return nil
}

// Upsert seeds or refreshes configuration by (name, kind). Health
// counters are left alone so a config reload never clears an outage
// streak.
func (r *JurisdictionRepository) Upsert(ctx context.Context, cfg *domain.JurisdictionConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	selectors, err := json.Marshal(cfg.Selectors)
	if err != nil {
		return fmt.Errorf("marshal selectors: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx, `
INSERT INTO jurisdictions (
	id, name, state, kind, fips_code, recorder_url, court_records_url,
	scraping_enabled, adapter_name, selectors, requests_per_minute,
	request_delay_ms, fallback_api_enabled, fallback_api_provider,
	consecutive_failures, is_healthy, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (name, kind) DO UPDATE
SET state = EXCLUDED.state,
    fips_code = EXCLUDED.fips_code,
    recorder_url = EXCLUDED.recorder_url,
    court_records_url = EXCLUDED.court_records_url,
    scraping_enabled = EXCLUDED.scraping_enabled,
    adapter_name = EXCLUDED.adapter_name,
    selectors = EXCLUDED.selectors,
    requests_per_minute = EXCLUDED.requests_per_minute,
    request_delay_ms = EXCLUDED.request_delay_ms,
    fallback_api_enabled = EXCLUDED.fallback_api_enabled,
    fallback_api_provider = EXCLUDED.fallback_api_provider,
    updated_at = EXCLUDED.updated_at
`,
		cfg.ID, domain.NormalizeJurisdiction(cfg.Name), cfg.State, string(cfg.Kind),
		cfg.FIPSCode, cfg.RecorderURL, cfg.CourtRecordsURL, cfg.ScrapingEnabled,
		cfg.AdapterName, selectors, cfg.RequestsPerMinute, cfg.RequestDelayMS,
		cfg.FallbackAPIEnabled, cfg.FallbackAPIProvider, cfg.ConsecutiveFailures,
		cfg.IsHealthy, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert jurisdiction: %w", err)
	}
	return nil
}
