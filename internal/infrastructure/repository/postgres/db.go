// Package postgres implements the repository ports on database/sql over
// the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates all tables on startup. Bootstrap DDL is
// serialized across api/worker startups with an advisory lock.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS properties (
	id TEXT PRIMARY KEY,
	street_address TEXT NOT NULL,
	city TEXT NOT NULL,
	county TEXT NOT NULL,
	state TEXT NOT NULL,
	zip_code TEXT,
	parcel_number TEXT,
	legal_description TEXT,
	raw_address_input TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_properties_identity
	ON properties(lower(street_address), lower(city), lower(county));

CREATE TABLE IF NOT EXISTS title_searches (
	id TEXT PRIMARY KEY,
	reference_number TEXT NOT NULL UNIQUE,
	property_id TEXT NOT NULL REFERENCES properties(id),
	requested_by TEXT,
	search_type TEXT NOT NULL,
	search_years INT NOT NULL,
	priority TEXT NOT NULL,
	status TEXT NOT NULL,
	status_message TEXT,
	progress_percent INT NOT NULL DEFAULT 0,
	retry_count INT NOT NULL DEFAULT 0,
	error_log JSONB NOT NULL DEFAULT '[]'::jsonb,
	active_task_id TEXT,
	preferred_source TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_title_searches_status ON title_searches(status);
CREATE INDEX IF NOT EXISTS idx_title_searches_property ON title_searches(property_id);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	search_id TEXT NOT NULL REFERENCES title_searches(id),
	document_type TEXT NOT NULL,
	source TEXT NOT NULL,
	instrument_number TEXT,
	book TEXT,
	page TEXT,
	recording_date TIMESTAMPTZ,
	grantor JSONB NOT NULL DEFAULT '[]'::jsonb,
	grantee JSONB NOT NULL DEFAULT '[]'::jsonb,
	consideration TEXT,
	source_url TEXT,
	file_path TEXT,
	file_name TEXT,
	file_size BIGINT NOT NULL DEFAULT 0,
	file_hash TEXT,
	ocr_text TEXT,
	ai_summary TEXT,
	ai_extracted_data JSONB,
	needs_review BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_search ON documents(search_id);

CREATE TABLE IF NOT EXISTS chain_of_title_entries (
	id TEXT PRIMARY KEY,
	search_id TEXT NOT NULL REFERENCES title_searches(id),
	document_id TEXT,
	sequence_number INT NOT NULL,
	transaction_type TEXT,
	transaction_date TIMESTAMPTZ,
	grantor_names JSONB NOT NULL DEFAULT '[]'::jsonb,
	grantee_names JSONB NOT NULL DEFAULT '[]'::jsonb,
	consideration TEXT,
	recording_reference TEXT,
	description TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (search_id, sequence_number)
);

CREATE TABLE IF NOT EXISTS encumbrances (
	id TEXT PRIMARY KEY,
	search_id TEXT NOT NULL REFERENCES title_searches(id),
	document_id TEXT,
	encumbrance_type TEXT NOT NULL,
	status TEXT NOT NULL,
	holder_name TEXT,
	original_amount TEXT,
	current_amount TEXT,
	recorded_date TIMESTAMPTZ,
	released_date TIMESTAMPTZ,
	recording_reference TEXT,
	description TEXT,
	risk_level TEXT NOT NULL,
	requires_action BOOLEAN NOT NULL DEFAULT FALSE,
	action_description TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_encumbrances_search ON encumbrances(search_id);

CREATE TABLE IF NOT EXISTS batch_uploads (
	id TEXT PRIMARY KEY,
	batch_number TEXT NOT NULL UNIQUE,
	uploaded_by TEXT,
	original_filename TEXT NOT NULL,
	status TEXT NOT NULL,
	total_records INT NOT NULL DEFAULT 0,
	processed_records INT NOT NULL DEFAULT 0,
	successful_records INT NOT NULL DEFAULT 0,
	failed_records INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS batch_items (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES batch_uploads(id),
	row_number INT NOT NULL,
	raw_input JSONB NOT NULL DEFAULT '{}'::jsonb,
	street_address TEXT,
	city TEXT,
	county TEXT,
	parcel_number TEXT,
	search_id TEXT,
	status TEXT NOT NULL,
	error_message TEXT,
	processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_batch_items_batch ON batch_items(batch_id);

CREATE TABLE IF NOT EXISTS jurisdictions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	state TEXT NOT NULL,
	kind TEXT NOT NULL,
	fips_code TEXT,
	recorder_url TEXT,
	court_records_url TEXT,
	scraping_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	adapter_name TEXT,
	selectors JSONB NOT NULL DEFAULT '{}'::jsonb,
	requests_per_minute INT NOT NULL DEFAULT 10,
	request_delay_ms INT NOT NULL DEFAULT 2000,
	fallback_api_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	fallback_api_provider TEXT,
	consecutive_failures INT NOT NULL DEFAULT 0,
	is_healthy BOOLEAN NOT NULL DEFAULT TRUE,
	last_success_at TIMESTAMPTZ,
	last_failure_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (name, kind)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
