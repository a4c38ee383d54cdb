package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

type SearchRepository struct {
	db *sql.DB
}

var _ ports.SearchRepository = (*SearchRepository)(nil)

func NewSearchRepository(db *sql.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

func (r *SearchRepository) Create(ctx context.Context, search *domain.TitleSearch) error {
	errorLog, err := json.Marshal(search.ErrorLog)
	if err != nil {
		return fmt.Errorf("marshal error log: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO title_searches (
	id, reference_number, property_id, requested_by, search_type, search_years,
	priority, status, status_message, progress_percent, retry_count, error_log,
	active_task_id, preferred_source, created_at, started_at, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		search.ID, search.ReferenceNumber, search.PropertyID, search.RequestedBy,
		string(search.SearchType), search.SearchYears, string(search.Priority),
		string(search.Status), search.StatusMessage, search.ProgressPercent,
		search.RetryCount, errorLog, search.ActiveTaskID, string(search.PreferredSource),
		search.CreatedAt, search.StartedAt, search.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert title search: %w", err)
	}
	return nil
}

const searchColumns = `
id, reference_number, property_id, requested_by, search_type, search_years,
priority, status, status_message, progress_percent, retry_count, error_log,
active_task_id, preferred_source, created_at, started_at, completed_at`

func (r *SearchRepository) GetByID(ctx context.Context, id string) (*domain.TitleSearch, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+searchColumns+`
FROM title_searches
WHERE id = $1
`, id)
	return scanSearch(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSearch(row rowScanner) (*domain.TitleSearch, error) {
	var search domain.TitleSearch
	var searchType, priority, status, preferred string
	var requestedBy, statusMessage, activeTaskID sql.NullString
	var errorLogRaw []byte

	err := row.Scan(
		&search.ID, &search.ReferenceNumber, &search.PropertyID, &requestedBy,
		&searchType, &search.SearchYears, &priority, &status, &statusMessage,
		&search.ProgressPercent, &search.RetryCount, &errorLogRaw,
		&activeTaskID, &preferred, &search.CreatedAt, &search.StartedAt, &search.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSearchNotFound
		}
		return nil, fmt.Errorf("scan title search: %w", err)
	}

	if len(errorLogRaw) > 0 {
		if err := json.Unmarshal(errorLogRaw, &search.ErrorLog); err != nil {
			return nil, fmt.Errorf("unmarshal error log: %w", err)
		}
	}
	search.RequestedBy = requestedBy.String
	search.StatusMessage = statusMessage.String
	search.ActiveTaskID = activeTaskID.String
	search.SearchType = domain.SearchType(searchType)
	search.Priority = domain.SearchPriority(priority)
	search.Status = domain.SearchStatus(status)
	search.PreferredSource = domain.SourcePreference(preferred)
	return &search, nil
}

// UpdateStatus applies a lifecycle transition. The WHERE clause
// re-checks the from-status set server-side so a concurrent cancel or
// failure always wins, and GREATEST keeps progress monotonic.
func (r *SearchRepository) UpdateStatus(ctx context.Context, id string, status domain.SearchStatus, message string, progress int) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE title_searches
SET status = $2,
    status_message = $3,
    progress_percent = GREATEST(progress_percent, $4)
WHERE id = $1
  AND status NOT IN ('completed', 'failed', 'cancelled')
`, id, string(status), message, progress)
	if err != nil {
		return fmt.Errorf("update search status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update search status affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrValidation, "update search status",
			fmt.Errorf("search %s missing or already terminal", id))
	}
	return nil
}

func (r *SearchRepository) MarkStarted(ctx context.Context, id, taskID string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE title_searches
SET active_task_id = $2,
    started_at = COALESCE(started_at, $3)
WHERE id = $1
`, id, taskID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark search started: %w", err)
	}
	return nil
}

func (r *SearchRepository) MarkCompleted(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE title_searches
SET status = 'completed',
    status_message = 'Title search completed',
    progress_percent = 100,
    active_task_id = NULL,
    completed_at = $2
WHERE id = $1
  AND status NOT IN ('completed', 'failed', 'cancelled')
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark search completed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark search completed affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrValidation, "mark search completed",
			fmt.Errorf("search %s missing or already terminal", id))
	}
	return nil
}

// AppendError appends to the JSONB error log in one statement so
// concurrent task failures never lose entries.
func (r *SearchRepository) AppendError(ctx context.Context, id string, entry domain.SearchError) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal error entry: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE title_searches
SET error_log = error_log || $2::jsonb
WHERE id = $1
`, id, encoded)
	if err != nil {
		return fmt.Errorf("append search error: %w", err)
	}
	return nil
}

func (r *SearchRepository) IncrementRetry(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
UPDATE title_searches
SET retry_count = retry_count + 1
WHERE id = $1
RETURNING retry_count
`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrSearchNotFound
		}
		return 0, fmt.Errorf("increment search retry: %w", err)
	}
	return count, nil
}

func (r *SearchRepository) ListStale(ctx context.Context, olderThan time.Time) ([]domain.TitleSearch, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+searchColumns+`
FROM title_searches
WHERE status NOT IN ('completed', 'failed', 'cancelled')
  AND COALESCE(started_at, created_at) < $1
ORDER BY created_at
`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale searches: %w", err)
	}
	defer rows.Close()

	var searches []domain.TitleSearch
	for rows.Next() {
		search, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		searches = append(searches, *search)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale searches: %w", err)
	}
	return searches, nil
}
