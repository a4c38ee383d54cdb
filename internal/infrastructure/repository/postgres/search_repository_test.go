package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

func TestSearchRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewSearchRepository(db)
	mock.ExpectQuery("FROM title_searches").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrSearchNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrSearchNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchRepositoryUpdateStatusSkipsTerminalSearch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewSearchRepository(db)
	mock.ExpectExec("UPDATE title_searches").
		WithArgs("s-1", string(domain.SearchScraping), "Searching county records", 10).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateStatus(context.Background(), "s-1", domain.SearchScraping, "Searching county records", 10)
	if err == nil {
		t.Fatalf("expected error for terminal search")
	}
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("UpdateStatus() error = %v, want validation kind", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchRepositoryIncrementRetryReturnsNewCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewSearchRepository(db)
	mock.ExpectQuery("UPDATE title_searches").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"retry_count"}).AddRow(2))

	count, err := repo.IncrementRetry(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("IncrementRetry() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("retry count = %d, want 2", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchRepositoryListStaleScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewSearchRepository(db)
	cutoff := time.Now().Add(-2 * time.Hour)
	columns := []string{
		"id", "reference_number", "property_id", "requested_by", "search_type",
		"search_years", "priority", "status", "status_message", "progress_percent",
		"retry_count", "error_log", "active_task_id", "preferred_source",
		"created_at", "started_at", "completed_at",
	}
	rows := sqlmock.NewRows(columns).AddRow(
		"s-1", "TS-2026-ABCD1234", "p-1", "user", string(domain.SearchTypeFull),
		40, string(domain.PriorityNormal), string(domain.SearchScraping),
		"Searching county records", 25, 1, []byte(`[]`), "t-1",
		string(domain.SourceScraping), time.Now().Add(-3*time.Hour), nil, nil,
	)

	mock.ExpectQuery("FROM title_searches").
		WithArgs(cutoff).
		WillReturnRows(rows)

	stale, err := repo.ListStale(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ListStale() error = %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale search, got %d", len(stale))
	}
	if stale[0].Status != domain.SearchScraping {
		t.Fatalf("status = %s, want scraping", stale[0].Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
