package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

func TestProbeJurisdictionsUpdatesHealth(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	healthy := &domain.JurisdictionConfig{
		ID: "jur-up", Name: "denver", Kind: domain.JurisdictionRecorder,
		RecorderURL: up.URL, ScrapingEnabled: true, IsHealthy: false, ConsecutiveFailures: 2,
	}
	broken := &domain.JurisdictionConfig{
		ID: "jur-down", Name: "el paso", Kind: domain.JurisdictionRecorder,
		RecorderURL: down.URL, ScrapingEnabled: true, IsHealthy: true,
	}
	jurisdictions := newFakeJurisdictionRepo(healthy, broken)

	uc := NewMaintenanceUseCase(newFakeSearchRepo(), jurisdictions, &fakeAudit{}, up.Client(), 0, testLogger())
	if err := uc.Handle(context.Background(), domain.Task{Type: domain.TaskProbeJurisdictions}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got, _ := jurisdictions.GetByName(context.Background(), "denver", domain.JurisdictionRecorder)
	if !got.IsHealthy || got.ConsecutiveFailures != 0 {
		t.Errorf("reachable source: healthy=%v failures=%d, want recovered", got.IsHealthy, got.ConsecutiveFailures)
	}

	got, _ = jurisdictions.GetByName(context.Background(), "el paso", domain.JurisdictionRecorder)
	if got.ConsecutiveFailures != 1 {
		t.Errorf("unreachable source failures = %d, want 1", got.ConsecutiveFailures)
	}
}

func TestExpireStaleFailsStuckSearches(t *testing.T) {
	searches := newFakeSearchRepo()
	audit := &fakeAudit{}
	old := time.Now().Add(-3 * time.Hour)
	recent := time.Now().Add(-5 * time.Minute)

	seed := func(id string, status domain.SearchStatus, startedAt time.Time) {
		search := &domain.TitleSearch{
			ID:        id,
			Status:    status,
			CreatedAt: startedAt,
			StartedAt: &startedAt,
		}
		if err := searches.Create(context.Background(), search); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed("stuck", domain.SearchScraping, old)
	seed("fresh", domain.SearchScraping, recent)
	seed("done", domain.SearchCompleted, old)

	uc := NewMaintenanceUseCase(searches, newFakeJurisdictionRepo(), audit, nil, 2*time.Hour, testLogger())
	if err := uc.Handle(context.Background(), domain.Task{Type: domain.TaskExpireStale}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	stuck, _ := searches.GetByID(context.Background(), "stuck")
	if stuck.Status != domain.SearchFailed {
		t.Errorf("stuck search status = %s, want %s", stuck.Status, domain.SearchFailed)
	}
	if len(stuck.ErrorLog) != 1 || !strings.Contains(stuck.ErrorLog[0].Message, "timed out") {
		t.Errorf("stuck search error log = %+v", stuck.ErrorLog)
	}

	fresh, _ := searches.GetByID(context.Background(), "fresh")
	if fresh.Status != domain.SearchScraping {
		t.Errorf("fresh search status = %s, want untouched", fresh.Status)
	}
	done, _ := searches.GetByID(context.Background(), "done")
	if done.Status != domain.SearchCompleted {
		t.Errorf("completed search status = %s, want untouched", done.Status)
	}

	if len(audit.events) != 1 || audit.events[0].searchID != "stuck" {
		t.Errorf("audit events = %+v", audit.events)
	}
}

func TestMaintenanceRejectsUnknownTask(t *testing.T) {
	uc := NewMaintenanceUseCase(newFakeSearchRepo(), newFakeJurisdictionRepo(), &fakeAudit{}, nil, 0, testLogger())
	err := uc.Handle(context.Background(), domain.Task{Type: domain.TaskScrapeRecords})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}
