package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

// MaintenanceUseCase runs the periodic background passes: jurisdiction
// health probes and stale-search expiry. Both are enqueued by the
// worker scheduler and handled like any other task.
type MaintenanceUseCase struct {
	searches      ports.SearchRepository
	jurisdictions ports.JurisdictionRepository
	audit         ports.AuditSink
	client        *http.Client
	staleAfter    time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

func NewMaintenanceUseCase(
	searches ports.SearchRepository,
	jurisdictions ports.JurisdictionRepository,
	audit ports.AuditSink,
	client *http.Client,
	staleAfter time.Duration,
	logger *slog.Logger,
) *MaintenanceUseCase {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceUseCase{
		searches:      searches,
		jurisdictions: jurisdictions,
		audit:         audit,
		client:        client,
		staleAfter:    staleAfter,
		logger:        logger,
		now:           time.Now,
	}
}

func (uc *MaintenanceUseCase) Handle(ctx context.Context, task domain.Task) error {
	switch task.Type {
	case domain.TaskProbeJurisdictions:
		return uc.probeJurisdictions(ctx)
	case domain.TaskExpireStale:
		return uc.expireStale(ctx)
	}
	return domain.WrapError(domain.ErrValidation, "maintenance task",
		fmt.Errorf("no handler for task type %q", task.Type))
}

// probeJurisdictions checks each scraping-enabled source with a light
// request. A reachable source clears its failure streak; an outage
// accrues one failure like any search-path error would.
func (uc *MaintenanceUseCase) probeJurisdictions(ctx context.Context) error {
	configs, err := uc.jurisdictions.ListEnabled(ctx, domain.JurisdictionRecorder)
	if err != nil {
		return err
	}

	healthy, unhealthy := 0, 0
	for _, cfg := range configs {
		if cfg.RecorderURL == "" {
			continue
		}
		if uc.probeOne(ctx, cfg.RecorderURL) {
			healthy++
			if err := uc.jurisdictions.RecordSuccess(ctx, cfg.ID); err != nil {
				uc.logger.Warn("probe_record_success_failed", "jurisdiction", cfg.Name, "error", err)
			}
			continue
		}
		unhealthy++
		uc.logger.Warn("jurisdiction_probe_failed", "jurisdiction", cfg.Name, "url", cfg.RecorderURL)
		if err := uc.jurisdictions.RecordFailure(ctx, cfg.ID, 1); err != nil {
			uc.logger.Warn("probe_record_failure_failed", "jurisdiction", cfg.Name, "error", err)
		}
	}

	uc.logger.Info("jurisdiction_probe_complete", "healthy", healthy, "unhealthy", unhealthy)
	return nil
}

func (uc *MaintenanceUseCase) probeOne(ctx context.Context, url string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := uc.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// expireStale force-fails searches stuck in a non-terminal status past
// the stale threshold, so orphaned work cannot pin progress forever.
func (uc *MaintenanceUseCase) expireStale(ctx context.Context) error {
	cutoff := uc.now().UTC().Add(-uc.staleAfter)
	stale, err := uc.searches.ListStale(ctx, cutoff)
	if err != nil {
		return err
	}

	expired := 0
	for _, search := range stale {
		message := fmt.Sprintf("Search timed out after %s without completing", uc.staleAfter)
		entry := domain.SearchError{
			Timestamp: uc.now().UTC(),
			Task:      string(domain.TaskExpireStale),
			Message:   message,
			Severity:  "error",
		}
		if err := uc.searches.AppendError(ctx, search.ID, entry); err != nil {
			uc.logger.Error("stale_append_error_failed", "search_id", search.ID, "error", err)
		}
		if err := uc.searches.UpdateStatus(ctx, search.ID, domain.SearchFailed, message, 0); err != nil {
			uc.logger.Warn("stale_fail_skipped", "search_id", search.ID, "error", err)
			continue
		}
		uc.audit.SearchStatusChanged(ctx, search.ID, search.Status, domain.SearchFailed, message)
		expired++
	}

	if expired > 0 {
		uc.logger.Info("stale_searches_expired", "count", expired)
	}
	return nil
}
