package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

// SubmitConfig carries the submission-time policy knobs.
type SubmitConfig struct {
	DefaultSearchYears int
	DefaultState       string
	CommercialEnabled  bool
}

type SubmitUseCase struct {
	searches      ports.SearchRepository
	properties    ports.PropertyRepository
	jurisdictions ports.JurisdictionRepository
	queue         ports.TaskQueue
	audit         ports.AuditSink
	cfg           SubmitConfig
	logger        *slog.Logger
	now           func() time.Time
}

func NewSubmitUseCase(
	searches ports.SearchRepository,
	properties ports.PropertyRepository,
	jurisdictions ports.JurisdictionRepository,
	queue ports.TaskQueue,
	audit ports.AuditSink,
	cfg SubmitConfig,
	logger *slog.Logger,
) *SubmitUseCase {
	if cfg.DefaultSearchYears <= 0 {
		cfg.DefaultSearchYears = 40
	}
	if cfg.DefaultState == "" {
		cfg.DefaultState = "CO"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmitUseCase{
		searches:      searches,
		properties:    properties,
		jurisdictions: jurisdictions,
		queue:         queue,
		audit:         audit,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

type SubmitRequest struct {
	StreetAddress   string
	City            string
	County          string
	State           string
	ZipCode         string
	ParcelNumber    string
	RequestedBy     string
	SearchType      domain.SearchType
	SearchYears     int
	Priority        domain.SearchPriority
	PreferredSource domain.SourcePreference
}

// Submit validates the request, fails fast on sourcing that can never
// succeed, persists the search, and hands it to the orchestrator. The
// search is visible in pending state before the task is enqueued; the
// queued transition happens only after the enqueue is accepted.
func (uc *SubmitUseCase) Submit(ctx context.Context, req SubmitRequest) (*domain.TitleSearch, error) {
	req.StreetAddress = strings.TrimSpace(req.StreetAddress)
	req.City = strings.TrimSpace(req.City)
	req.County = domain.NormalizeJurisdiction(req.County)
	if req.StreetAddress == "" || req.City == "" || req.County == "" {
		return nil, domain.WrapError(domain.ErrValidation, "submit search",
			fmt.Errorf("street_address, city, and county are required"))
	}
	if req.State == "" {
		req.State = uc.cfg.DefaultState
	}
	if req.SearchType == "" {
		req.SearchType = domain.SearchTypeFull
	}
	if req.SearchYears <= 0 {
		req.SearchYears = uc.cfg.DefaultSearchYears
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}
	if req.PreferredSource == "" {
		req.PreferredSource = domain.SourceHybrid
	}

	if err := uc.checkSourcePreference(req); err != nil {
		return nil, err
	}

	property, err := uc.properties.GetOrCreate(ctx, &domain.Property{
		StreetAddress:   req.StreetAddress,
		City:            req.City,
		County:          req.County,
		State:           req.State,
		ZipCode:         req.ZipCode,
		ParcelNumber:    req.ParcelNumber,
		RawAddressInput: fmt.Sprintf("%s, %s, %s", req.StreetAddress, req.City, req.State),
	})
	if err != nil {
		return nil, fmt.Errorf("resolve property: %w", err)
	}

	search := &domain.TitleSearch{
		ID:              uuid.NewString(),
		ReferenceNumber: newReferenceNumber("TS", uc.now()),
		PropertyID:      property.ID,
		RequestedBy:     req.RequestedBy,
		SearchType:      req.SearchType,
		SearchYears:     req.SearchYears,
		Priority:        req.Priority,
		Status:          domain.SearchPending,
		StatusMessage:   "Search created",
		PreferredSource: req.PreferredSource,
		CreatedAt:       uc.now().UTC(),
	}
	if err := uc.searches.Create(ctx, search); err != nil {
		return nil, fmt.Errorf("create search: %w", err)
	}

	// The sourcing check runs against the persisted record so a county
	// with no record source leaves a visibly failed search, not nothing.
	if err := uc.checkSourcing(ctx, req); err != nil {
		if domain.IsKind(err, domain.ErrJurisdictionUnsupported) {
			uc.failUnsupported(ctx, search, err)
			return search, err
		}
		return nil, err
	}

	task := domain.Task{
		Type:     domain.TaskOrchestrateSearch,
		SearchID: search.ID,
		Priority: search.Priority,
	}
	if err := uc.queue.Enqueue(ctx, task); err != nil {
		uc.failSearch(ctx, search.ID, "Could not queue search for processing")
		return nil, fmt.Errorf("enqueue orchestrate task: %w", err)
	}

	if err := uc.searches.UpdateStatus(ctx, search.ID, domain.SearchQueued, "Search queued for processing", domain.ProgressQueued); err != nil {
		return nil, fmt.Errorf("mark search queued: %w", err)
	}
	search.Status = domain.SearchQueued
	search.StatusMessage = "Search queued for processing"
	search.ProgressPercent = domain.ProgressQueued

	uc.audit.SearchStatusChanged(ctx, search.ID, domain.SearchPending, domain.SearchQueued, search.StatusMessage)
	uc.logger.Info("search_submitted",
		"search_id", search.ID,
		"reference", search.ReferenceNumber,
		"county", req.County,
		"priority", string(search.Priority),
	)
	return search, nil
}

// checkSourcePreference rejects malformed or unservable source
// preferences before anything is persisted.
func (uc *SubmitUseCase) checkSourcePreference(req SubmitRequest) error {
	switch req.PreferredSource {
	case domain.SourceAPI:
		if !uc.cfg.CommercialEnabled {
			return domain.WrapError(domain.ErrValidation, "submit search",
				fmt.Errorf("commercial API source requested but no API is configured"))
		}
	case domain.SourceScraping, domain.SourceHybrid:
	default:
		return domain.WrapError(domain.ErrValidation, "submit search",
			fmt.Errorf("unknown source preference %q", req.PreferredSource))
	}
	return nil
}

// checkSourcing verifies the county has a record source able to serve
// the request. It runs after the search exists so its verdict is
// recorded on the search rather than lost with the rejection.
func (uc *SubmitUseCase) checkSourcing(ctx context.Context, req SubmitRequest) error {
	if req.PreferredSource == domain.SourceAPI {
		return nil
	}

	cfg, err := uc.jurisdictions.GetByName(ctx, req.County, domain.JurisdictionRecorder)
	if err != nil {
		if domain.IsKind(err, domain.ErrJurisdictionUnsupported) {
			if req.PreferredSource == domain.SourceHybrid && uc.cfg.CommercialEnabled {
				// The API can still serve a hybrid search.
				return nil
			}
			return domain.WrapError(domain.ErrJurisdictionUnsupported, "submit search",
				fmt.Errorf("county %q has no configured record source", req.County))
		}
		return fmt.Errorf("load jurisdiction: %w", err)
	}
	if !cfg.ScrapingEnabled && req.PreferredSource == domain.SourceScraping {
		return domain.WrapError(domain.ErrJurisdictionUnsupported, "submit search",
			fmt.Errorf("scraping is disabled for county %q", req.County))
	}
	return nil
}

// Cancel moves a search to cancelled. Running tasks observe the status
// at their next checkpoint and stop; cancelling a terminal search is a
// validation error.
func (uc *SubmitUseCase) Cancel(ctx context.Context, id string) error {
	search, err := uc.searches.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if search.Status.Terminal() {
		return domain.WrapError(domain.ErrValidation, "cancel search",
			fmt.Errorf("search %s is already %s", id, search.Status))
	}

	if err := uc.searches.UpdateStatus(ctx, id, domain.SearchCancelled, "Search cancelled by user", search.ProgressPercent); err != nil {
		return err
	}
	uc.audit.SearchStatusChanged(ctx, id, search.Status, domain.SearchCancelled, "Search cancelled by user")
	uc.logger.Info("search_cancelled", "search_id", id, "previous_status", string(search.Status))
	return nil
}

func (uc *SubmitUseCase) Get(ctx context.Context, id string) (*domain.TitleSearch, error) {
	return uc.searches.GetByID(ctx, id)
}

// failUnsupported records the terminal sourcing classification on a
// just-created search and moves it to failed.
func (uc *SubmitUseCase) failUnsupported(ctx context.Context, search *domain.TitleSearch, cause error) {
	entry := domain.SearchError{
		Timestamp: uc.now().UTC(),
		Task:      "submit_search",
		Message:   cause.Error(),
		Severity:  "error",
	}
	if err := uc.searches.AppendError(ctx, search.ID, entry); err != nil {
		uc.logger.Error("append_error_failed", "search_id", search.ID, "error", err)
	}

	message := "No record source available for the requested county"
	if err := uc.searches.UpdateStatus(ctx, search.ID, domain.SearchFailed, message, 0); err != nil {
		uc.logger.Error("search_fail_update_failed", "search_id", search.ID, "error", err)
		return
	}
	uc.audit.SearchStatusChanged(ctx, search.ID, domain.SearchPending, domain.SearchFailed, message)
	search.Status = domain.SearchFailed
	search.StatusMessage = message
	search.ErrorLog = append(search.ErrorLog, entry)
}

func (uc *SubmitUseCase) failSearch(ctx context.Context, id, message string) {
	if err := uc.searches.UpdateStatus(ctx, id, domain.SearchFailed, message, 0); err != nil {
		uc.logger.Error("search_fail_update_failed", "search_id", id, "error", err)
	}
}

// newReferenceNumber builds a human-facing reference like
// TS-2026-9F2C11AB or BATCH-2026-0D44E19C.
func newReferenceNumber(prefix string, now time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// Fall back to time-derived entropy; uniqueness is enforced by
		// the database constraint either way.
		copy(buf, fmt.Sprintf("%08x", now.UnixNano()))
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.Year(), strings.ToUpper(hex.EncodeToString(buf)))
}
