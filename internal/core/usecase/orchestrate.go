package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

// OrchestrateConfig carries the worker-side policy knobs.
type OrchestrateConfig struct {
	// FallbackAfterRetries is how many scrape attempts a hybrid search
	// burns before the commercial API takes over.
	FallbackAfterRetries int
	// UnhealthyAfterFailures is the jurisdiction failure streak at
	// which hybrid searches skip scraping entirely.
	UnhealthyAfterFailures int
	DefaultState           string
	MaxResultPages         int
}

// OrchestrateUseCase drives one title search through its stages. Each
// stage is a separate queue task; the handler for a stage advances the
// search and enqueues the next one, so a lost worker only replays a
// single stage.
type OrchestrateUseCase struct {
	searches      ports.SearchRepository
	properties    ports.PropertyRepository
	documents     ports.DocumentRepository
	chains        ports.ChainRepository
	jurisdictions ports.JurisdictionRepository
	queue         ports.TaskQueue
	recorders     ports.RecorderResolver
	courts        ports.CourtResolver
	commercial    ports.CommercialSource
	extractor     ports.ExtractionService
	reports       ports.ReportService
	blobs         ports.BlobStore
	audit         ports.AuditSink
	cfg           OrchestrateConfig
	logger        *slog.Logger
	now           func() time.Time
}

func NewOrchestrateUseCase(
	searches ports.SearchRepository,
	properties ports.PropertyRepository,
	documents ports.DocumentRepository,
	chains ports.ChainRepository,
	jurisdictions ports.JurisdictionRepository,
	queue ports.TaskQueue,
	recorders ports.RecorderResolver,
	courts ports.CourtResolver,
	commercial ports.CommercialSource,
	extractor ports.ExtractionService,
	reports ports.ReportService,
	blobs ports.BlobStore,
	audit ports.AuditSink,
	cfg OrchestrateConfig,
	logger *slog.Logger,
) *OrchestrateUseCase {
	if cfg.FallbackAfterRetries <= 0 {
		cfg.FallbackAfterRetries = 3
	}
	if cfg.UnhealthyAfterFailures <= 0 {
		cfg.UnhealthyAfterFailures = 5
	}
	if cfg.DefaultState == "" {
		cfg.DefaultState = "CO"
	}
	if cfg.MaxResultPages <= 0 {
		cfg.MaxResultPages = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrchestrateUseCase{
		searches:      searches,
		properties:    properties,
		documents:     documents,
		chains:        chains,
		jurisdictions: jurisdictions,
		queue:         queue,
		recorders:     recorders,
		courts:        courts,
		commercial:    commercial,
		extractor:     extractor,
		reports:       reports,
		blobs:         blobs,
		audit:         audit,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// Handle dispatches one delivered task.
func (uc *OrchestrateUseCase) Handle(ctx context.Context, task domain.Task) error {
	switch task.Type {
	case domain.TaskOrchestrateSearch:
		return uc.handleOrchestrate(ctx, task)
	case domain.TaskScrapeRecords:
		return uc.handleScrape(ctx, task)
	case domain.TaskFetchDocument:
		return uc.handleFetch(ctx, task)
	case domain.TaskAnalyzeDocuments:
		return uc.handleAnalyze(ctx, task)
	case domain.TaskGenerateReport:
		return uc.handleReport(ctx, task)
	}
	return domain.WrapError(domain.ErrValidation, "handle task",
		fmt.Errorf("no handler for task type %q", task.Type))
}

// loadActive loads the search and reports whether the stage should
// still run. A terminal search swallows the task: cancellation and
// failure win races against in-flight stages.
func (uc *OrchestrateUseCase) loadActive(ctx context.Context, task domain.Task) (*domain.TitleSearch, bool, error) {
	search, err := uc.searches.GetByID(ctx, task.SearchID)
	if err != nil {
		if domain.IsKind(err, domain.ErrSearchNotFound) {
			uc.logger.Warn("task_for_missing_search", "task_type", string(task.Type), "search_id", task.SearchID)
			return nil, false, nil
		}
		return nil, false, err
	}
	if search.Status.Terminal() {
		uc.logger.Info("task_dropped_terminal_search",
			"task_type", string(task.Type),
			"search_id", search.ID,
			"status", string(search.Status),
		)
		return nil, false, nil
	}
	return search, true, nil
}

func (uc *OrchestrateUseCase) handleOrchestrate(ctx context.Context, task domain.Task) error {
	search, ok, err := uc.loadActive(ctx, task)
	if err != nil || !ok {
		return err
	}

	if err := uc.searches.MarkStarted(ctx, search.ID, task.ID); err != nil {
		return err
	}
	return uc.queue.Enqueue(ctx, domain.Task{
		Type:     domain.TaskScrapeRecords,
		SearchID: search.ID,
		Priority: search.Priority,
	})
}

func (uc *OrchestrateUseCase) handleScrape(ctx context.Context, task domain.Task) error {
	search, ok, err := uc.loadActive(ctx, task)
	if err != nil || !ok {
		return err
	}
	property, err := uc.properties.GetByID(ctx, search.PropertyID)
	if err != nil {
		return err
	}

	uc.transition(ctx, search, domain.SearchScraping,
		fmt.Sprintf("Searching %s county records", property.County), domain.ProgressSourcingStart)

	page, source, err := uc.sourceInstruments(ctx, search, property)
	if err != nil {
		return err
	}

	recorded := 0
	for _, inst := range page {
		created, err := uc.recordInstrument(ctx, search.ID, inst, source)
		if err != nil {
			return err
		}
		if created {
			recorded++
		}
	}
	uc.progress(ctx, search.ID, domain.SearchScraping,
		fmt.Sprintf("Found %d documents from %s", recorded, source), 0.4)

	// Court records are supplementary; their loss degrades the report
	// but never fails the search.
	courtDocs := uc.courtRecordsPass(ctx, search, property)
	uc.progress(ctx, search.ID, domain.SearchScraping,
		fmt.Sprintf("Found %d court records", courtDocs), 0.5)

	return uc.queue.Enqueue(ctx, domain.Task{
		Type:     domain.TaskFetchDocument,
		SearchID: search.ID,
		Priority: search.Priority,
	})
}

func (uc *OrchestrateUseCase) handleFetch(ctx context.Context, task domain.Task) error {
	search, ok, err := uc.loadActive(ctx, task)
	if err != nil || !ok {
		return err
	}
	property, err := uc.properties.GetByID(ctx, search.PropertyID)
	if err != nil {
		return err
	}

	pending, err := uc.documents.ListPendingFetch(ctx, search.ID)
	if err != nil {
		return err
	}

	var adapter ports.RecorderAdapter
	if len(pending) > 0 {
		adapter, err = uc.resolveRecorder(ctx, property.County)
		if err != nil {
			uc.appendWarning(ctx, search.ID, "fetch_document", err)
		}
	}

	fetched := 0
	for i, doc := range pending {
		// Cancellation checkpoint between downloads.
		current, err := uc.searches.GetByID(ctx, search.ID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			uc.logger.Info("fetch_stopped_terminal_search", "search_id", search.ID, "status", string(current.Status))
			return nil
		}

		if err := uc.fetchOne(ctx, adapter, &doc); err != nil {
			uc.appendWarning(ctx, search.ID, "fetch_document", err)
			if markErr := uc.documents.MarkNeedsReview(ctx, doc.ID, fmt.Sprintf("Download failed: %v", err)); markErr != nil {
				uc.logger.Error("mark_needs_review_failed", "document_id", doc.ID, "error", markErr)
			}
			continue
		}
		fetched++
		uc.progress(ctx, search.ID, domain.SearchScraping,
			fmt.Sprintf("Downloaded %d of %d documents", i+1, len(pending)),
			0.5+0.5*float64(i+1)/float64(len(pending)))
	}

	uc.transition(ctx, search, domain.SearchAnalyzing,
		fmt.Sprintf("Analyzing documents (%d downloaded)", fetched), domain.ProgressSourcingEnd)

	return uc.queue.Enqueue(ctx, domain.Task{
		Type:     domain.TaskAnalyzeDocuments,
		SearchID: search.ID,
		Priority: search.Priority,
	})
}

func (uc *OrchestrateUseCase) fetchOne(ctx context.Context, adapter ports.RecorderAdapter, doc *domain.Document) error {
	if adapter == nil {
		return fmt.Errorf("no adapter available for instrument %s", doc.InstrumentNumber)
	}
	binary, err := adapter.FetchDocument(ctx, domain.Instrument{
		InstrumentNumber: doc.InstrumentNumber,
		DownloadURL:      doc.SourceURL,
	})
	if err != nil {
		return err
	}
	return storeBinary(ctx, uc.blobs, uc.documents, doc, binary)
}

func (uc *OrchestrateUseCase) handleAnalyze(ctx context.Context, task domain.Task) error {
	search, ok, err := uc.loadActive(ctx, task)
	if err != nil || !ok {
		return err
	}

	docs, err := uc.documents.ListBySearch(ctx, search.ID)
	if err != nil {
		return err
	}

	entries, encs, docErrs, err := uc.extractor.Extract(ctx, docs)
	if err != nil {
		return err
	}
	for docID, docErr := range docErrs {
		uc.appendWarning(ctx, search.ID, "analyze_documents", docErr)
		if markErr := uc.documents.MarkNeedsReview(ctx, docID, fmt.Sprintf("Extraction failed: %v", docErr)); markErr != nil {
			uc.logger.Error("mark_needs_review_failed", "document_id", docID, "error", markErr)
		}
	}

	if err := uc.chains.SaveAnalysis(ctx, search.ID, entries, encs); err != nil {
		return err
	}

	uc.transition(ctx, search, domain.SearchGenerating,
		fmt.Sprintf("Built chain with %d entries, %d encumbrances", len(entries), len(encs)),
		domain.ProgressGenerationStart)

	return uc.queue.Enqueue(ctx, domain.Task{
		Type:     domain.TaskGenerateReport,
		SearchID: search.ID,
		Priority: search.Priority,
	})
}

func (uc *OrchestrateUseCase) handleReport(ctx context.Context, task domain.Task) error {
	search, ok, err := uc.loadActive(ctx, task)
	if err != nil || !ok {
		return err
	}

	entries, err := uc.chains.ListChain(ctx, search.ID)
	if err != nil {
		return err
	}
	encs, err := uc.chains.ListEncumbrances(ctx, search.ID)
	if err != nil {
		return err
	}

	artifact, err := uc.reports.Generate(ctx, search, entries, encs)
	if err != nil {
		return err
	}
	uc.logger.Info("report_artifact_ready", "search_id", search.ID, "path", artifact.Path)

	if err := uc.searches.MarkCompleted(ctx, search.ID); err != nil {
		return err
	}
	uc.audit.SearchStatusChanged(ctx, search.ID, search.Status, domain.SearchCompleted, "Title search completed")
	return nil
}

// OnTerminalFailure is installed on the queue. Exhausted or
// non-retryable tasks fail their search visibly instead of vanishing.
func (uc *OrchestrateUseCase) OnTerminalFailure(ctx context.Context, task domain.Task, taskErr error) {
	if task.SearchID == "" {
		uc.logger.Error("task_terminally_failed", "task_type", string(task.Type), "error", taskErr)
		return
	}

	entry := domain.SearchError{
		Timestamp: uc.now().UTC(),
		Task:      string(task.Type),
		Message:   taskErr.Error(),
		Severity:  "error",
	}
	if err := uc.searches.AppendError(ctx, task.SearchID, entry); err != nil {
		uc.logger.Error("append_error_failed", "search_id", task.SearchID, "error", err)
	}

	message := fmt.Sprintf("Task %s failed: %v", task.Type, taskErr)
	if err := uc.searches.UpdateStatus(ctx, task.SearchID, domain.SearchFailed, message, 0); err != nil {
		// Already terminal is fine; the cancel or a prior failure won.
		uc.logger.Warn("fail_transition_skipped", "search_id", task.SearchID, "error", err)
		return
	}
	uc.audit.SearchStatusChanged(ctx, task.SearchID, "", domain.SearchFailed, message)
	uc.logger.Error("search_failed",
		"search_id", task.SearchID,
		"task_type", string(task.Type),
		"error", taskErr,
	)
}

func (uc *OrchestrateUseCase) transition(ctx context.Context, search *domain.TitleSearch, next domain.SearchStatus, message string, progress int) {
	if err := uc.searches.UpdateStatus(ctx, search.ID, next, message, progress); err != nil {
		uc.logger.Warn("status_transition_skipped", "search_id", search.ID, "to", string(next), "error", err)
		return
	}
	uc.audit.SearchStatusChanged(ctx, search.ID, search.Status, next, message)
	search.Status = next
}

func (uc *OrchestrateUseCase) progress(ctx context.Context, searchID string, stage domain.SearchStatus, message string, fraction float64) {
	if err := uc.searches.UpdateStatus(ctx, searchID, stage, message, domain.StageProgress(stage, fraction)); err != nil {
		uc.logger.Warn("progress_update_skipped", "search_id", searchID, "error", err)
	}
}

func (uc *OrchestrateUseCase) appendWarning(ctx context.Context, searchID, task string, warnErr error) {
	entry := domain.SearchError{
		Timestamp: uc.now().UTC(),
		Task:      task,
		Message:   warnErr.Error(),
		Severity:  "warning",
	}
	if err := uc.searches.AppendError(ctx, searchID, entry); err != nil {
		uc.logger.Error("append_error_failed", "search_id", searchID, "error", err)
	}
}

// recordInstrument persists one discovered instrument. The document ID
// is derived from (search, source, instrument number) so a replayed
// scrape stage re-inserts the same rows and conflicts away.
func (uc *OrchestrateUseCase) recordInstrument(ctx context.Context, searchID string, inst domain.Instrument, source domain.DocumentSource) (bool, error) {
	if inst.InstrumentNumber == "" {
		return false, nil
	}
	id := instrumentDocID(searchID, source, inst.InstrumentNumber)

	now := uc.now().UTC()
	doc := domain.Document{
		ID:               id,
		SearchID:         searchID,
		Type:             inst.Type,
		Source:           source,
		InstrumentNumber: inst.InstrumentNumber,
		Book:             inst.Book,
		Page:             inst.Page,
		RecordingDate:    inst.RecordingDate,
		Grantor:          inst.Grantor,
		Grantee:          inst.Grantee,
		Consideration:    inst.Consideration,
		SourceURL:        inst.DownloadURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.documents.Create(ctx, &doc); err != nil {
		return false, err
	}
	return true, nil
}

// instrumentDocID derives a stable document ID from the instrument
// identity so replayed stages re-insert the same rows.
func instrumentDocID(searchID string, source domain.DocumentSource, instrumentNumber string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID,
		[]byte(fmt.Sprintf("%s/%s/%s", searchID, source, instrumentNumber))).String()
}

func storeBinary(ctx context.Context, blobs ports.BlobStore, documents ports.DocumentRepository, doc *domain.Document, binary *domain.DocumentBinary) error {
	if binary == nil || len(binary.Data) == 0 {
		return fmt.Errorf("empty document body for %s", doc.InstrumentNumber)
	}
	key := documentKey(doc, binary)
	if err := blobs.Save(ctx, key, newByteReader(binary.Data)); err != nil {
		return err
	}
	return documents.SaveFile(ctx, doc.ID, key, binary.FileName, hashBytes(binary.Data), int64(len(binary.Data)))
}
