package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

type fakeSearchRepo struct {
	mu       sync.Mutex
	searches map[string]*domain.TitleSearch
}

func newFakeSearchRepo() *fakeSearchRepo {
	return &fakeSearchRepo{searches: make(map[string]*domain.TitleSearch)}
}

func (f *fakeSearchRepo) Create(_ context.Context, search *domain.TitleSearch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *search
	f.searches[search.ID] = &clone
	return nil
}

func (f *fakeSearchRepo) GetByID(_ context.Context, id string) (*domain.TitleSearch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	search, ok := f.searches[id]
	if !ok {
		return nil, domain.ErrSearchNotFound
	}
	clone := *search
	return &clone, nil
}

func (f *fakeSearchRepo) UpdateStatus(_ context.Context, id string, status domain.SearchStatus, message string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	search, ok := f.searches[id]
	if !ok || search.Status.Terminal() {
		return domain.WrapError(domain.ErrValidation, "update search status",
			fmt.Errorf("search %s missing or already terminal", id))
	}
	search.Status = status
	search.StatusMessage = message
	if progress > search.ProgressPercent {
		search.ProgressPercent = progress
	}
	return nil
}

func (f *fakeSearchRepo) MarkStarted(_ context.Context, id, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if search, ok := f.searches[id]; ok {
		search.ActiveTaskID = taskID
		if search.StartedAt == nil {
			now := time.Now()
			search.StartedAt = &now
		}
	}
	return nil
}

func (f *fakeSearchRepo) MarkCompleted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	search, ok := f.searches[id]
	if !ok || search.Status.Terminal() {
		return domain.WrapError(domain.ErrValidation, "mark search completed",
			fmt.Errorf("search %s missing or already terminal", id))
	}
	now := time.Now()
	search.Status = domain.SearchCompleted
	search.ProgressPercent = 100
	search.CompletedAt = &now
	return nil
}

func (f *fakeSearchRepo) AppendError(_ context.Context, id string, entry domain.SearchError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if search, ok := f.searches[id]; ok {
		search.ErrorLog = append(search.ErrorLog, entry)
	}
	return nil
}

func (f *fakeSearchRepo) IncrementRetry(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	search, ok := f.searches[id]
	if !ok {
		return 0, domain.ErrSearchNotFound
	}
	search.RetryCount++
	return search.RetryCount, nil
}

func (f *fakeSearchRepo) ListStale(_ context.Context, olderThan time.Time) ([]domain.TitleSearch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stale []domain.TitleSearch
	for _, search := range f.searches {
		if search.Status.Terminal() {
			continue
		}
		anchor := search.CreatedAt
		if search.StartedAt != nil {
			anchor = *search.StartedAt
		}
		if anchor.Before(olderThan) {
			stale = append(stale, *search)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale, nil
}

type fakePropertyRepo struct {
	mu         sync.Mutex
	properties map[string]*domain.Property
}

func newFakePropertyRepo() *fakePropertyRepo {
	return &fakePropertyRepo{properties: make(map[string]*domain.Property)}
}

func (f *fakePropertyRepo) GetOrCreate(_ context.Context, prop *domain.Property) (*domain.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := prop.StreetAddress + "|" + prop.City + "|" + prop.County
	for _, existing := range f.properties {
		if existing.StreetAddress+"|"+existing.City+"|"+existing.County == key {
			clone := *existing
			return &clone, nil
		}
	}
	clone := *prop
	if clone.ID == "" {
		clone.ID = fmt.Sprintf("prop-%d", len(f.properties)+1)
	}
	f.properties[clone.ID] = &clone
	result := clone
	return &result, nil
}

func (f *fakePropertyRepo) GetByID(_ context.Context, id string) (*domain.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prop, ok := f.properties[id]
	if !ok {
		return nil, domain.ErrPropertyNotFound
	}
	clone := *prop
	return &clone, nil
}

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]*domain.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: make(map[string]*domain.Document)}
}

func (f *fakeDocumentRepo) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.docs[doc.ID]; exists {
		return nil
	}
	clone := *doc
	f.docs[doc.ID] = &clone
	return nil
}

func (f *fakeDocumentRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	clone := *doc
	return &clone, nil
}

func (f *fakeDocumentRepo) ListBySearch(_ context.Context, searchID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []domain.Document
	for _, doc := range f.docs {
		if doc.SearchID == searchID {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (f *fakeDocumentRepo) ListPendingFetch(_ context.Context, searchID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []domain.Document
	for _, doc := range f.docs {
		if doc.SearchID == searchID && doc.FilePath == "" && doc.SourceURL != "" {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (f *fakeDocumentRepo) SaveFile(_ context.Context, id, filePath, fileName, fileHash string, fileSize int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok && doc.FilePath == "" {
		doc.FilePath = filePath
		doc.FileName = fileName
		doc.FileHash = fileHash
		doc.FileSize = fileSize
	}
	return nil
}

func (f *fakeDocumentRepo) SaveExtraction(_ context.Context, id, ocrText, aiSummary string, extracted map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		doc.OCRText = ocrText
		doc.AISummary = aiSummary
		doc.AIExtractedData = extracted
	}
	return nil
}

func (f *fakeDocumentRepo) MarkNeedsReview(_ context.Context, id, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		doc.NeedsReview = true
		if notes != "" {
			doc.AISummary = notes
		}
	}
	return nil
}

type fakeChainRepo struct {
	mu      sync.Mutex
	entries map[string][]domain.ChainOfTitleEntry
	encs    map[string][]domain.Encumbrance
}

func newFakeChainRepo() *fakeChainRepo {
	return &fakeChainRepo{
		entries: make(map[string][]domain.ChainOfTitleEntry),
		encs:    make(map[string][]domain.Encumbrance),
	}
}

func (f *fakeChainRepo) SaveAnalysis(_ context.Context, searchID string, entries []domain.ChainOfTitleEntry, encs []domain.Encumbrance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[searchID] = entries
	f.encs[searchID] = encs
	return nil
}

func (f *fakeChainRepo) ListChain(_ context.Context, searchID string) ([]domain.ChainOfTitleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[searchID], nil
}

func (f *fakeChainRepo) ListEncumbrances(_ context.Context, searchID string) ([]domain.Encumbrance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encs[searchID], nil
}

type fakeBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*domain.BatchUpload
	items   map[string]*domain.BatchItem
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{
		batches: make(map[string]*domain.BatchUpload),
		items:   make(map[string]*domain.BatchItem),
	}
}

func (f *fakeBatchRepo) CreateBatch(_ context.Context, batch *domain.BatchUpload, items []domain.BatchItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *batch
	f.batches[batch.ID] = &clone
	for i := range items {
		item := items[i]
		f.items[item.ID] = &item
	}
	return nil
}

func (f *fakeBatchRepo) GetBatch(_ context.Context, id string) (*domain.BatchUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch, ok := f.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	clone := *batch
	return &clone, nil
}

func (f *fakeBatchRepo) ListPendingItems(_ context.Context, batchID string) ([]domain.BatchItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []domain.BatchItem
	for _, item := range f.items {
		if item.BatchID == batchID && item.Status == domain.ItemPending {
			pending = append(pending, *item)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].RowNumber < pending[j].RowNumber })
	return pending, nil
}

func (f *fakeBatchRepo) MarkItemProcessed(_ context.Context, itemID, searchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || item.Status != domain.ItemPending {
		return nil
	}
	item.Status = domain.ItemProcessed
	item.SearchID = searchID
	if batch, ok := f.batches[item.BatchID]; ok {
		batch.ProcessedRecords++
		batch.SuccessfulRecords++
	}
	return nil
}

func (f *fakeBatchRepo) MarkItemFailed(_ context.Context, itemID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || item.Status != domain.ItemPending {
		return nil
	}
	item.Status = domain.ItemFailed
	item.ErrorMessage = message
	if batch, ok := f.batches[item.BatchID]; ok {
		batch.ProcessedRecords++
		batch.FailedRecords++
	}
	return nil
}

func (f *fakeBatchRepo) FinalizeBatch(_ context.Context, batchID string, status domain.BatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batch, ok := f.batches[batchID]; ok && batch.Status != domain.BatchCancelled {
		batch.Status = status
		now := time.Now()
		batch.CompletedAt = &now
	}
	return nil
}

func (f *fakeBatchRepo) CancelBatch(_ context.Context, batchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch, ok := f.batches[batchID]
	if !ok {
		return domain.ErrBatchNotFound
	}
	for _, item := range f.items {
		if item.BatchID == batchID && item.Status == domain.ItemPending {
			item.Status = domain.ItemFailed
			item.ErrorMessage = "Batch cancelled"
			batch.ProcessedRecords++
			batch.FailedRecords++
		}
	}
	batch.Status = domain.BatchCancelled
	return nil
}

type fakeJurisdictionRepo struct {
	mu      sync.Mutex
	configs map[string]*domain.JurisdictionConfig
}

func newFakeJurisdictionRepo(configs ...*domain.JurisdictionConfig) *fakeJurisdictionRepo {
	repo := &fakeJurisdictionRepo{configs: make(map[string]*domain.JurisdictionConfig)}
	for _, cfg := range configs {
		repo.configs[cfg.Name+"|"+string(cfg.Kind)] = cfg
	}
	return repo
}

func (f *fakeJurisdictionRepo) GetByName(_ context.Context, name string, kind domain.JurisdictionKind) (*domain.JurisdictionConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[domain.NormalizeJurisdiction(name)+"|"+string(kind)]
	if !ok {
		return nil, domain.ErrJurisdictionUnsupported
	}
	clone := *cfg
	return &clone, nil
}

func (f *fakeJurisdictionRepo) ListEnabled(_ context.Context, kind domain.JurisdictionKind) ([]domain.JurisdictionConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var configs []domain.JurisdictionConfig
	for _, cfg := range f.configs {
		if cfg.Kind == kind && cfg.ScrapingEnabled {
			configs = append(configs, *cfg)
		}
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs, nil
}

func (f *fakeJurisdictionRepo) RecordSuccess(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cfg := range f.configs {
		if cfg.ID == id {
			cfg.ConsecutiveFailures = 0
			cfg.IsHealthy = true
		}
	}
	return nil
}

func (f *fakeJurisdictionRepo) RecordFailure(_ context.Context, id string, unhealthyAfter int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cfg := range f.configs {
		if cfg.ID == id {
			cfg.ConsecutiveFailures++
			cfg.IsHealthy = cfg.ConsecutiveFailures < unhealthyAfter
		}
	}
	return nil
}

func (f *fakeJurisdictionRepo) SetHealthy(_ context.Context, id string, healthy bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cfg := range f.configs {
		if cfg.ID == id {
			cfg.IsHealthy = healthy
			if healthy {
				cfg.ConsecutiveFailures = 0
			}
		}
	}
	return nil
}

func (f *fakeJurisdictionRepo) Upsert(_ context.Context, cfg *domain.JurisdictionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *cfg
	f.configs[domain.NormalizeJurisdiction(cfg.Name)+"|"+string(cfg.Kind)] = &clone
	return nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []domain.Task
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, task domain.Task) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.ID == "" {
		task.ID = fmt.Sprintf("task-%d", len(f.tasks)+1)
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeQueue) Subscribe(context.Context, string, ports.TaskHandler) error { return nil }
func (f *fakeQueue) Close()                                                     {}

func (f *fakeQueue) pop() (domain.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tasks) == 0 {
		return domain.Task{}, false
	}
	task := f.tasks[0]
	f.tasks = f.tasks[1:]
	return task, true
}

type auditEvent struct {
	searchID string
	from, to domain.SearchStatus
}

type fakeAudit struct {
	mu     sync.Mutex
	events []auditEvent
}

func (f *fakeAudit) SearchStatusChanged(_ context.Context, searchID string, from, to domain.SearchStatus, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, auditEvent{searchID: searchID, from: from, to: to})
}

type fakeRecorderAdapter struct {
	county  string
	pages   []domain.InstrumentPage
	err     error
	fetches map[string][]byte
}

func (f *fakeRecorderAdapter) Jurisdiction() string           { return f.county }
func (f *fakeRecorderAdapter) MinRequestDelay() time.Duration { return 0 }

func (f *fakeRecorderAdapter) SearchByParty(_ context.Context, _ string, _ domain.SearchWindow) (domain.InstrumentPage, error) {
	return f.firstPage()
}

func (f *fakeRecorderAdapter) SearchByParcel(_ context.Context, _ string, _ domain.SearchWindow) (domain.InstrumentPage, error) {
	return f.firstPage()
}

func (f *fakeRecorderAdapter) firstPage() (domain.InstrumentPage, error) {
	if f.err != nil {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable}, f.err
	}
	if len(f.pages) == 0 {
		return domain.InstrumentPage{Outcome: domain.OutcomeNoMatches}, nil
	}
	return f.pages[0], nil
}

func (f *fakeRecorderAdapter) ListInstruments(_ context.Context, token string) (domain.InstrumentPage, error) {
	for i, page := range f.pages {
		if i > 0 && f.pages[i-1].NextToken == token {
			return page, nil
		}
	}
	return domain.InstrumentPage{Outcome: domain.OutcomeNoMatches}, nil
}

func (f *fakeRecorderAdapter) FetchDocument(_ context.Context, inst domain.Instrument) (*domain.DocumentBinary, error) {
	if data, ok := f.fetches[inst.DownloadURL]; ok {
		return &domain.DocumentBinary{Data: data, FileName: "instrument.pdf", MimeType: "application/pdf"}, nil
	}
	return nil, domain.WrapError(domain.ErrSourceUnavailable, "fetch document", fmt.Errorf("no binary for %s", inst.DownloadURL))
}

type fakeRecorderResolver struct {
	adapter ports.RecorderAdapter
	err     error
}

func (f *fakeRecorderResolver) Resolve(string, *domain.JurisdictionConfig) (ports.RecorderAdapter, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.adapter, nil
}

type fakeCourtAdapter struct {
	cases []domain.CourtCase
	err   error
}

func (f *fakeCourtAdapter) State() string                  { return "CO" }
func (f *fakeCourtAdapter) MinRequestDelay() time.Duration { return 0 }

func (f *fakeCourtAdapter) SearchByName(_ context.Context, _, _, _ string) ([]domain.CourtCase, error) {
	return f.cases, f.err
}

type fakeCourtResolver struct {
	adapter ports.CourtAdapter
	err     error
}

func (f *fakeCourtResolver) Resolve(string, *domain.JurisdictionConfig) (ports.CourtAdapter, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.adapter, nil
}

type fakeCommercial struct {
	page  domain.InstrumentPage
	err   error
	calls int
}

func (f *fakeCommercial) SearchByParcel(_ context.Context, _, _ string, _ domain.SearchWindow) (domain.InstrumentPage, error) {
	f.calls++
	return f.page, f.err
}

func (f *fakeCommercial) SearchByAddress(_ context.Context, _, _ string, _ domain.SearchWindow) (domain.InstrumentPage, error) {
	f.calls++
	return f.page, f.err
}

type fakeExtractor struct {
	entries []domain.ChainOfTitleEntry
	encs    []domain.Encumbrance
	docErrs map[string]error
	err     error
}

func (f *fakeExtractor) Extract(_ context.Context, _ []domain.Document) ([]domain.ChainOfTitleEntry, []domain.Encumbrance, map[string]error, error) {
	return f.entries, f.encs, f.docErrs, f.err
}

type fakeReports struct {
	artifact *domain.ReportArtifact
	err      error
	calls    int
}

func (f *fakeReports) Generate(_ context.Context, search *domain.TitleSearch, _ []domain.ChainOfTitleEntry, _ []domain.Encumbrance) (*domain.ReportArtifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.artifact != nil {
		return f.artifact, nil
	}
	return &domain.ReportArtifact{SearchID: search.ID, Path: "reports/" + search.ID + "/test.json"}, nil
}

type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (f *fakeBlobStore) Save(_ context.Context, key string, data io.Reader) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = content
	return nil
}

func (f *fakeBlobStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("no blob %s", key)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}
