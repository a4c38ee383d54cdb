package ports

import (
	"context"
	"io"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

// SearchRepository persists title search state. Progress updates are
// monotonic at the storage layer so concurrent task completions can
// never move progress backwards.
type SearchRepository interface {
	Create(ctx context.Context, search *domain.TitleSearch) error
	GetByID(ctx context.Context, id string) (*domain.TitleSearch, error)
	UpdateStatus(ctx context.Context, id string, status domain.SearchStatus, message string, progress int) error
	MarkStarted(ctx context.Context, id, taskID string) error
	MarkCompleted(ctx context.Context, id string) error
	AppendError(ctx context.Context, id string, entry domain.SearchError) error
	IncrementRetry(ctx context.Context, id string) (int, error)
	ListStale(ctx context.Context, olderThan time.Time) ([]domain.TitleSearch, error)
}

// PropertyRepository deduplicates properties at ingestion time.
type PropertyRepository interface {
	GetOrCreate(ctx context.Context, prop *domain.Property) (*domain.Property, error)
	GetByID(ctx context.Context, id string) (*domain.Property, error)
}

// DocumentRepository persists retrieved instruments for a search.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListBySearch(ctx context.Context, searchID string) ([]domain.Document, error)
	ListPendingFetch(ctx context.Context, searchID string) ([]domain.Document, error)
	SaveFile(ctx context.Context, id, filePath, fileName, fileHash string, fileSize int64) error
	SaveExtraction(ctx context.Context, id, ocrText, aiSummary string, extracted map[string]any) error
	MarkNeedsReview(ctx context.Context, id, notes string) error
}

// ChainRepository stores derived analysis output. SaveAnalysis commits
// the chain entries, encumbrances, and the search stage advance in one
// transaction per the aggregate-atomicity contract.
type ChainRepository interface {
	SaveAnalysis(ctx context.Context, searchID string, entries []domain.ChainOfTitleEntry, encs []domain.Encumbrance) error
	ListChain(ctx context.Context, searchID string) ([]domain.ChainOfTitleEntry, error)
	ListEncumbrances(ctx context.Context, searchID string) ([]domain.Encumbrance, error)
}

// BatchRepository persists batch uploads and their items. Counter
// updates are single-statement atomic increments; they must never be
// recomputed by scanning items.
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch *domain.BatchUpload, items []domain.BatchItem) error
	GetBatch(ctx context.Context, id string) (*domain.BatchUpload, error)
	ListPendingItems(ctx context.Context, batchID string) ([]domain.BatchItem, error)
	MarkItemProcessed(ctx context.Context, itemID, searchID string) error
	MarkItemFailed(ctx context.Context, itemID, message string) error
	FinalizeBatch(ctx context.Context, batchID string, status domain.BatchStatus) error
	CancelBatch(ctx context.Context, batchID string) error
}

// JurisdictionRepository reads sourcing configuration and applies
// atomic health-counter updates shared across concurrent searches.
type JurisdictionRepository interface {
	GetByName(ctx context.Context, name string, kind domain.JurisdictionKind) (*domain.JurisdictionConfig, error)
	ListEnabled(ctx context.Context, kind domain.JurisdictionKind) ([]domain.JurisdictionConfig, error)
	RecordSuccess(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, unhealthyAfter int) error
	SetHealthy(ctx context.Context, id string, healthy bool) error
	Upsert(ctx context.Context, cfg *domain.JurisdictionConfig) error
}

// TaskQueue is the sole synchronization primitive between the
// orchestrator and workers. Enqueue routes by the static task table;
// handlers are acknowledged only after returning nil.
type TaskQueue interface {
	Enqueue(ctx context.Context, task domain.Task) error
	Subscribe(ctx context.Context, lane string, handler TaskHandler) error
	Close()
}

// TaskHandler executes one delivered task. Returning a retryable error
// defers redelivery; a terminal error or retry exhaustion is reported
// through the TerminalFailureFunc installed on the queue, never
// silently dropped.
type TaskHandler func(ctx context.Context, task domain.Task) error

// TerminalFailureFunc receives tasks whose retries are exhausted.
type TerminalFailureFunc func(ctx context.Context, task domain.Task, err error)

// ExtractionService derives chain-of-title and encumbrance entries from
// a document set. Partial document failures are reported per document
// and never abort the whole call.
type ExtractionService interface {
	Extract(ctx context.Context, docs []domain.Document) ([]domain.ChainOfTitleEntry, []domain.Encumbrance, map[string]error, error)
}

// ReportService synthesizes the title report artifact. Re-invocation
// with identical inputs returns the same artifact reference.
type ReportService interface {
	Generate(ctx context.Context, search *domain.TitleSearch, entries []domain.ChainOfTitleEntry, encs []domain.Encumbrance) (*domain.ReportArtifact, error)
}

// AuditSink receives status-change events fire-and-forget; sink failure
// must never fail the owning state transition.
type AuditSink interface {
	SearchStatusChanged(ctx context.Context, searchID string, from, to domain.SearchStatus, message string)
}

// BlobStore stores document binaries and report artifacts.
type BlobStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
