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

// BatchParser turns an uploaded file into batch items.
type BatchParser func(filename string, data []byte) ([]domain.BatchItem, error)

// BatchUseCase ingests batch uploads and processes their items. Each
// valid item becomes an independent title search; one bad row never
// stops the rest of the file.
type BatchUseCase struct {
	batches ports.BatchRepository
	queue   ports.TaskQueue
	submit  *SubmitUseCase
	parse   BatchParser
	logger  *slog.Logger
	now     func() time.Time
}

func NewBatchUseCase(
	batches ports.BatchRepository,
	queue ports.TaskQueue,
	submit *SubmitUseCase,
	parse BatchParser,
	logger *slog.Logger,
) *BatchUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchUseCase{
		batches: batches,
		queue:   queue,
		submit:  submit,
		parse:   parse,
		logger:  logger,
		now:     time.Now,
	}
}

// Upload parses the file, persists the batch with its items, and hands
// processing to the workers.
func (uc *BatchUseCase) Upload(ctx context.Context, filename string, data []byte, uploadedBy string) (*domain.BatchUpload, error) {
	items, err := uc.parse(filename, data)
	if err != nil {
		return nil, err
	}

	batch := &domain.BatchUpload{
		ID:               uuid.NewString(),
		BatchNumber:      newReferenceNumber("BATCH", uc.now()),
		UploadedBy:       uploadedBy,
		OriginalFilename: filename,
		Status:           domain.BatchPending,
		TotalRecords:     len(items),
		CreatedAt:        uc.now().UTC(),
	}
	for i := range items {
		items[i].ID = uuid.NewString()
		items[i].BatchID = batch.ID
	}

	if err := uc.batches.CreateBatch(ctx, batch, items); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	if err := uc.queue.Enqueue(ctx, domain.Task{
		Type:    domain.TaskProcessBatch,
		BatchID: batch.ID,
	}); err != nil {
		return nil, fmt.Errorf("enqueue batch task: %w", err)
	}

	uc.logger.Info("batch_uploaded",
		"batch_id", batch.ID,
		"batch_number", batch.BatchNumber,
		"records", batch.TotalRecords,
	)
	return batch, nil
}

func (uc *BatchUseCase) Get(ctx context.Context, id string) (*domain.BatchUpload, error) {
	return uc.batches.GetBatch(ctx, id)
}

// Cancel stops a batch; remaining pending items are marked failed.
func (uc *BatchUseCase) Cancel(ctx context.Context, id string) error {
	batch, err := uc.batches.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	switch batch.Status {
	case domain.BatchCompleted, domain.BatchFailed, domain.BatchPartial, domain.BatchCancelled:
		return domain.WrapError(domain.ErrValidation, "cancel batch",
			fmt.Errorf("batch %s is already %s", id, batch.Status))
	}
	if err := uc.batches.CancelBatch(ctx, id); err != nil {
		return err
	}
	uc.logger.Info("batch_cancelled", "batch_id", id)
	return nil
}

// HandleProcessBatch is the worker handler for a batch task. Items are
// walked in row order; the handler is redelivery-safe because only
// still-pending items are listed and item resolution is idempotent at
// the repository.
func (uc *BatchUseCase) HandleProcessBatch(ctx context.Context, task domain.Task) error {
	batch, err := uc.batches.GetBatch(ctx, task.BatchID)
	if err != nil {
		if domain.IsKind(err, domain.ErrBatchNotFound) {
			uc.logger.Warn("task_for_missing_batch", "batch_id", task.BatchID)
			return nil
		}
		return err
	}
	if batch.Status == domain.BatchCancelled {
		uc.logger.Info("batch_task_dropped_cancelled", "batch_id", batch.ID)
		return nil
	}

	items, err := uc.batches.ListPendingItems(ctx, batch.ID)
	if err != nil {
		return err
	}

	for _, item := range items {
		// Cancellation checkpoint between items.
		current, err := uc.batches.GetBatch(ctx, batch.ID)
		if err != nil {
			return err
		}
		if current.Status == domain.BatchCancelled {
			uc.logger.Info("batch_processing_stopped_cancelled", "batch_id", batch.ID)
			return nil
		}

		uc.processItem(ctx, batch, item)
	}

	final, err := uc.batches.GetBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	status := domain.FoldBatchStatus(final.TotalRecords, final.SuccessfulRecords, final.FailedRecords)
	if err := uc.batches.FinalizeBatch(ctx, batch.ID, status); err != nil {
		return err
	}
	uc.logger.Info("batch_processed",
		"batch_id", batch.ID,
		"status", string(status),
		"successful", final.SuccessfulRecords,
		"failed", final.FailedRecords,
	)
	return nil
}

func (uc *BatchUseCase) processItem(ctx context.Context, batch *domain.BatchUpload, item domain.BatchItem) {
	if item.StreetAddress == "" || item.City == "" || item.County == "" {
		uc.failItem(ctx, item.ID, "Missing required fields (street_address, city, county)")
		return
	}

	search, err := uc.submit.Submit(ctx, SubmitRequest{
		StreetAddress: item.StreetAddress,
		City:          item.City,
		County:        item.County,
		ParcelNumber:  item.ParcelNumber,
		RequestedBy:   batch.UploadedBy,
		Priority:      domain.PriorityLow,
	})
	if err != nil {
		uc.failItem(ctx, item.ID, err.Error())
		return
	}

	if err := uc.batches.MarkItemProcessed(ctx, item.ID, search.ID); err != nil {
		uc.logger.Error("batch_item_mark_failed", "item_id", item.ID, "error", err)
	}
}

func (uc *BatchUseCase) failItem(ctx context.Context, itemID, message string) {
	if err := uc.batches.MarkItemFailed(ctx, itemID, message); err != nil {
		uc.logger.Error("batch_item_fail_mark_failed", "item_id", itemID, "error", err)
	}
}

// OnTerminalFailure marks the batch failed when its processing task is
// exhausted.
func (uc *BatchUseCase) OnTerminalFailure(ctx context.Context, task domain.Task, taskErr error) {
	if task.BatchID == "" {
		return
	}
	uc.logger.Error("batch_task_terminally_failed", "batch_id", task.BatchID, "error", taskErr)
	if err := uc.batches.FinalizeBatch(ctx, task.BatchID, domain.BatchFailed); err != nil {
		uc.logger.Error("batch_finalize_failed", "batch_id", task.BatchID, "error", err)
	}
}
