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

type BatchRepository struct {
	db *sql.DB
}

var _ ports.BatchRepository = (*BatchRepository)(nil)

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) CreateBatch(ctx context.Context, batch *domain.BatchUpload, items []domain.BatchItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO batch_uploads (
	id, batch_number, uploaded_by, original_filename, status, total_records,
	processed_records, successful_records, failed_records, created_at, started_at, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		batch.ID, batch.BatchNumber, batch.UploadedBy, batch.OriginalFilename,
		string(batch.Status), batch.TotalRecords, batch.ProcessedRecords,
		batch.SuccessfulRecords, batch.FailedRecords, batch.CreatedAt,
		batch.StartedAt, batch.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	for _, item := range items {
		raw, err := json.Marshal(item.RawInput)
		if err != nil {
			return fmt.Errorf("marshal raw input: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO batch_items (
	id, batch_id, row_number, raw_input, street_address, city, county,
	parcel_number, search_id, status, error_message, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
			item.ID, batch.ID, item.RowNumber, raw, item.StreetAddress, item.City,
			item.County, item.ParcelNumber, nullable(item.SearchID),
			string(item.Status), item.ErrorMessage, item.ProcessedAt,
		)
		if err != nil {
			return fmt.Errorf("insert batch item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch tx: %w", err)
	}
	return nil
}

func (r *BatchRepository) GetBatch(ctx context.Context, id string) (*domain.BatchUpload, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, batch_number, uploaded_by, original_filename, status, total_records,
       processed_records, successful_records, failed_records, created_at,
       started_at, completed_at
FROM batch_uploads
WHERE id = $1
`, id)

	var batch domain.BatchUpload
	var status string
	var uploadedBy sql.NullString

	err := row.Scan(
		&batch.ID, &batch.BatchNumber, &uploadedBy, &batch.OriginalFilename,
		&status, &batch.TotalRecords, &batch.ProcessedRecords,
		&batch.SuccessfulRecords, &batch.FailedRecords, &batch.CreatedAt,
		&batch.StartedAt, &batch.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBatchNotFound
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	batch.UploadedBy = uploadedBy.String
	batch.Status = domain.BatchStatus(status)
	return &batch, nil
}

func (r *BatchRepository) ListPendingItems(ctx context.Context, batchID string) ([]domain.BatchItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, batch_id, row_number, raw_input, street_address, city, county,
       parcel_number, search_id, status, error_message, processed_at
FROM batch_items
WHERE batch_id = $1
  AND status = 'pending'
ORDER BY row_number
`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	defer rows.Close()

	var items []domain.BatchItem
	for rows.Next() {
		var item domain.BatchItem
		var status string
		var street, city, county, parcel, searchID, errMessage sql.NullString
		var rawInput []byte

		err := rows.Scan(
			&item.ID, &item.BatchID, &item.RowNumber, &rawInput, &street, &city,
			&county, &parcel, &searchID, &status, &errMessage, &item.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan batch item: %w", err)
		}
		if len(rawInput) > 0 {
			if err := json.Unmarshal(rawInput, &item.RawInput); err != nil {
				return nil, fmt.Errorf("unmarshal raw input: %w", err)
			}
		}
		item.StreetAddress = street.String
		item.City = city.String
		item.County = county.String
		item.ParcelNumber = parcel.String
		item.SearchID = searchID.String
		item.Status = domain.BatchItemStatus(status)
		item.ErrorMessage = errMessage.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch items: %w", err)
	}
	return items, nil
}

// MarkItemProcessed records success and bumps the batch counters in the
// same transaction. Counters only ever advance by single-statement
// increments.
func (r *BatchRepository) MarkItemProcessed(ctx context.Context, itemID, searchID string) error {
	return r.markItem(ctx, itemID, `
UPDATE batch_items
SET status = 'processed', search_id = $2, error_message = NULL, processed_at = $3
WHERE id = $1
  AND status = 'pending'
`, `
UPDATE batch_uploads
SET processed_records = processed_records + 1,
    successful_records = successful_records + 1
WHERE id = $1
`, searchID)
}

func (r *BatchRepository) MarkItemFailed(ctx context.Context, itemID, message string) error {
	return r.markItem(ctx, itemID, `
UPDATE batch_items
SET status = 'failed', error_message = $2, processed_at = $3
WHERE id = $1
  AND status = 'pending'
`, `
UPDATE batch_uploads
SET processed_records = processed_records + 1,
    failed_records = failed_records + 1
WHERE id = $1
`, message)
}

func (r *BatchRepository) markItem(ctx context.Context, itemID, itemQuery, counterQuery, arg string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin item tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, itemQuery, itemID, arg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch item affected: %w", err)
	}
	if affected == 0 {
		// Already resolved; a redelivered task must not double-count.
		return tx.Commit()
	}

	var batchID string
	if err := tx.QueryRowContext(ctx, `SELECT batch_id FROM batch_items WHERE id = $1`, itemID).Scan(&batchID); err != nil {
		return fmt.Errorf("load batch id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, counterQuery, batchID); err != nil {
		return fmt.Errorf("update batch counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit item tx: %w", err)
	}
	return nil
}

func (r *BatchRepository) FinalizeBatch(ctx context.Context, batchID string, status domain.BatchStatus) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE batch_uploads
SET status = $2, completed_at = $3
WHERE id = $1
  AND status NOT IN ('cancelled')
`, batchID, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}
	return nil
}

// CancelBatch stops a batch: unprocessed items flip to failed with a
// cancellation message, counters are reconciled from counts in the
// same transaction, and the batch is marked cancelled.
func (r *BatchRepository) CancelBatch(ctx context.Context, batchID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE batch_items
SET status = 'failed', error_message = 'Batch cancelled', processed_at = $2
WHERE batch_id = $1
  AND status = 'pending'
`, batchID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel batch items: %w", err)
	}
	cancelled, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel batch items affected: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
UPDATE batch_uploads
SET status = 'cancelled',
    processed_records = processed_records + $2,
    failed_records = failed_records + $2,
    completed_at = $3
WHERE id = $1
`, batchID, cancelled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel tx: %w", err)
	}
	return nil
}
