package domain

import "time"

type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchPartial    BatchStatus = "partial"
	BatchFailed     BatchStatus = "failed"
	BatchCancelled  BatchStatus = "cancelled"
)

type BatchItemStatus string

const (
	ItemPending   BatchItemStatus = "pending"
	ItemProcessed BatchItemStatus = "processed"
	ItemFailed    BatchItemStatus = "failed"
)

type BatchUpload struct {
	ID                string      `json:"id"`
	BatchNumber       string      `json:"batch_number"`
	UploadedBy        string      `json:"uploaded_by,omitempty"`
	OriginalFilename  string      `json:"original_filename"`
	Status            BatchStatus `json:"status"`
	TotalRecords      int         `json:"total_records"`
	ProcessedRecords  int         `json:"processed_records"`
	SuccessfulRecords int         `json:"successful_records"`
	FailedRecords     int         `json:"failed_records"`
	CreatedAt         time.Time   `json:"created_at"`
	StartedAt         *time.Time  `json:"started_at,omitempty"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
}

type BatchItem struct {
	ID            string            `json:"id"`
	BatchID       string            `json:"batch_id"`
	RowNumber     int               `json:"row_number"`
	RawInput      map[string]string `json:"raw_input"`
	StreetAddress string            `json:"street_address,omitempty"`
	City          string            `json:"city,omitempty"`
	County        string            `json:"county,omitempty"`
	ParcelNumber  string            `json:"parcel_number,omitempty"`
	SearchID      string            `json:"search_id,omitempty"`
	Status        BatchItemStatus   `json:"status"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}

// FoldBatchStatus derives the batch status from the literal item-status
// tally. The result is a pure function of the counts so a stored status
// can always be re-derived and checked against this fold.
func FoldBatchStatus(total, successful, failed int) BatchStatus {
	switch {
	case total == 0:
		return BatchPending
	case successful+failed < total:
		return BatchProcessing
	case failed == 0:
		return BatchCompleted
	case successful == 0:
		return BatchFailed
	default:
		return BatchPartial
	}
}
