package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

func batchEnv() (*BatchUseCase, *fakeBatchRepo, *fakeSearchRepo, *fakeQueue) {
	batches := newFakeBatchRepo()
	searches := newFakeSearchRepo()
	queue := &fakeQueue{}
	submit := NewSubmitUseCase(searches, newFakePropertyRepo(), newFakeJurisdictionRepo(denverRecorder()),
		queue, &fakeAudit{}, SubmitConfig{}, testLogger())

	parse := func(filename string, data []byte) ([]domain.BatchItem, error) {
		var items []domain.BatchItem
		for i, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			fields := strings.Split(line, ",")
			item := domain.BatchItem{RowNumber: i + 1, Status: domain.ItemPending}
			if len(fields) > 0 {
				item.StreetAddress = strings.TrimSpace(fields[0])
			}
			if len(fields) > 1 {
				item.City = strings.TrimSpace(fields[1])
			}
			if len(fields) > 2 {
				item.County = strings.TrimSpace(fields[2])
			}
			items = append(items, item)
		}
		return items, nil
	}
	return NewBatchUseCase(batches, queue, submit, parse, testLogger()), batches, searches, queue
}

const batchCSV = "1437 Bannock St,Denver,Denver\n" +
	"990 Osage St,Denver,Denver\n" +
	"123 Nowhere Rd,,Denver\n"

func TestUploadCreatesBatchAndEnqueues(t *testing.T) {
	uc, _, _, queue := batchEnv()

	batch, err := uc.Upload(context.Background(), "import.csv", []byte(batchCSV), "ops@lender.example")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if batch.TotalRecords != 3 {
		t.Errorf("total records = %d, want 3", batch.TotalRecords)
	}
	if !strings.HasPrefix(batch.BatchNumber, "BATCH-") {
		t.Errorf("batch number = %q", batch.BatchNumber)
	}

	task, ok := queue.pop()
	if !ok || task.Type != domain.TaskProcessBatch || task.BatchID != batch.ID {
		t.Fatalf("task = %+v", task)
	}
}

func TestProcessBatchIsolatesBadRows(t *testing.T) {
	uc, batches, searches, queue := batchEnv()

	batch, err := uc.Upload(context.Background(), "import.csv", []byte(batchCSV), "ops@lender.example")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	task, _ := queue.pop()

	if err := uc.HandleProcessBatch(context.Background(), task); err != nil {
		t.Fatalf("HandleProcessBatch: %v", err)
	}

	final, _ := uc.Get(context.Background(), batch.ID)
	if final.Status != domain.BatchPartial {
		t.Errorf("status = %s, want %s", final.Status, domain.BatchPartial)
	}
	if final.SuccessfulRecords != 2 || final.FailedRecords != 1 {
		t.Errorf("counters = %d/%d, want 2/1", final.SuccessfulRecords, final.FailedRecords)
	}

	// Each good row became its own search.
	var created int
	for range searches.searches {
		created++
	}
	if created != 2 {
		t.Errorf("searches created = %d, want 2", created)
	}
	for _, search := range searches.searches {
		if search.Priority != domain.PriorityLow {
			t.Errorf("batch search priority = %s, want %s", search.Priority, domain.PriorityLow)
		}
	}

	// The bad row carries its failure message.
	var failMessage string
	for _, item := range batches.items {
		if item.Status == domain.ItemFailed {
			failMessage = item.ErrorMessage
		}
	}
	if !strings.Contains(failMessage, "Missing required fields") {
		t.Errorf("failure message = %q", failMessage)
	}
}

func TestProcessBatchAllGoodRowsCompletes(t *testing.T) {
	uc, _, _, queue := batchEnv()

	batch, err := uc.Upload(context.Background(), "import.csv",
		[]byte("1437 Bannock St,Denver,Denver\n990 Osage St,Denver,Denver\n"), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	task, _ := queue.pop()

	if err := uc.HandleProcessBatch(context.Background(), task); err != nil {
		t.Fatalf("HandleProcessBatch: %v", err)
	}
	final, _ := uc.Get(context.Background(), batch.ID)
	if final.Status != domain.BatchCompleted {
		t.Errorf("status = %s, want %s", final.Status, domain.BatchCompleted)
	}
}

func TestProcessBatchRedeliveryOnlyTouchesPendingItems(t *testing.T) {
	uc, _, searches, queue := batchEnv()

	batch, err := uc.Upload(context.Background(), "import.csv", []byte(batchCSV), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	task, _ := queue.pop()

	if err := uc.HandleProcessBatch(context.Background(), task); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	firstCount := len(searches.searches)

	if err := uc.HandleProcessBatch(context.Background(), task); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	final, _ := uc.Get(context.Background(), batch.ID)
	if final.ProcessedRecords != 3 {
		t.Errorf("processed = %d after redelivery, want 3", final.ProcessedRecords)
	}
	if len(searches.searches) != firstCount {
		t.Errorf("redelivery created %d extra searches", len(searches.searches)-firstCount)
	}
}

func TestCancelBatchFailsPendingItems(t *testing.T) {
	uc, batches, _, queue := batchEnv()

	batch, err := uc.Upload(context.Background(), "import.csv", []byte(batchCSV), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	queue.pop()

	if err := uc.Cancel(context.Background(), batch.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	final, _ := uc.Get(context.Background(), batch.ID)
	if final.Status != domain.BatchCancelled {
		t.Fatalf("status = %s, want %s", final.Status, domain.BatchCancelled)
	}
	if final.FailedRecords != 3 {
		t.Errorf("failed records = %d, want 3", final.FailedRecords)
	}
	for _, item := range batches.items {
		if item.Status != domain.ItemFailed {
			t.Errorf("item row %d still %s", item.RowNumber, item.Status)
		}
	}
}

func TestCancelledBatchTaskIsDropped(t *testing.T) {
	uc, _, searches, queue := batchEnv()

	batch, err := uc.Upload(context.Background(), "import.csv", []byte(batchCSV), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	task, _ := queue.pop()

	if err := uc.Cancel(context.Background(), batch.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := uc.HandleProcessBatch(context.Background(), task); err != nil {
		t.Fatalf("HandleProcessBatch: %v", err)
	}
	if len(searches.searches) != 0 {
		t.Errorf("cancelled batch still created %d searches", len(searches.searches))
	}
}

func TestCancelTerminalBatchRejected(t *testing.T) {
	uc, _, _, queue := batchEnv()

	batch, err := uc.Upload(context.Background(), "import.csv",
		[]byte("1437 Bannock St,Denver,Denver\n"), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	task, _ := queue.pop()
	if err := uc.HandleProcessBatch(context.Background(), task); err != nil {
		t.Fatalf("HandleProcessBatch: %v", err)
	}

	if err := uc.Cancel(context.Background(), batch.ID); !domain.IsKind(err, domain.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestUploadRejectsUnparsableFile(t *testing.T) {
	batches := newFakeBatchRepo()
	queue := &fakeQueue{}
	submit := NewSubmitUseCase(newFakeSearchRepo(), newFakePropertyRepo(), newFakeJurisdictionRepo(denverRecorder()),
		queue, &fakeAudit{}, SubmitConfig{}, testLogger())
	parse := func(string, []byte) ([]domain.BatchItem, error) {
		return nil, domain.WrapError(domain.ErrValidation, "parse batch file", errors.New("unsupported format"))
	}
	uc := NewBatchUseCase(batches, queue, submit, parse, testLogger())

	if _, err := uc.Upload(context.Background(), "import.pdf", []byte("junk"), ""); !domain.IsKind(err, domain.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
	if _, ok := queue.pop(); ok {
		t.Error("task enqueued for rejected upload")
	}
}

func TestOnTerminalFailureMarksBatchFailed(t *testing.T) {
	uc, _, _, queue := batchEnv()

	batch, err := uc.Upload(context.Background(), "import.csv", []byte(batchCSV), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	task, _ := queue.pop()

	uc.OnTerminalFailure(context.Background(), task, errors.New("retries exhausted"))

	final, _ := uc.Get(context.Background(), batch.ID)
	if final.Status != domain.BatchFailed {
		t.Errorf("status = %s, want %s", final.Status, domain.BatchFailed)
	}
}
