package domain

import "time"

type TaskType string

const (
	TaskOrchestrateSearch  TaskType = "orchestrate_search"
	TaskScrapeRecords      TaskType = "scrape_records"
	TaskFetchDocument      TaskType = "fetch_document"
	TaskAnalyzeDocuments   TaskType = "analyze_documents"
	TaskGenerateReport     TaskType = "generate_report"
	TaskProcessBatch       TaskType = "process_batch"
	TaskProbeJurisdictions TaskType = "probe_jurisdictions"
	TaskExpireStale        TaskType = "expire_stale_searches"
)

// Task is the queue payload. Consumers must be idempotent with respect
// to redelivery: acknowledgment happens only after successful
// completion, so a worker lost mid-task causes the same payload to be
// delivered again.
type Task struct {
	ID         string         `json:"id"`
	Type       TaskType       `json:"type"`
	SearchID   string         `json:"search_id,omitempty"`
	BatchID    string         `json:"batch_id,omitempty"`
	Priority   SearchPriority `json:"priority,omitempty"`
	Attempt    int            `json:"attempt"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}
