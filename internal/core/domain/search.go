package domain

import "time"

type SearchStatus string

const (
	SearchPending    SearchStatus = "pending"
	SearchQueued     SearchStatus = "queued"
	SearchScraping   SearchStatus = "scraping"
	SearchAnalyzing  SearchStatus = "analyzing"
	SearchGenerating SearchStatus = "generating"
	SearchCompleted  SearchStatus = "completed"
	SearchFailed     SearchStatus = "failed"
	SearchCancelled  SearchStatus = "cancelled"
)

type SearchPriority string

const (
	PriorityLow    SearchPriority = "low"
	PriorityNormal SearchPriority = "normal"
	PriorityHigh   SearchPriority = "high"
	PriorityUrgent SearchPriority = "urgent"
)

type SourcePreference string

const (
	SourceScraping SourcePreference = "scraping"
	SourceAPI      SourcePreference = "api"
	SourceHybrid   SourcePreference = "hybrid"
)

type SearchType string

const (
	SearchTypeFull    SearchType = "full"
	SearchTypeLimited SearchType = "limited"
	SearchTypeUpdate  SearchType = "update"
)

// SearchError is one append-only entry in a search's error log.
type SearchError struct {
	Timestamp time.Time `json:"timestamp"`
	Task      string    `json:"task"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity,omitempty"`
}

type TitleSearch struct {
	ID              string           `json:"id"`
	ReferenceNumber string           `json:"reference_number"`
	PropertyID      string           `json:"property_id"`
	RequestedBy     string           `json:"requested_by,omitempty"`
	SearchType      SearchType       `json:"search_type"`
	SearchYears     int              `json:"search_years"`
	Priority        SearchPriority   `json:"priority"`
	Status          SearchStatus     `json:"status"`
	StatusMessage   string           `json:"status_message,omitempty"`
	ProgressPercent int              `json:"progress_percent"`
	RetryCount      int              `json:"retry_count"`
	ErrorLog        []SearchError    `json:"error_log,omitempty"`
	ActiveTaskID    string           `json:"active_task_id,omitempty"`
	PreferredSource SourcePreference `json:"preferred_source"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

func (s SearchStatus) Terminal() bool {
	switch s {
	case SearchCompleted, SearchFailed, SearchCancelled:
		return true
	}
	return false
}

var searchTransitions = map[SearchStatus][]SearchStatus{
	SearchPending:    {SearchQueued},
	SearchQueued:     {SearchScraping},
	SearchScraping:   {SearchAnalyzing},
	SearchAnalyzing:  {SearchGenerating},
	SearchGenerating: {SearchCompleted},
}

// CanTransition reports whether moving from one lifecycle status to
// another is legal. Failed and cancelled are reachable from every
// non-terminal status; terminal statuses accept nothing.
func (s SearchStatus) CanTransition(next SearchStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == SearchFailed || next == SearchCancelled {
		return true
	}
	for _, allowed := range searchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Fixed weighted progress schedule per stage: external observers see
// monotonic progress even though sub-task counts vary per search.
const (
	ProgressQueued          = 5
	ProgressSourcingStart   = 10
	ProgressSourcingEnd     = 60
	ProgressAnalysisEnd     = 85
	ProgressGenerationStart = 90
	ProgressComplete        = 100
)

// StageProgress maps a stage fraction (0..1) onto the fixed schedule.
func StageProgress(status SearchStatus, fraction float64) int {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	span := func(lo, hi int) int { return lo + int(fraction*float64(hi-lo)) }
	switch status {
	case SearchQueued:
		return ProgressQueued
	case SearchScraping:
		return span(ProgressSourcingStart, ProgressSourcingEnd)
	case SearchAnalyzing:
		return span(ProgressSourcingEnd, ProgressAnalysisEnd)
	case SearchGenerating:
		return span(ProgressAnalysisEnd, ProgressComplete)
	case SearchCompleted:
		return ProgressComplete
	}
	return 0
}
