package domain

import "time"

// ChainOfTitleEntry is one ordered link in ownership history. Entries
// are derived from documents, never hand-edited outside administrative
// correction; sequence numbers are strictly increasing within a search.
type ChainOfTitleEntry struct {
	ID                 string     `json:"id"`
	SearchID           string     `json:"search_id"`
	DocumentID         string     `json:"document_id,omitempty"`
	SequenceNumber     int        `json:"sequence_number"`
	TransactionType    string     `json:"transaction_type,omitempty"`
	TransactionDate    *time.Time `json:"transaction_date,omitempty"`
	GrantorNames       []string   `json:"grantor_names,omitempty"`
	GranteeNames       []string   `json:"grantee_names,omitempty"`
	Consideration      string     `json:"consideration,omitempty"`
	RecordingReference string     `json:"recording_reference,omitempty"`
	Description        string     `json:"description,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
