package domain

import "time"

type DocumentType string

const (
	DocDeed         DocumentType = "deed"
	DocDeedOfTrust  DocumentType = "deed_of_trust"
	DocMortgage     DocumentType = "mortgage"
	DocLien         DocumentType = "lien"
	DocJudgment     DocumentType = "judgment"
	DocEasement     DocumentType = "easement"
	DocRelease      DocumentType = "release"
	DocSatisfaction DocumentType = "satisfaction"
	DocAssignment   DocumentType = "assignment"
	DocLisPendens   DocumentType = "lis_pendens"
	DocCourtFiling  DocumentType = "court_filing"
	DocPlat         DocumentType = "plat"
	DocOther        DocumentType = "other"
)

type DocumentSource string

const (
	SourceCountyRecorder DocumentSource = "county_recorder"
	SourceCourtRecords   DocumentSource = "court_records"
	SourceCommercialAPI  DocumentSource = "commercial_api"
	SourceManualUpload   DocumentSource = "manual_upload"
)

// Document is one retrieved or uploaded instrument. Once a file hash is
// set the stored content is immutable; only extraction output and review
// flags may change afterwards.
type Document struct {
	ID               string         `json:"id"`
	SearchID         string         `json:"search_id"`
	Type             DocumentType   `json:"type"`
	Source           DocumentSource `json:"source"`
	InstrumentNumber string         `json:"instrument_number,omitempty"`
	Book             string         `json:"book,omitempty"`
	Page             string         `json:"page,omitempty"`
	RecordingDate    *time.Time     `json:"recording_date,omitempty"`
	Grantor          []string       `json:"grantor,omitempty"`
	Grantee          []string       `json:"grantee,omitempty"`
	Consideration    string         `json:"consideration,omitempty"`
	SourceURL        string         `json:"source_url,omitempty"`
	FilePath         string         `json:"file_path,omitempty"`
	FileName         string         `json:"file_name,omitempty"`
	FileSize         int64          `json:"file_size,omitempty"`
	FileHash         string         `json:"file_hash,omitempty"`
	OCRText          string         `json:"ocr_text,omitempty"`
	AISummary        string         `json:"ai_summary,omitempty"`
	AIExtractedData  map[string]any `json:"ai_extracted_data,omitempty"`
	NeedsReview      bool           `json:"needs_review"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Conveyance reports whether the document transfers ownership and so
// belongs in the chain of title.
func (t DocumentType) Conveyance() bool {
	return t == DocDeed || t == DocDeedOfTrust
}
