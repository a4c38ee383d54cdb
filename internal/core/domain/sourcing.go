package domain

import "time"

// SearchOutcome distinguishes the three results every adapter operation
// must report: an empty result set is not an error and source loss is
// not an empty result set.
type SearchOutcome string

const (
	OutcomeNoMatches   SearchOutcome = "no_matches"
	OutcomeMatches     SearchOutcome = "matches"
	OutcomeUnavailable SearchOutcome = "unavailable"
)

// Instrument is one recorded-document reference returned by a
// jurisdiction source before the binary is fetched.
type Instrument struct {
	InstrumentNumber string            `json:"instrument_number"`
	Type             DocumentType      `json:"type"`
	RecordingDate    *time.Time        `json:"recording_date,omitempty"`
	Grantor          []string          `json:"grantor,omitempty"`
	Grantee          []string          `json:"grantee,omitempty"`
	Book             string            `json:"book,omitempty"`
	Page             string            `json:"page,omitempty"`
	Consideration    string            `json:"consideration,omitempty"`
	DownloadURL      string            `json:"download_url,omitempty"`
	Raw              map[string]string `json:"raw,omitempty"`
}

type InstrumentPage struct {
	Outcome     SearchOutcome `json:"outcome"`
	Instruments []Instrument  `json:"instruments,omitempty"`
	NextToken   string        `json:"next_token,omitempty"`
}

// SearchWindow bounds a records search in time.
type SearchWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowForYears builds the default lookback window for a search depth.
func WindowForYears(now time.Time, years int) SearchWindow {
	if years <= 0 {
		years = 40
	}
	return SearchWindow{Start: now.AddDate(-years, 0, 0), End: now}
}

// DocumentBinary is a fetched instrument body prior to storage.
type DocumentBinary struct {
	Data     []byte `json:"-"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

type CaseType string

const (
	CaseForeclosure CaseType = "foreclosure"
	CaseJudgment    CaseType = "judgment"
	CaseLisPendens  CaseType = "lis_pendens"
	CaseCivil       CaseType = "civil"
	CaseProbate     CaseType = "probate"
)

type CaseStatus string

const (
	CaseOpen          CaseStatus = "open"
	CasePendingStatus CaseStatus = "pending"
	CaseClosed        CaseStatus = "closed"
	CaseUnknown       CaseStatus = "unknown"
)

// CourtCase is one court-record hit for a party name.
type CourtCase struct {
	CaseNumber  string     `json:"case_number"`
	Type        CaseType   `json:"type"`
	Status      CaseStatus `json:"status"`
	Parties     []string   `json:"parties,omitempty"`
	FilingDate  *time.Time `json:"filing_date,omitempty"`
	CourtName   string     `json:"court_name,omitempty"`
	CaseURL     string     `json:"case_url,omitempty"`
	Description string     `json:"description,omitempty"`
}

// DocumentType maps a case type onto the document taxonomy.
func (t CaseType) DocumentType() DocumentType {
	switch t {
	case CaseForeclosure, CaseLisPendens:
		return DocLisPendens
	case CaseJudgment:
		return DocJudgment
	}
	return DocCourtFiling
}

// EncumbranceType maps a case type onto the encumbrance taxonomy; not
// every case type encumbers title.
func (t CaseType) EncumbranceType() (EncumbranceType, bool) {
	switch t {
	case CaseForeclosure, CaseLisPendens:
		return EncLisPendens, true
	case CaseJudgment, CaseCivil:
		return EncJudgmentLien, true
	}
	return "", false
}

// ReportArtifact references a synthesized report in the blob store.
type ReportArtifact struct {
	SearchID    string    `json:"search_id"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	GeneratedAt time.Time `json:"generated_at"`
}
