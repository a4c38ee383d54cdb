package domain

import (
	"strings"
	"time"
)

// ClassifyDocumentType normalizes the raw instrument-type text county
// sites display into the document taxonomy. Longest phrases first so
// "deed of trust" never classifies as a plain deed.
func ClassifyDocumentType(raw string) DocumentType {
	t := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case strings.Contains(t, "deed of trust"):
		return DocDeedOfTrust
	case strings.Contains(t, "warranty deed"),
		strings.Contains(t, "quit claim"),
		strings.Contains(t, "quitclaim"),
		strings.Contains(t, "special warranty"):
		return DocDeed
	case strings.Contains(t, "mortgage"):
		return DocMortgage
	case strings.Contains(t, "mechanics lien"), strings.Contains(t, "mechanic's lien"):
		return DocLien
	case strings.Contains(t, "judgment"):
		return DocJudgment
	case strings.Contains(t, "lis pendens"):
		return DocLisPendens
	case strings.Contains(t, "release"), strings.Contains(t, "reconveyance"):
		return DocRelease
	case strings.Contains(t, "satisfaction"):
		return DocSatisfaction
	case strings.Contains(t, "assignment"):
		return DocAssignment
	case strings.Contains(t, "easement"):
		return DocEasement
	case strings.Contains(t, "plat"), strings.Contains(t, "subdivision"):
		return DocPlat
	case strings.Contains(t, "lien"):
		return DocLien
	case strings.Contains(t, "deed"):
		return DocDeed
	}
	return DocOther
}

var recordingDateFormats = []string{
	"01/02/2006",
	"01-02-2006",
	"2006-01-02",
	"01/02/06",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseRecordingDate tries the date formats county sites actually use.
func ParseRecordingDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, format := range recordingDateFormats {
		if parsed, err := time.Parse(format, raw); err == nil {
			return &parsed
		}
	}
	return nil
}

var partyDelimiters = []string{";", " AND ", " & ", "/", ","}

// SplitPartyNames splits a raw grantor/grantee cell into individual
// names. Sites concatenate parties with inconsistent delimiters.
func SplitPartyNames(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	names := []string{raw}
	for _, delim := range partyDelimiters {
		var next []string
		for _, name := range names {
			next = append(next, strings.Split(name, delim)...)
		}
		names = next
	}

	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if len(name) > 1 {
			cleaned = append(cleaned, name)
		}
	}
	return cleaned
}

// OwnerName is a (last, first) pair used for court-record lookups.
type OwnerName struct {
	Last  string
	First string
}

// ParseOwnerName splits one recorded grantee name into last/first
// parts, handling both "Last, First" and "First Last" forms.
func ParseOwnerName(raw string) (OwnerName, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return OwnerName{}, false
	}
	if idx := strings.Index(raw, ","); idx >= 0 {
		return OwnerName{
			Last:  strings.TrimSpace(raw[:idx]),
			First: strings.TrimSpace(raw[idx+1:]),
		}, true
	}
	parts := strings.Fields(raw)
	if len(parts) >= 2 {
		return OwnerName{
			Last:  parts[len(parts)-1],
			First: strings.Join(parts[:len(parts)-1], " "),
		}, true
	}
	return OwnerName{Last: raw}, true
}
