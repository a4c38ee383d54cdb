package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

var documentEncumbranceType = map[domain.DocumentType]domain.EncumbranceType{
	domain.DocMortgage:    domain.EncMortgage,
	domain.DocDeedOfTrust: domain.EncDeedOfTrust,
	domain.DocLien:        domain.EncMechanicsLien,
	domain.DocJudgment:    domain.EncJudgmentLien,
	domain.DocEasement:    domain.EncEasement,
	domain.DocLisPendens:  domain.EncLisPendens,
}

var lienTypeKeywords = []struct {
	encType  domain.EncumbranceType
	keywords []string
}{
	{domain.EncMechanicsLien, []string{"mechanic's lien", "mechanics lien", "materialman's lien", "construction lien", "contractor's lien", "labor lien"}},
	{domain.EncTaxLien, []string{"tax lien", "property tax", "delinquent tax", "tax sale"}},
	{domain.EncHOALien, []string{"hoa lien", "homeowner's association", "association lien", "assessment lien", "condo association"}},
	{domain.EncJudgmentLien, []string{"judgment lien", "abstract of judgment", "court judgment", "civil judgment"}},
}

var releaseKeywords = []string{
	"release", "satisfaction", "reconveyance", "discharged",
	"paid in full", "satisfied", "released of record",
}

var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{2})?)`),
	regexp.MustCompile(`([\d,]+(?:\.\d{2})?)\s+[Dd]ollars`),
	regexp.MustCompile(`[Aa]mount[:\s]+\$?\s*([\d,]+)`),
	regexp.MustCompile(`[Pp]rincipal[:\s]+\$?\s*([\d,]+)`),
}

var nonAmountChars = regexp.MustCompile(`[$,]`)

type releaseRecord struct {
	documentID         string
	originalReference  string
	releaseDate        *time.Time
	recordingReference string
}

type detection struct {
	encumbrance *domain.Encumbrance
	release     *releaseRecord
}

// detectEncumbrance interprets one document against the encumbrance
// taxonomy. Returns nil when the document neither creates nor releases
// an interest.
func detectEncumbrance(doc *domain.Document, text string) *detection {
	encType, ok := documentEncumbranceType[doc.Type]
	if !ok {
		if doc.Type == domain.DocRelease || doc.Type == domain.DocSatisfaction {
			return &detection{release: &releaseRecord{
				documentID:         doc.ID,
				originalReference:  referencedInstrument(doc),
				releaseDate:        doc.RecordingDate,
				recordingReference: recordingReference(doc),
			}}
		}
		return nil
	}

	if text == "" {
		text = doc.AISummary
	}
	if doc.Type == domain.DocLien {
		encType = refineLienType(text)
	}

	status := domain.EncActive
	if isReleaseText(text) {
		status = domain.EncReleased
	}

	amount := extractAmount(doc, text)
	risk := riskLevel(encType, status, amount)

	return &detection{encumbrance: &domain.Encumbrance{
		SearchID:           doc.SearchID,
		DocumentID:         doc.ID,
		Type:               encType,
		Status:             status,
		HolderName:         holderName(doc),
		OriginalAmount:     amount,
		CurrentAmount:      amount,
		RecordedDate:       doc.RecordingDate,
		RecordingReference: recordingReference(doc),
		Description:        describeEncumbrance(doc, encType),
		RiskLevel:          risk,
		RequiresAction:     status == domain.EncActive,
		ActionDescription:  actionDescription(encType, status),
	}}
}

// matchReleases marks encumbrances released when a later release
// document cites their recording reference.
func matchReleases(encumbrances []domain.Encumbrance, releases []releaseRecord) {
	for _, release := range releases {
		if release.originalReference == "" {
			continue
		}
		for i := range encumbrances {
			if !strings.Contains(encumbrances[i].RecordingReference, release.originalReference) {
				continue
			}
			if !encumbrances[i].Status.CanTransition(domain.EncReleased) {
				continue
			}
			encumbrances[i].Status = domain.EncReleased
			encumbrances[i].ReleasedDate = release.releaseDate
			encumbrances[i].RiskLevel = domain.RiskLow
			encumbrances[i].RequiresAction = false
			encumbrances[i].ActionDescription = "Release recorded."
			break
		}
	}
}

// referencedInstrument pulls the instrument number a release cites,
// either from extracted data or from the release text itself.
func referencedInstrument(doc *domain.Document) string {
	if doc.AIExtractedData != nil {
		if refs, ok := doc.AIExtractedData["references"].([]any); ok && len(refs) > 0 {
			if ref, ok := refs[0].(string); ok {
				return ref
			}
		}
		if ref, ok := doc.AIExtractedData["releases_instrument"].(string); ok {
			return ref
		}
	}
	return ""
}

func refineLienType(text string) domain.EncumbranceType {
	lower := strings.ToLower(text)
	for _, group := range lienTypeKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(lower, keyword) {
				return group.encType
			}
		}
	}
	return domain.EncMechanicsLien
}

func isReleaseText(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range releaseKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// holderName is the beneficiary of the interest, conventionally the
// grantee on the recorded instrument.
func holderName(doc *domain.Document) string {
	if len(doc.Grantee) > 0 {
		return doc.Grantee[0]
	}
	return ""
}

func extractAmount(doc *domain.Document, text string) string {
	if doc.Consideration != "" {
		return normalizeAmount(doc.Consideration)
	}
	for _, pattern := range amountPatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			return normalizeAmount(match[1])
		}
	}
	return ""
}

func normalizeAmount(raw string) string {
	return nonAmountChars.ReplaceAllString(strings.TrimSpace(raw), "")
}

func recordingReference(doc *domain.Document) string {
	var parts []string
	if doc.InstrumentNumber != "" {
		parts = append(parts, fmt.Sprintf("Reception #%s", doc.InstrumentNumber))
	}
	if doc.Book != "" && doc.Page != "" {
		parts = append(parts, fmt.Sprintf("Book %s, Page %s", doc.Book, doc.Page))
	}
	return strings.Join(parts, "; ")
}

var encumbranceTypeNames = map[domain.EncumbranceType]string{
	domain.EncMortgage:      "Mortgage",
	domain.EncDeedOfTrust:   "Deed of Trust",
	domain.EncTaxLien:       "Tax Lien",
	domain.EncMechanicsLien: "Mechanic's Lien",
	domain.EncJudgmentLien:  "Judgment Lien",
	domain.EncHOALien:       "HOA Lien",
	domain.EncEasement:      "Easement",
	domain.EncRestriction:   "Restriction",
	domain.EncLisPendens:    "Lis Pendens",
}

func describeEncumbrance(doc *domain.Document, encType domain.EncumbranceType) string {
	name := encumbranceTypeNames[encType]
	if name == "" {
		name = "Encumbrance"
	}
	parts := []string{name}
	if holder := holderName(doc); holder != "" {
		parts = append(parts, fmt.Sprintf("in favor of %s", holder))
	}
	if doc.RecordingDate != nil {
		parts = append(parts, fmt.Sprintf("recorded %s", doc.RecordingDate.Format("01/02/2006")))
	}
	return strings.Join(parts, " ")
}

func riskLevel(encType domain.EncumbranceType, status domain.EncumbranceStatus, amount string) domain.RiskLevel {
	if status == domain.EncReleased || status == domain.EncSatisfied {
		return domain.RiskLow
	}
	switch encType {
	case domain.EncJudgmentLien, domain.EncLisPendens:
		return domain.RiskCritical
	case domain.EncTaxLien, domain.EncMechanicsLien:
		return domain.RiskHigh
	case domain.EncMortgage, domain.EncDeedOfTrust:
		if amountAbove(amount, 100000) {
			return domain.RiskHigh
		}
		return domain.RiskMedium
	}
	return domain.RiskMedium
}

func amountAbove(amount string, threshold float64) bool {
	if amount == "" {
		return false
	}
	var value float64
	if _, err := fmt.Sscanf(amount, "%f", &value); err != nil {
		return false
	}
	return value > threshold
}

var encumbranceActions = map[domain.EncumbranceType]string{
	domain.EncMortgage:      "Obtain payoff statement and arrange for satisfaction at closing.",
	domain.EncDeedOfTrust:   "Obtain payoff statement and arrange for reconveyance at closing.",
	domain.EncTaxLien:       "Obtain tax certificate showing current status. Pay prior to closing.",
	domain.EncMechanicsLien: "Obtain lien waiver or arrange payment from closing funds.",
	domain.EncJudgmentLien:  "Obtain payoff amount. May require satisfaction agreement.",
	domain.EncHOALien:       "Obtain estoppel letter from HOA showing amounts due.",
	domain.EncLisPendens:    "Review pending litigation. May need court approval for sale.",
	domain.EncEasement:      "Review for impact on use of property.",
}

func actionDescription(encType domain.EncumbranceType, status domain.EncumbranceStatus) string {
	if status == domain.EncReleased || status == domain.EncSatisfied {
		return "Verify release is properly recorded."
	}
	if action, ok := encumbranceActions[encType]; ok {
		return action
	}
	return "Review and determine appropriate action."
}
