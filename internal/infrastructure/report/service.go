// Package report synthesizes the title report artifact from a search's
// derived chain and encumbrances. The artifact is a deterministic
// function of its inputs and is stored under its own content hash, so
// regenerating an unchanged search yields the same reference.
package report

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

type Service struct {
	blobs      ports.BlobStore
	properties ports.PropertyRepository
	documents  ports.DocumentRepository
	logger     *slog.Logger
}

var _ ports.ReportService = (*Service)(nil)

func NewService(blobs ports.BlobStore, properties ports.PropertyRepository, documents ports.DocumentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{blobs: blobs, properties: properties, documents: documents, logger: logger}
}

// Report is the artifact body. Field order and formatting are stable;
// the content hash doubles as the idempotency key.
type Report struct {
	SearchID        string        `json:"search_id"`
	ReferenceNumber string        `json:"reference_number"`
	ScheduleA       ScheduleA     `json:"schedule_a"`
	ScheduleB1      []Requirement `json:"schedule_b1"`
	ScheduleB2      []Exception   `json:"schedule_b2"`
	ChainNarrative  string        `json:"chain_narrative"`
	RiskScore       int           `json:"risk_score"`
	RiskSummary     string        `json:"risk_summary"`
}

type ScheduleA struct {
	Property Vesting `json:"property"`
	Vesting  struct {
		CurrentOwner      string `json:"current_owner"`
		VestingType       string `json:"vesting_type"`
		VestingInstrument string `json:"vesting_instrument"`
		VestingDate       string `json:"vesting_date"`
	} `json:"vesting"`
}

type Vesting struct {
	StreetAddress    string `json:"street_address"`
	City             string `json:"city"`
	County           string `json:"county"`
	State            string `json:"state"`
	ZipCode          string `json:"zip_code"`
	ParcelNumber     string `json:"parcel_number"`
	LegalDescription string `json:"legal_description"`
}

type Requirement struct {
	Number         int    `json:"number"`
	Type           string `json:"type"`
	Holder         string `json:"holder"`
	Amount         string `json:"amount"`
	Reference      string `json:"reference"`
	RecordingDate  string `json:"recording_date"`
	Description    string `json:"description"`
	ActionRequired string `json:"action_required"`
}

type Exception struct {
	Number        int    `json:"number"`
	Type          string `json:"type"`
	Description   string `json:"description"`
	Reference     string `json:"reference"`
	RecordingDate string `json:"recording_date"`
	Affects       string `json:"affects"`
}

func (s *Service) Generate(ctx context.Context, search *domain.TitleSearch, entries []domain.ChainOfTitleEntry, encs []domain.Encumbrance) (*domain.ReportArtifact, error) {
	if search == nil {
		return nil, domain.WrapError(domain.ErrValidation, "report generate", fmt.Errorf("nil search"))
	}

	var prop *domain.Property
	if s.properties != nil && search.PropertyID != "" {
		loaded, err := s.properties.GetByID(ctx, search.PropertyID)
		if err != nil {
			return nil, fmt.Errorf("load property: %w", err)
		}
		prop = loaded
	}

	needsReview := 0
	if s.documents != nil {
		docs, err := s.documents.ListBySearch(ctx, search.ID)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		for _, doc := range docs {
			if doc.NeedsReview {
				needsReview++
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SequenceNumber < entries[j].SequenceNumber
	})

	score, summary := riskScore(entries, encs, needsReview)
	body := Report{
		SearchID:        search.ID,
		ReferenceNumber: search.ReferenceNumber,
		ScheduleA:       buildScheduleA(search, prop, entries),
		ScheduleB1:      buildRequirements(encs),
		ScheduleB2:      buildExceptions(encs),
		ChainNarrative:  chainNarrative(entries),
		RiskScore:       score,
		RiskSummary:     summary,
	}

	encoded, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	sum := sha256.Sum256(encoded)
	hash := hex.EncodeToString(sum[:])
	key := fmt.Sprintf("reports/%s/%s.json", search.ID, hash)

	if err := s.blobs.Save(ctx, key, bytes.NewReader(encoded)); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	s.logger.Info("report_generated", "search_id", search.ID, "key", key, "risk_score", score)

	return &domain.ReportArtifact{
		SearchID:    search.ID,
		Path:        key,
		ContentHash: hash,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func buildScheduleA(search *domain.TitleSearch, prop *domain.Property, entries []domain.ChainOfTitleEntry) ScheduleA {
	var schedule ScheduleA
	if prop != nil {
		schedule.Property = Vesting{
			StreetAddress:    prop.StreetAddress,
			City:             prop.City,
			County:           prop.County,
			State:            prop.State,
			ZipCode:          prop.ZipCode,
			ParcelNumber:     prop.ParcelNumber,
			LegalDescription: prop.LegalDescription,
		}
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		schedule.Vesting.CurrentOwner = strings.Join(last.GranteeNames, ", ")
		schedule.Vesting.VestingType = last.TransactionType
		schedule.Vesting.VestingInstrument = last.RecordingReference
		if last.TransactionDate != nil {
			schedule.Vesting.VestingDate = last.TransactionDate.Format("January 2, 2006")
		}
	}
	return schedule
}

var requirementTypes = map[domain.EncumbranceType]bool{
	domain.EncMortgage:      true,
	domain.EncDeedOfTrust:   true,
	domain.EncJudgmentLien:  true,
	domain.EncTaxLien:       true,
	domain.EncMechanicsLien: true,
	domain.EncHOALien:       true,
}

var requirementActions = map[domain.EncumbranceType]string{
	domain.EncMortgage:      "Obtain payoff statement and record satisfaction",
	domain.EncDeedOfTrust:   "Obtain payoff statement and record reconveyance",
	domain.EncJudgmentLien:  "Pay judgment and obtain release",
	domain.EncTaxLien:       "Pay delinquent taxes and obtain release",
	domain.EncMechanicsLien: "Obtain release or bond over lien",
	domain.EncHOALien:       "Pay HOA dues and obtain release",
}

// buildRequirements lists the active monetary liens a closing must
// satisfy.
func buildRequirements(encs []domain.Encumbrance) []Requirement {
	requirements := []Requirement{}
	for _, enc := range encs {
		if enc.Status != domain.EncActive || !requirementTypes[enc.Type] {
			continue
		}
		amount := enc.CurrentAmount
		if amount == "" {
			amount = enc.OriginalAmount
		}
		if amount == "" {
			amount = "Amount Unknown"
		} else {
			amount = "$" + amount
		}
		holder := enc.HolderName
		if holder == "" {
			holder = "Unknown"
		}
		action := requirementActions[enc.Type]
		if action == "" {
			action = "Resolve and obtain release"
		}
		requirements = append(requirements, Requirement{
			Number:         len(requirements) + 1,
			Type:           titleCase(string(enc.Type)),
			Holder:         holder,
			Amount:         amount,
			Reference:      enc.RecordingReference,
			RecordingDate:  formatDate(enc.RecordedDate),
			Description:    enc.Description,
			ActionRequired: action,
		})
	}
	return requirements
}

var standardExceptions = []string{
	"Rights or claims of parties in possession not shown by the public records.",
	"Easements or claims of easements not shown by the public records.",
	"Any encroachment, encumbrance, violation, variation, or adverse circumstance that would be disclosed by an accurate survey.",
	"Any lien for real estate taxes or assessments not yet due and payable.",
}

// buildExceptions lists non-monetary interests excepted from coverage,
// followed by the standard exceptions every report carries.
func buildExceptions(encs []domain.Encumbrance) []Exception {
	exceptions := []Exception{}
	for _, enc := range encs {
		if enc.Type != domain.EncEasement && enc.Type != domain.EncRestriction {
			continue
		}
		exceptions = append(exceptions, Exception{
			Number:        len(exceptions) + 1,
			Type:          titleCase(string(enc.Type)),
			Description:   enc.Description,
			Reference:     enc.RecordingReference,
			RecordingDate: formatDate(enc.RecordedDate),
			Affects:       "Entire Property",
		})
	}
	for _, description := range standardExceptions {
		exceptions = append(exceptions, Exception{
			Number:      len(exceptions) + 1,
			Type:        "Standard Exception",
			Description: description,
			Affects:     "Entire Property",
		})
	}
	return exceptions
}

func chainNarrative(entries []domain.ChainOfTitleEntry) string {
	if len(entries) == 0 {
		return "No chain of title entries found for this property."
	}

	var builder strings.Builder
	builder.WriteString("CHAIN OF TITLE\n")
	builder.WriteString(strings.Repeat("=", 50))
	builder.WriteString("\n\n")

	for _, entry := range entries {
		grantor := strings.Join(entry.GrantorNames, ", ")
		if grantor == "" {
			grantor = "Unknown Grantor"
		}
		grantee := strings.Join(entry.GranteeNames, ", ")
		if grantee == "" {
			grantee = "Unknown Grantee"
		}
		date := "Unknown Date"
		if entry.TransactionDate != nil {
			date = entry.TransactionDate.Format("January 2, 2006")
		}
		reference := entry.RecordingReference
		if reference == "" {
			reference = "N/A"
		}

		fmt.Fprintf(&builder, "%d. %s\n", entry.SequenceNumber, titleCase(entry.TransactionType))
		fmt.Fprintf(&builder, "   From: %s\n", grantor)
		fmt.Fprintf(&builder, "   To: %s\n", grantee)
		fmt.Fprintf(&builder, "   Date: %s\n", date)
		fmt.Fprintf(&builder, "   Instrument: %s\n", reference)
		if entry.Consideration != "" {
			fmt.Fprintf(&builder, "   Consideration: %s\n", entry.Consideration)
		}
		if entry.Description != "" {
			fmt.Fprintf(&builder, "   Notes: %s\n", entry.Description)
		}
		builder.WriteByte('\n')
	}
	return builder.String()
}

// riskScore folds chain completeness, active liens, review flags, and
// ownership gaps into a 0-100 score.
func riskScore(entries []domain.ChainOfTitleEntry, encs []domain.Encumbrance, needsReview int) (int, string) {
	score := 0
	var factors []string

	for _, enc := range encs {
		if enc.Status != domain.EncActive {
			continue
		}
		switch enc.Type {
		case domain.EncJudgmentLien, domain.EncTaxLien:
			score += 25
			factors = append(factors, fmt.Sprintf("High-risk lien: %s", enc.Type))
		case domain.EncMechanicsLien, domain.EncLisPendens:
			score += 20
			factors = append(factors, fmt.Sprintf("Active %s", enc.Type))
		case domain.EncMortgage, domain.EncDeedOfTrust:
			score += 5
			holder := enc.HolderName
			if holder == "" {
				holder = "Unknown lender"
			}
			factors = append(factors, fmt.Sprintf("Open loan: %s", holder))
		}
	}

	switch {
	case len(entries) < 2:
		score += 30
		factors = append(factors, "Incomplete chain of title - fewer than 2 transfers found")
	case len(entries) < 5:
		score += 10
		factors = append(factors, "Limited chain of title history")
	}

	if needsReview > 0 {
		score += 5 * needsReview
		factors = append(factors, fmt.Sprintf("%d document(s) require manual review", needsReview))
	}

	for i := 1; i < len(entries); i++ {
		if chainGap(entries[i-1].GranteeNames, entries[i].GrantorNames) {
			score += 15
			factors = append(factors, fmt.Sprintf("Potential gap in chain between entries %d and %d", i, i+1))
		}
	}

	if score > 100 {
		score = 100
	}

	var level, summary string
	switch {
	case score < 20:
		level, summary = "LOW", "Title appears clear with minimal issues."
	case score < 40:
		level, summary = "MODERATE", "Some issues identified that may require attention before closing."
	case score < 60:
		level, summary = "ELEVATED", "Multiple issues identified. Recommend thorough review before proceeding."
	case score < 80:
		level, summary = "HIGH", "Significant title issues present. May affect insurability."
	default:
		level, summary = "CRITICAL", "Critical title defects identified. Title may be uninsurable."
	}

	text := fmt.Sprintf("%s RISK (%d/100): %s", level, score, summary)
	if len(factors) > 0 {
		text += "\n\nRisk Factors:\n- " + strings.Join(factors, "\n- ")
	}
	return score, text
}

// chainGap reports a deed whose grantors share no name with the prior
// deed's grantees. Matching is exact; styling differences surface as
// false positives for a reviewer to clear.
func chainGap(prevGrantees, currentGrantors []string) bool {
	if len(prevGrantees) == 0 || len(currentGrantors) == 0 {
		return false
	}
	for _, grantee := range prevGrantees {
		for _, grantor := range currentGrantors {
			if strings.EqualFold(strings.TrimSpace(grantee), strings.TrimSpace(grantor)) {
				return false
			}
		}
	}
	return true
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("01/02/2006")
}

func titleCase(value string) string {
	words := strings.Split(strings.ReplaceAll(value, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
