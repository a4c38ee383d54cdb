package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

// sourceInstruments picks and runs the record source for a search.
// Scraping-preferred searches only scrape; API-preferred only call the
// commercial source; hybrid searches scrape first and fall back to the
// API once the retry budget is spent or the jurisdiction is already
// marked unhealthy.
func (uc *OrchestrateUseCase) sourceInstruments(ctx context.Context, search *domain.TitleSearch, property *domain.Property) ([]domain.Instrument, domain.DocumentSource, error) {
	window := domain.WindowForYears(uc.now(), search.SearchYears)

	if search.PreferredSource == domain.SourceAPI {
		instruments, err := uc.commercialInstruments(ctx, property, window)
		return instruments, domain.SourceCommercialAPI, err
	}

	cfg, cfgErr := uc.jurisdictions.GetByName(ctx, property.County, domain.JurisdictionRecorder)
	if cfgErr != nil && !domain.IsKind(cfgErr, domain.ErrJurisdictionUnsupported) {
		return nil, "", cfgErr
	}

	if search.PreferredSource == domain.SourceHybrid && uc.commercial != nil {
		if cfg == nil || !cfg.IsHealthy || !cfg.ScrapingEnabled {
			uc.logger.Info("hybrid_search_skipping_scrape",
				"search_id", search.ID,
				"county", property.County,
			)
			instruments, err := uc.commercialInstruments(ctx, property, window)
			return instruments, domain.SourceCommercialAPI, err
		}
	}

	instruments, err := uc.scrapeInstruments(ctx, property, cfg, window)
	if err == nil {
		if cfg != nil {
			if recErr := uc.jurisdictions.RecordSuccess(ctx, cfg.ID); recErr != nil {
				uc.logger.Warn("record_success_failed", "jurisdiction", property.County, "error", recErr)
			}
		}
		return instruments, domain.SourceCountyRecorder, nil
	}

	if cfg != nil && domain.Retryable(err) {
		if recErr := uc.jurisdictions.RecordFailure(ctx, cfg.ID, uc.cfg.UnhealthyAfterFailures); recErr != nil {
			uc.logger.Warn("record_failure_failed", "jurisdiction", property.County, "error", recErr)
		}
	}

	// Every failed sourcing attempt is counted against the search and
	// captured in its error log before any retry decision.
	retries, retryErr := uc.searches.IncrementRetry(ctx, search.ID)
	if retryErr != nil {
		return nil, "", retryErr
	}
	uc.appendWarning(ctx, search.ID, "scrape_records",
		fmt.Errorf("attempt %d: %w", retries, err))

	if search.PreferredSource != domain.SourceHybrid || uc.commercial == nil {
		return nil, "", err
	}
	if domain.Retryable(err) && retries != uc.cfg.FallbackAfterRetries {
		// Let the queue redeliver; the fallback budget is not spent yet.
		return nil, "", err
	}

	uc.logger.Warn("hybrid_fallback_engaged",
		"search_id", search.ID,
		"county", property.County,
		"retries", retries,
	)

	instruments, apiErr := uc.commercialInstruments(ctx, property, window)
	if apiErr != nil {
		// Both sources are spent; the failure must not be retried, or
		// the commercial API would be attempted again on redelivery.
		return nil, "", domain.WrapError(domain.ErrSourceExhausted, "source records", apiErr)
	}
	return instruments, domain.SourceCommercialAPI, nil
}

func (uc *OrchestrateUseCase) scrapeInstruments(ctx context.Context, property *domain.Property, cfg *domain.JurisdictionConfig, window domain.SearchWindow) ([]domain.Instrument, error) {
	adapter, err := uc.recorders.Resolve(property.County, cfg)
	if err != nil {
		return nil, err
	}

	var page domain.InstrumentPage
	if property.ParcelNumber != "" {
		page, err = adapter.SearchByParcel(ctx, property.ParcelNumber, window)
	} else {
		page, err = adapter.SearchByParty(ctx, property.StreetAddress, window)
	}
	if err != nil {
		return nil, err
	}

	instruments, err := uc.drainPages(ctx, adapter, page)
	if err != nil {
		return nil, err
	}
	return instruments, nil
}

// drainPages walks the paginated result set to completion, bounded by
// MaxResultPages so a misbehaving source cannot loop forever.
func (uc *OrchestrateUseCase) drainPages(ctx context.Context, adapter ports.RecorderAdapter, first domain.InstrumentPage) ([]domain.Instrument, error) {
	if first.Outcome == domain.OutcomeUnavailable {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "scrape records",
			fmt.Errorf("source reported unavailable"))
	}

	instruments := first.Instruments
	token := first.NextToken
	for pages := 1; token != "" && pages < uc.cfg.MaxResultPages; pages++ {
		page, err := adapter.ListInstruments(ctx, token)
		if err != nil {
			return nil, err
		}
		if page.Outcome == domain.OutcomeUnavailable {
			return nil, domain.WrapError(domain.ErrSourceUnavailable, "scrape records",
				fmt.Errorf("source became unavailable on page %d", pages+1))
		}
		instruments = append(instruments, page.Instruments...)
		token = page.NextToken
	}
	return instruments, nil
}

func (uc *OrchestrateUseCase) commercialInstruments(ctx context.Context, property *domain.Property, window domain.SearchWindow) ([]domain.Instrument, error) {
	if uc.commercial == nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "commercial source",
			fmt.Errorf("no commercial API configured"))
	}

	var page domain.InstrumentPage
	var err error
	if property.ParcelNumber != "" {
		page, err = uc.commercial.SearchByParcel(ctx, property.County, property.ParcelNumber, window)
	} else {
		page, err = uc.commercial.SearchByAddress(ctx, property.County, property.StreetAddress, window)
	}
	if err != nil {
		return nil, err
	}
	if page.Outcome == domain.OutcomeUnavailable {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "commercial source",
			fmt.Errorf("source reported unavailable"))
	}
	return page.Instruments, nil
}

func (uc *OrchestrateUseCase) resolveRecorder(ctx context.Context, county string) (ports.RecorderAdapter, error) {
	cfg, err := uc.jurisdictions.GetByName(ctx, county, domain.JurisdictionRecorder)
	if err != nil && !domain.IsKind(err, domain.ErrJurisdictionUnsupported) {
		return nil, err
	}
	return uc.recorders.Resolve(county, cfg)
}

// courtRecordsPass searches state court records for the current owner
// and records hits as court documents. Any failure is logged as a
// warning on the search; the pass never fails the stage.
func (uc *OrchestrateUseCase) courtRecordsPass(ctx context.Context, search *domain.TitleSearch, property *domain.Property) int {
	owners, err := uc.currentOwnerNames(ctx, search.ID)
	if err != nil {
		uc.appendWarning(ctx, search.ID, "search_court_records", err)
		return 0
	}
	if len(owners) == 0 {
		uc.logger.Info("court_pass_skipped_no_owners", "search_id", search.ID)
		return 0
	}

	state := property.State
	if state == "" {
		state = uc.cfg.DefaultState
	}
	courtCfg, err := uc.jurisdictions.GetByName(ctx, property.County, domain.JurisdictionCourt)
	if err != nil && !domain.IsKind(err, domain.ErrJurisdictionUnsupported) {
		uc.appendWarning(ctx, search.ID, "search_court_records", err)
		return 0
	}
	adapter, err := uc.courts.Resolve(state, courtCfg)
	if err != nil {
		uc.appendWarning(ctx, search.ID, "search_court_records", err)
		return 0
	}

	recorded := 0
	for _, owner := range owners {
		cases, err := adapter.SearchByName(ctx, owner.Last, owner.First, property.County)
		if err != nil {
			uc.appendWarning(ctx, search.ID, "search_court_records", err)
			continue
		}
		for _, courtCase := range cases {
			if uc.recordCourtCase(ctx, search.ID, courtCase) {
				recorded++
			}
		}
	}
	return recorded
}

// currentOwnerNames pulls the grantees of the most recently recorded
// conveyance; these are the parties court records are searched under.
func (uc *OrchestrateUseCase) currentOwnerNames(ctx context.Context, searchID string) ([]domain.OwnerName, error) {
	docs, err := uc.documents.ListBySearch(ctx, searchID)
	if err != nil {
		return nil, err
	}

	var latest *domain.Document
	for i := range docs {
		doc := &docs[i]
		if !doc.Type.Conveyance() || len(doc.Grantee) == 0 {
			continue
		}
		if latest == nil || laterRecording(doc, latest) {
			latest = doc
		}
	}
	if latest == nil {
		return nil, nil
	}

	var owners []domain.OwnerName
	for _, grantee := range latest.Grantee {
		if owner, ok := domain.ParseOwnerName(grantee); ok {
			owners = append(owners, owner)
		}
		if len(owners) == 3 {
			break
		}
	}
	return owners, nil
}

func laterRecording(a, b *domain.Document) bool {
	if a.RecordingDate == nil {
		return false
	}
	if b.RecordingDate == nil {
		return true
	}
	return a.RecordingDate.After(*b.RecordingDate)
}

// recordCourtCase stores one case hit as a document. Closed cases keep
// a generic court-filing type so analysis never derives an active
// encumbrance from resolved litigation.
func (uc *OrchestrateUseCase) recordCourtCase(ctx context.Context, searchID string, courtCase domain.CourtCase) bool {
	docType := domain.DocCourtFiling
	if courtCase.Status != domain.CaseClosed {
		docType = courtCase.Type.DocumentType()
	}

	description := courtCase.Description
	if description == "" {
		description = courtCase.CaseNumber
	}
	inst := domain.Instrument{
		InstrumentNumber: courtCase.CaseNumber,
		Type:             docType,
		RecordingDate:    courtCase.FilingDate,
		DownloadURL:      courtCase.CaseURL,
	}
	if len(courtCase.Parties) > 0 {
		inst.Grantor = courtCase.Parties[:1]
	}
	if len(courtCase.Parties) > 1 {
		inst.Grantee = courtCase.Parties[1:2]
	}

	created, err := uc.recordInstrument(ctx, searchID, inst, domain.SourceCourtRecords)
	if err != nil {
		uc.appendWarning(ctx, searchID, "search_court_records", err)
		return false
	}
	if created {
		summary := fmt.Sprintf("%s case: %s", capitalize(string(courtCase.Type)), description)
		id := instrumentDocID(searchID, domain.SourceCourtRecords, courtCase.CaseNumber)
		if err := uc.documents.SaveExtraction(ctx, id, "", summary, map[string]any{
			"case_status": string(courtCase.Status),
			"court_name":  courtCase.CourtName,
		}); err != nil {
			uc.logger.Warn("court_summary_save_failed", "document_id", id, "error", err)
		}
	}
	return created
}

func capitalize(value string) string {
	value = strings.ReplaceAll(value, "_", " ")
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func documentKey(doc *domain.Document, binary *domain.DocumentBinary) string {
	ext := path.Ext(binary.FileName)
	if ext == "" {
		ext = ".pdf"
	}
	return fmt.Sprintf("documents/%s/%s%s", doc.SearchID, doc.ID, ext)
}

func newByteReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
