// Package extraction derives chain-of-title entries and encumbrances
// from a search's retrieved documents. Extraction is deterministic:
// the same document set always yields the same analysis.
package extraction

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

type Service struct {
	blobs     ports.BlobStore
	documents ports.DocumentRepository
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.ExtractionService = (*Service)(nil)

func NewService(blobs ports.BlobStore, documents ports.DocumentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{blobs: blobs, documents: documents, logger: logger, now: time.Now}
}

// Extract analyzes the document set. A document whose text cannot be
// pulled or whose content cannot be interpreted contributes a per-ID
// error and is skipped; one bad instrument never voids the analysis.
func (s *Service) Extract(ctx context.Context, docs []domain.Document) ([]domain.ChainOfTitleEntry, []domain.Encumbrance, map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	docErrs := make(map[string]error)

	var conveyances []domain.Document
	var encumbrances []domain.Encumbrance
	var releases []releaseRecord

	for i := range docs {
		doc := docs[i]
		text, err := s.documentText(ctx, &doc)
		if err != nil {
			docErrs[doc.ID] = domain.WrapError(domain.ErrExtractionPartial, "document text", err)
			s.logger.Warn("document_text_unavailable", "document_id", doc.ID, "error", err)
		}
		if text != "" && text != doc.OCRText {
			doc.OCRText = text
			if s.documents != nil {
				summary := summarize(&doc)
				if err := s.documents.SaveExtraction(ctx, doc.ID, text, summary, nil); err != nil {
					s.logger.Warn("extraction_save_failed", "document_id", doc.ID, "error", err)
				}
				doc.AISummary = summary
			}
		}

		if doc.Type.Conveyance() {
			conveyances = append(conveyances, doc)
		}

		switch detection := detectEncumbrance(&doc, text); {
		case detection == nil:
		case detection.release != nil:
			releases = append(releases, *detection.release)
		default:
			encumbrances = append(encumbrances, *detection.encumbrance)
		}
	}

	matchReleases(encumbrances, releases)

	entries := buildChain(conveyances, s.now())
	for i := range encumbrances {
		encumbrances[i].ID = uuid.NewString()
		encumbrances[i].CreatedAt = s.now()
		encumbrances[i].UpdatedAt = s.now()
	}

	if len(docErrs) == 0 {
		docErrs = nil
	}
	return entries, encumbrances, docErrs, nil
}

// buildChain orders conveyance documents by recording date and assigns
// strictly increasing sequence numbers. Undated instruments sort last
// so a missing date never scrambles the dated history.
func buildChain(conveyances []domain.Document, now time.Time) []domain.ChainOfTitleEntry {
	sort.SliceStable(conveyances, func(i, j int) bool {
		a, b := conveyances[i].RecordingDate, conveyances[j].RecordingDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})

	entries := make([]domain.ChainOfTitleEntry, 0, len(conveyances))
	for i, doc := range conveyances {
		entries = append(entries, domain.ChainOfTitleEntry{
			ID:                 uuid.NewString(),
			SearchID:           doc.SearchID,
			DocumentID:         doc.ID,
			SequenceNumber:     i + 1,
			TransactionType:    string(doc.Type),
			TransactionDate:    doc.RecordingDate,
			GrantorNames:       doc.Grantor,
			GranteeNames:       doc.Grantee,
			Consideration:      doc.Consideration,
			RecordingReference: recordingReference(&doc),
			Description:        doc.AISummary,
			CreatedAt:          now,
		})
	}
	return entries
}

// summarize produces the one-line narrative stored alongside the
// extraction output.
func summarize(doc *domain.Document) string {
	var builder strings.Builder
	builder.WriteString(titleWords(string(doc.Type)))
	if doc.RecordingDate != nil {
		fmt.Fprintf(&builder, " recorded %s", doc.RecordingDate.Format("01/02/2006"))
	}
	if len(doc.Grantor) > 0 {
		fmt.Fprintf(&builder, "; Grantor: %s", strings.Join(doc.Grantor, ", "))
	}
	if len(doc.Grantee) > 0 {
		fmt.Fprintf(&builder, "; Grantee: %s", strings.Join(doc.Grantee, ", "))
	}
	return builder.String()
}

func titleWords(value string) string {
	words := strings.Split(strings.ReplaceAll(value, "_", " "), " ")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func (s *Service) documentText(ctx context.Context, doc *domain.Document) (string, error) {
	if doc.OCRText != "" {
		return doc.OCRText, nil
	}
	if doc.FilePath == "" || s.blobs == nil {
		return "", nil
	}

	reader, err := s.blobs.Open(ctx, doc.FilePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", doc.FilePath, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", doc.FilePath, err)
	}
	if !isPDF(data) {
		return string(data), nil
	}
	return textFromPDF(data)
}
