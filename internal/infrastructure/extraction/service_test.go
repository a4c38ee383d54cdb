package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

type stubBlobs struct {
	files map[string][]byte
}

func (s *stubBlobs) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.files[key] = raw
	return nil
}

func (s *stubBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type stubDocs struct {
	extractions map[string]string
}

func (s *stubDocs) Create(context.Context, *domain.Document) error { return nil }
func (s *stubDocs) GetByID(context.Context, string) (*domain.Document, error) {
	return nil, domain.ErrDocumentNotFound
}
func (s *stubDocs) ListBySearch(context.Context, string) ([]domain.Document, error) {
	return nil, nil
}
func (s *stubDocs) ListPendingFetch(context.Context, string) ([]domain.Document, error) {
	return nil, nil
}
func (s *stubDocs) SaveFile(context.Context, string, string, string, string, int64) error {
	return nil
}
func (s *stubDocs) SaveExtraction(_ context.Context, id, ocrText, _ string, _ map[string]any) error {
	s.extractions[id] = ocrText
	return nil
}
func (s *stubDocs) MarkNeedsReview(context.Context, string, string) error { return nil }

func newService(blobs *stubBlobs) (*Service, *stubDocs) {
	docs := &stubDocs{extractions: make(map[string]string)}
	svc := NewService(blobs, docs, slog.New(slog.DiscardHandler))
	return svc, docs
}

func dateOf(y, m, d int) *time.Time {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestExtractBuildsOrderedChain(t *testing.T) {
	svc, _ := newService(&stubBlobs{files: map[string][]byte{}})

	docs := []domain.Document{
		{ID: "d-newer", SearchID: "s1", Type: domain.DocDeed, InstrumentNumber: "2015000200",
			RecordingDate: dateOf(2015, 6, 1), Grantor: []string{"SMITH JOHN"}, Grantee: []string{"JONES ANN"}},
		{ID: "d-older", SearchID: "s1", Type: domain.DocDeed, InstrumentNumber: "1998000100",
			RecordingDate: dateOf(1998, 2, 10), Grantor: []string{"DOE JANE"}, Grantee: []string{"SMITH JOHN"}},
		{ID: "d-undated", SearchID: "s1", Type: domain.DocDeed, InstrumentNumber: "0000000001"},
	}

	entries, _, docErrs, err := svc.Extract(context.Background(), docs)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if docErrs != nil {
		t.Fatalf("docErrs = %v", docErrs)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].DocumentID != "d-older" || entries[1].DocumentID != "d-newer" || entries[2].DocumentID != "d-undated" {
		t.Errorf("order = %s, %s, %s", entries[0].DocumentID, entries[1].DocumentID, entries[2].DocumentID)
	}
	for i, entry := range entries {
		if entry.SequenceNumber != i+1 {
			t.Errorf("sequence[%d] = %d", i, entry.SequenceNumber)
		}
	}
	if entries[0].RecordingReference != "Reception #1998000100" {
		t.Errorf("recording reference = %q", entries[0].RecordingReference)
	}
}

func TestExtractDetectsEncumbrances(t *testing.T) {
	svc, _ := newService(&stubBlobs{files: map[string][]byte{}})

	docs := []domain.Document{
		{ID: "dot", SearchID: "s1", Type: domain.DocDeedOfTrust, InstrumentNumber: "2019000124",
			RecordingDate: dateOf(2019, 3, 15), Grantee: []string{"FIRST BANK"}, Consideration: "$360,000"},
		{ID: "lien", SearchID: "s1", Type: domain.DocLien, InstrumentNumber: "2020000300",
			OCRText: "NOTICE OF MECHANIC'S LIEN against the property in the amount of $12,500"},
		{ID: "judgment", SearchID: "s1", Type: domain.DocJudgment, InstrumentNumber: "2021000400"},
	}

	_, encs, _, err := svc.Extract(context.Background(), docs)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(encs) != 3 {
		t.Fatalf("encumbrances = %d, want 3", len(encs))
	}

	byDoc := make(map[string]domain.Encumbrance, len(encs))
	for _, enc := range encs {
		byDoc[enc.DocumentID] = enc
	}

	dot := byDoc["dot"]
	if dot.Type != domain.EncDeedOfTrust || dot.Status != domain.EncActive {
		t.Errorf("deed of trust = %+v", dot)
	}
	if dot.OriginalAmount != "360000" {
		t.Errorf("amount = %q, want normalized", dot.OriginalAmount)
	}
	if dot.RiskLevel != domain.RiskHigh {
		t.Errorf("risk = %s, want high for a large active loan", dot.RiskLevel)
	}
	if dot.HolderName != "FIRST BANK" || !dot.RequiresAction {
		t.Errorf("deed of trust = %+v", dot)
	}

	if byDoc["lien"].Type != domain.EncMechanicsLien {
		t.Errorf("lien type = %s", byDoc["lien"].Type)
	}
	if byDoc["judgment"].RiskLevel != domain.RiskCritical {
		t.Errorf("judgment risk = %s", byDoc["judgment"].RiskLevel)
	}
}

func TestExtractMatchesReleaseToEncumbrance(t *testing.T) {
	svc, _ := newService(&stubBlobs{files: map[string][]byte{}})

	docs := []domain.Document{
		{ID: "dot", SearchID: "s1", Type: domain.DocDeedOfTrust, InstrumentNumber: "2019000124",
			RecordingDate: dateOf(2019, 3, 15), Grantee: []string{"FIRST BANK"}},
		{ID: "rel", SearchID: "s1", Type: domain.DocRelease, InstrumentNumber: "2024000900",
			RecordingDate:   dateOf(2024, 8, 2),
			AIExtractedData: map[string]any{"releases_instrument": "2019000124"}},
	}

	_, encs, _, err := svc.Extract(context.Background(), docs)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(encs) != 1 {
		t.Fatalf("encumbrances = %d, want 1", len(encs))
	}

	enc := encs[0]
	if enc.Status != domain.EncReleased {
		t.Errorf("status = %s, want released", enc.Status)
	}
	if enc.ReleasedDate == nil || !enc.ReleasedDate.Equal(*dateOf(2024, 8, 2)) {
		t.Errorf("released date = %v", enc.ReleasedDate)
	}
	if enc.RiskLevel != domain.RiskLow || enc.RequiresAction {
		t.Errorf("released encumbrance = %+v", enc)
	}
}

func TestExtractReleaseWithoutReferenceLeavesEncumbranceActive(t *testing.T) {
	svc, _ := newService(&stubBlobs{files: map[string][]byte{}})

	docs := []domain.Document{
		{ID: "dot", SearchID: "s1", Type: domain.DocDeedOfTrust, InstrumentNumber: "2019000124"},
		{ID: "rel", SearchID: "s1", Type: domain.DocRelease, InstrumentNumber: "2024000900"},
	}

	_, encs, _, err := svc.Extract(context.Background(), docs)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if encs[0].Status != domain.EncActive {
		t.Errorf("status = %s, want active when the release cites nothing", encs[0].Status)
	}
}

func TestExtractReadsStoredTextAndSavesIt(t *testing.T) {
	blobs := &stubBlobs{files: map[string][]byte{
		"docs/s1/d1.txt": []byte("WARRANTY DEED. Consideration of $450,000 paid."),
	}}
	svc, docs := newService(blobs)

	input := []domain.Document{
		{ID: "d1", SearchID: "s1", Type: domain.DocDeed, FilePath: "docs/s1/d1.txt"},
	}

	_, _, docErrs, err := svc.Extract(context.Background(), input)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if docErrs != nil {
		t.Fatalf("docErrs = %v", docErrs)
	}
	if saved := docs.extractions["d1"]; saved == "" {
		t.Error("extracted text was not persisted")
	}
}

func TestExtractIsolatesUnreadableDocument(t *testing.T) {
	svc, _ := newService(&stubBlobs{files: map[string][]byte{}})

	input := []domain.Document{
		{ID: "bad", SearchID: "s1", Type: domain.DocDeed, FilePath: "docs/s1/missing.pdf",
			InstrumentNumber: "1", RecordingDate: dateOf(2001, 1, 1)},
		{ID: "good", SearchID: "s1", Type: domain.DocDeed,
			InstrumentNumber: "2", RecordingDate: dateOf(2005, 1, 1)},
	}

	entries, _, docErrs, err := svc.Extract(context.Background(), input)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(docErrs) != 1 {
		t.Fatalf("docErrs = %v, want one entry", docErrs)
	}
	if !domain.IsKind(docErrs["bad"], domain.ErrExtractionPartial) {
		t.Errorf("docErrs[bad] = %v", docErrs["bad"])
	}
	// The unreadable document still chains on its metadata.
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
}

func TestExtractDeterministicForSameInput(t *testing.T) {
	svc, _ := newService(&stubBlobs{files: map[string][]byte{}})

	docs := []domain.Document{
		{ID: "a", SearchID: "s1", Type: domain.DocDeed, InstrumentNumber: "10", RecordingDate: dateOf(1999, 1, 1)},
		{ID: "b", SearchID: "s1", Type: domain.DocDeedOfTrust, InstrumentNumber: "11", RecordingDate: dateOf(2004, 1, 1)},
	}

	first, firstEncs, _, err := svc.Extract(context.Background(), docs)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, secondEncs, _, err := svc.Extract(context.Background(), docs)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if len(first) != len(second) || len(firstEncs) != len(secondEncs) {
		t.Fatal("reruns disagree on result sizes")
	}
	for i := range first {
		if first[i].DocumentID != second[i].DocumentID || first[i].SequenceNumber != second[i].SequenceNumber {
			t.Errorf("entry %d differs between runs", i)
		}
	}
}
