package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

type DocumentRepository struct {
	db *sql.DB
}

var _ ports.DocumentRepository = (*DocumentRepository)(nil)

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `
id, search_id, document_type, source, instrument_number, book, page,
recording_date, grantor, grantee, consideration, source_url, file_path,
file_name, file_size, file_hash, ocr_text, ai_summary, ai_extracted_data,
needs_review, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	grantor, err := json.Marshal(doc.Grantor)
	if err != nil {
		return fmt.Errorf("marshal grantor: %w", err)
	}
	grantee, err := json.Marshal(doc.Grantee)
	if err != nil {
		return fmt.Errorf("marshal grantee: %w", err)
	}
	var extracted []byte
	if doc.AIExtractedData != nil {
		extracted, err = json.Marshal(doc.AIExtractedData)
		if err != nil {
			return fmt.Errorf("marshal extracted data: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, search_id, document_type, source, instrument_number, book, page,
	recording_date, grantor, grantee, consideration, source_url, file_path,
	file_name, file_size, file_hash, ocr_text, ai_summary, ai_extracted_data,
	needs_review, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
ON CONFLICT (id) DO NOTHING
`,
		doc.ID, doc.SearchID, string(doc.Type), string(doc.Source),
		doc.InstrumentNumber, doc.Book, doc.Page, doc.RecordingDate,
		grantor, grantee, doc.Consideration, doc.SourceURL, doc.FilePath,
		doc.FileName, doc.FileSize, doc.FileHash, doc.OCRText, doc.AISummary,
		extracted, doc.NeedsReview, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)
	return scanDocument(row)
}

func (r *DocumentRepository) ListBySearch(ctx context.Context, searchID string) ([]domain.Document, error) {
	return r.list(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE search_id = $1
ORDER BY recording_date NULLS LAST, created_at
`, searchID)
}

// ListPendingFetch returns instruments recorded for the search whose
// binaries have not been stored yet.
func (r *DocumentRepository) ListPendingFetch(ctx context.Context, searchID string) ([]domain.Document, error) {
	return r.list(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE search_id = $1
  AND COALESCE(file_path, '') = ''
  AND COALESCE(source_url, '') <> ''
ORDER BY created_at
`, searchID)
}

func (r *DocumentRepository) list(ctx context.Context, query, searchID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, searchID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var docType, source string
	var instrument, book, page, consideration, sourceURL sql.NullString
	var filePath, fileName, fileHash, ocrText, aiSummary sql.NullString
	var grantorRaw, granteeRaw, extractedRaw []byte

	err := row.Scan(
		&doc.ID, &doc.SearchID, &docType, &source, &instrument, &book, &page,
		&doc.RecordingDate, &grantorRaw, &granteeRaw, &consideration, &sourceURL,
		&filePath, &fileName, &doc.FileSize, &fileHash, &ocrText, &aiSummary,
		&extractedRaw, &doc.NeedsReview, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if len(grantorRaw) > 0 {
		if err := json.Unmarshal(grantorRaw, &doc.Grantor); err != nil {
			return nil, fmt.Errorf("unmarshal grantor: %w", err)
		}
	}
	if len(granteeRaw) > 0 {
		if err := json.Unmarshal(granteeRaw, &doc.Grantee); err != nil {
			return nil, fmt.Errorf("unmarshal grantee: %w", err)
		}
	}
	if len(extractedRaw) > 0 {
		if err := json.Unmarshal(extractedRaw, &doc.AIExtractedData); err != nil {
			return nil, fmt.Errorf("unmarshal extracted data: %w", err)
		}
	}
	doc.Type = domain.DocumentType(docType)
	doc.Source = domain.DocumentSource(source)
	doc.InstrumentNumber = instrument.String
	doc.Book = book.String
	doc.Page = page.String
	doc.Consideration = consideration.String
	doc.SourceURL = sourceURL.String
	doc.FilePath = filePath.String
	doc.FileName = fileName.String
	doc.FileHash = fileHash.String
	doc.OCRText = ocrText.String
	doc.AISummary = aiSummary.String
	return &doc, nil
}

// SaveFile records the stored binary. The file reference is written
// once; a second fetch of the same instrument must not repoint it.
func (r *DocumentRepository) SaveFile(ctx context.Context, id, filePath, fileName, fileHash string, fileSize int64) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET file_path = $2, file_name = $3, file_hash = $4, file_size = $5, updated_at = $6
WHERE id = $1
  AND COALESCE(file_path, '') = ''
`, id, filePath, fileName, fileHash, fileSize, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document file: %w", err)
	}
	return nil
}

func (r *DocumentRepository) SaveExtraction(ctx context.Context, id, ocrText, aiSummary string, extracted map[string]any) error {
	var extractedJSON []byte
	if extracted != nil {
		var err error
		extractedJSON, err = json.Marshal(extracted)
		if err != nil {
			return fmt.Errorf("marshal extracted data: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ocr_text = $2, ai_summary = $3, ai_extracted_data = $4, updated_at = $5
WHERE id = $1
`, id, ocrText, aiSummary, extractedJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document extraction: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkNeedsReview(ctx context.Context, id, notes string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET needs_review = TRUE,
    ai_summary = CASE WHEN $2 = '' THEN ai_summary ELSE $2 END,
    updated_at = $3
WHERE id = $1
`, id, notes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document needs review: %w", err)
	}
	return nil
}
