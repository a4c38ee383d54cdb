package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

type ChainRepository struct {
	db *sql.DB
}

var _ ports.ChainRepository = (*ChainRepository)(nil)

func NewChainRepository(db *sql.DB) *ChainRepository {
	return &ChainRepository{db: db}
}

// SaveAnalysis replaces the derived analysis for a search in one
// transaction. Re-analysis is idempotent: prior derived rows are swept
// before the new set is written, so a retried task never duplicates
// entries.
func (r *ChainRepository) SaveAnalysis(ctx context.Context, searchID string, entries []domain.ChainOfTitleEntry, encs []domain.Encumbrance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin analysis tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chain_of_title_entries WHERE search_id = $1`, searchID); err != nil {
		return fmt.Errorf("clear chain entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM encumbrances WHERE search_id = $1`, searchID); err != nil {
		return fmt.Errorf("clear encumbrances: %w", err)
	}

	for _, entry := range entries {
		grantors, err := json.Marshal(entry.GrantorNames)
		if err != nil {
			return fmt.Errorf("marshal grantor names: %w", err)
		}
		grantees, err := json.Marshal(entry.GranteeNames)
		if err != nil {
			return fmt.Errorf("marshal grantee names: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO chain_of_title_entries (
	id, search_id, document_id, sequence_number, transaction_type,
	transaction_date, grantor_names, grantee_names, consideration,
	recording_reference, description, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
			entry.ID, searchID, nullable(entry.DocumentID), entry.SequenceNumber,
			entry.TransactionType, entry.TransactionDate, grantors, grantees,
			entry.Consideration, entry.RecordingReference, entry.Description, entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chain entry: %w", err)
		}
	}

	for _, enc := range encs {
		_, err = tx.ExecContext(ctx, `
INSERT INTO encumbrances (
	id, search_id, document_id, encumbrance_type, status, holder_name,
	original_amount, current_amount, recorded_date, released_date,
	recording_reference, description, risk_level, requires_action,
	action_description, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
			enc.ID, searchID, nullable(enc.DocumentID), string(enc.Type), string(enc.Status),
			enc.HolderName, enc.OriginalAmount, enc.CurrentAmount, enc.RecordedDate,
			enc.ReleasedDate, enc.RecordingReference, enc.Description,
			string(enc.RiskLevel), enc.RequiresAction, enc.ActionDescription,
			enc.CreatedAt, enc.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert encumbrance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit analysis tx: %w", err)
	}
	return nil
}

func (r *ChainRepository) ListChain(ctx context.Context, searchID string) ([]domain.ChainOfTitleEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, search_id, document_id, sequence_number, transaction_type,
       transaction_date, grantor_names, grantee_names, consideration,
       recording_reference, description, created_at
FROM chain_of_title_entries
WHERE search_id = $1
ORDER BY sequence_number
`, searchID)
	if err != nil {
		return nil, fmt.Errorf("list chain entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.ChainOfTitleEntry
	for rows.Next() {
		var entry domain.ChainOfTitleEntry
		var documentID, transactionType, consideration, reference, description sql.NullString
		var grantorsRaw, granteesRaw []byte

		err := rows.Scan(
			&entry.ID, &entry.SearchID, &documentID, &entry.SequenceNumber,
			&transactionType, &entry.TransactionDate, &grantorsRaw, &granteesRaw,
			&consideration, &reference, &description, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chain entry: %w", err)
		}
		if len(grantorsRaw) > 0 {
			if err := json.Unmarshal(grantorsRaw, &entry.GrantorNames); err != nil {
				return nil, fmt.Errorf("unmarshal grantor names: %w", err)
			}
		}
		if len(granteesRaw) > 0 {
			if err := json.Unmarshal(granteesRaw, &entry.GranteeNames); err != nil {
				return nil, fmt.Errorf("unmarshal grantee names: %w", err)
			}
		}
		entry.DocumentID = documentID.String
		entry.TransactionType = transactionType.String
		entry.Consideration = consideration.String
		entry.RecordingReference = reference.String
		entry.Description = description.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain entries: %w", err)
	}
	return entries, nil
}

func (r *ChainRepository) ListEncumbrances(ctx context.Context, searchID string) ([]domain.Encumbrance, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, search_id, document_id, encumbrance_type, status, holder_name,
       original_amount, current_amount, recorded_date, released_date,
       recording_reference, description, risk_level, requires_action,
       action_description, created_at, updated_at
FROM encumbrances
WHERE search_id = $1
ORDER BY recorded_date NULLS LAST, created_at
`, searchID)
	if err != nil {
		return nil, fmt.Errorf("list encumbrances: %w", err)
	}
	defer rows.Close()

	var encs []domain.Encumbrance
	for rows.Next() {
		var enc domain.Encumbrance
		var encType, status, riskLevel string
		var documentID, holder, original, current, reference, description, action sql.NullString

		err := rows.Scan(
			&enc.ID, &enc.SearchID, &documentID, &encType, &status, &holder,
			&original, &current, &enc.RecordedDate, &enc.ReleasedDate,
			&reference, &description, &riskLevel, &enc.RequiresAction,
			&action, &enc.CreatedAt, &enc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan encumbrance: %w", err)
		}
		enc.DocumentID = documentID.String
		enc.Type = domain.EncumbranceType(encType)
		enc.Status = domain.EncumbranceStatus(status)
		enc.HolderName = holder.String
		enc.OriginalAmount = original.String
		enc.CurrentAmount = current.String
		enc.RecordingReference = reference.String
		enc.Description = description.String
		enc.RiskLevel = domain.RiskLevel(riskLevel)
		enc.ActionDescription = action.String
		encs = append(encs, enc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encumbrances: %w", err)
	}
	return encs, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
