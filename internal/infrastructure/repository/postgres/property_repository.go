package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

type PropertyRepository struct {
	db *sql.DB
}

var _ ports.PropertyRepository = (*PropertyRepository)(nil)

func NewPropertyRepository(db *sql.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

const propertyColumns = `
id, street_address, city, county, state, zip_code, parcel_number,
legal_description, raw_address_input, created_at, updated_at`

// GetOrCreate deduplicates on (street_address, city, county). The
// upsert races cleanly: two concurrent submissions for the same address
// both land on the same row.
func (r *PropertyRepository) GetOrCreate(ctx context.Context, prop *domain.Property) (*domain.Property, error) {
	if prop.ID == "" {
		prop.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	row := r.db.QueryRowContext(ctx, `
INSERT INTO properties (
	id, street_address, city, county, state, zip_code, parcel_number,
	legal_description, raw_address_input, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (lower(street_address), lower(city), lower(county)) DO UPDATE
SET parcel_number = COALESCE(NULLIF(properties.parcel_number, ''), EXCLUDED.parcel_number),
    updated_at = EXCLUDED.updated_at
RETURNING `+propertyColumns+`
`,
		prop.ID, prop.StreetAddress, prop.City, prop.County, prop.State,
		prop.ZipCode, prop.ParcelNumber, prop.LegalDescription, prop.RawAddressInput,
		now, now,
	)
	return scanProperty(row)
}

func (r *PropertyRepository) GetByID(ctx context.Context, id string) (*domain.Property, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+propertyColumns+`
FROM properties
WHERE id = $1
`, id)
	return scanProperty(row)
}

func scanProperty(row rowScanner) (*domain.Property, error) {
	var prop domain.Property
	var zip, parcel, legal, raw sql.NullString

	err := row.Scan(
		&prop.ID, &prop.StreetAddress, &prop.City, &prop.County, &prop.State,
		&zip, &parcel, &legal, &raw, &prop.CreatedAt, &prop.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPropertyNotFound
		}
		return nil, fmt.Errorf("scan property: %w", err)
	}
	prop.ZipCode = zip.String
	prop.ParcelNumber = parcel.String
	prop.LegalDescription = legal.String
	prop.RawAddressInput = raw.String
	return &prop, nil
}
