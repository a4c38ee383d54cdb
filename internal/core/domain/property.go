package domain

import "time"

// Property is shared across searches: many searches may reference the
// same parcel over time, so it is deduplicated at ingestion and never
// owned by a single search.
type Property struct {
	ID               string    `json:"id"`
	StreetAddress    string    `json:"street_address"`
	City             string    `json:"city"`
	County           string    `json:"county"`
	State            string    `json:"state"`
	ZipCode          string    `json:"zip_code,omitempty"`
	ParcelNumber     string    `json:"parcel_number,omitempty"`
	LegalDescription string    `json:"legal_description,omitempty"`
	RawAddressInput  string    `json:"raw_address_input,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
