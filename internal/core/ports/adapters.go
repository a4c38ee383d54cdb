package ports

import (
	"context"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

// RecorderAdapter is the capability contract every county record-source
// integration satisfies. Operations report expected anomalies (empty
// result sets, pagination boundaries) through the typed outcome and
// raise only on protocol or timeout failure, wrapped as
// domain.ErrSourceUnavailable.
type RecorderAdapter interface {
	// Jurisdiction returns the normalized county key the adapter serves.
	Jurisdiction() string

	// MinRequestDelay is the adapter-declared minimum spacing between
	// requests to the underlying source.
	MinRequestDelay() time.Duration

	SearchByParty(ctx context.Context, party string, window domain.SearchWindow) (domain.InstrumentPage, error)
	SearchByParcel(ctx context.Context, parcel string, window domain.SearchWindow) (domain.InstrumentPage, error)

	// ListInstruments continues a paginated result set from a token
	// returned in a previous page.
	ListInstruments(ctx context.Context, pageToken string) (domain.InstrumentPage, error)

	FetchDocument(ctx context.Context, inst domain.Instrument) (*domain.DocumentBinary, error)
}

// CourtAdapter sources court records for a state.
type CourtAdapter interface {
	State() string
	MinRequestDelay() time.Duration
	SearchByName(ctx context.Context, lastName, firstName, county string) ([]domain.CourtCase, error)
}

// RecorderResolver maps a county to an adapter instance. Resolution is
// a pure function of (name, registry contents, configuration); failure
// means the jurisdiction is unsupported, which is terminal.
type RecorderResolver interface {
	Resolve(county string, cfg *domain.JurisdictionConfig) (RecorderAdapter, error)
}

// CourtResolver is the same resolution pattern keyed by state.
type CourtResolver interface {
	Resolve(state string, cfg *domain.JurisdictionConfig) (CourtAdapter, error)
}

// CommercialSource is the fallback API used when scraping is exhausted
// on a hybrid-sourced search.
type CommercialSource interface {
	SearchByParcel(ctx context.Context, county, parcel string, window domain.SearchWindow) (domain.InstrumentPage, error)
	SearchByAddress(ctx context.Context, county, address string, window domain.SearchWindow) (domain.InstrumentPage, error)
}
