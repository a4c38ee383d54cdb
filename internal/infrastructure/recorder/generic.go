package recorder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/resilience"
)

// Generic is the configuration-driven adapter for counties without
// bespoke logic. URLs, query parameter names, and result-table column
// positions all come from the jurisdiction's selector map, so a new
// county can be onboarded with a configuration row instead of code.
type Generic struct {
	cfg      *domain.JurisdictionConfig
	client   *http.Client
	executor *resilience.Executor
	limiter  *rate.Limiter
}

func NewGeneric(cfg *domain.JurisdictionConfig, deps Deps) ports.RecorderAdapter {
	g := &Generic{
		cfg:      cfg,
		client:   deps.HTTPClient,
		executor: deps.Executor,
	}

	// The request budget honors both politeness knobs: the per-minute
	// ceiling and the minimum spacing between requests, whichever is
	// more restrictive.
	rpm := 10
	if cfg != nil && cfg.RequestsPerMinute > 0 {
		rpm = cfg.RequestsPerMinute
	}
	perSecond := float64(rpm) / 60.0
	if bySpacing := float64(time.Second) / float64(g.MinRequestDelay()); bySpacing < perSecond {
		perSecond = bySpacing
	}
	g.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	return g
}

func (g *Generic) Jurisdiction() string {
	if g.cfg == nil {
		return ""
	}
	return domain.NormalizeJurisdiction(g.cfg.Name)
}

func (g *Generic) MinRequestDelay() time.Duration {
	if g.cfg == nil || g.cfg.RequestDelayMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(g.cfg.RequestDelayMS) * time.Millisecond
}

func (g *Generic) selector(key, fallback string) string {
	if g.cfg == nil || g.cfg.Selectors == nil {
		return fallback
	}
	if v, ok := g.cfg.Selectors[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (g *Generic) SearchByParcel(ctx context.Context, parcel string, window domain.SearchWindow) (domain.InstrumentPage, error) {
	return g.search(ctx, g.selector("parcel_param", "parcel"), parcel, window)
}

func (g *Generic) SearchByParty(ctx context.Context, party string, window domain.SearchWindow) (domain.InstrumentPage, error) {
	return g.search(ctx, g.selector("party_param", "name"), party, window)
}

func (g *Generic) search(ctx context.Context, param, value string, window domain.SearchWindow) (domain.InstrumentPage, error) {
	if g.cfg == nil || g.cfg.RecorderURL == "" {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable},
			domain.WrapError(domain.ErrSourceUnavailable, "recorder search", fmt.Errorf("no recorder url configured"))
	}

	base, err := url.Parse(g.cfg.RecorderURL)
	if err != nil {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable},
			domain.WrapError(domain.ErrSourceUnavailable, "recorder search", fmt.Errorf("bad recorder url: %w", err))
	}

	dateFormat := g.selector("date_format", "01/02/2006")
	query := base.Query()
	query.Set(param, value)
	query.Set(g.selector("from_param", "from"), window.Start.Format(dateFormat))
	query.Set(g.selector("to_param", "to"), window.End.Format(dateFormat))
	base.RawQuery = query.Encode()

	return g.fetchPage(ctx, base.String())
}

// ListInstruments continues pagination from a token, which for this
// adapter is the absolute URL of the next results page.
func (g *Generic) ListInstruments(ctx context.Context, pageToken string) (domain.InstrumentPage, error) {
	if pageToken == "" {
		return domain.InstrumentPage{Outcome: domain.OutcomeNoMatches}, nil
	}
	return g.fetchPage(ctx, pageToken)
}

func (g *Generic) fetchPage(ctx context.Context, pageURL string) (domain.InstrumentPage, error) {
	body, err := g.get(ctx, pageURL)
	if err != nil {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable}, err
	}
	page, err := g.parseResults(body, pageURL)
	if err != nil {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable}, err
	}
	return page, nil
}

func (g *Generic) FetchDocument(ctx context.Context, inst domain.Instrument) (*domain.DocumentBinary, error) {
	if inst.DownloadURL == "" {
		return nil, domain.WrapError(domain.ErrValidation, "fetch document", fmt.Errorf("instrument %s has no download url", inst.InstrumentNumber))
	}
	data, mimeType, err := g.getRaw(ctx, inst.DownloadURL)
	if err != nil {
		return nil, err
	}
	name := inst.InstrumentNumber
	if name == "" {
		name = "instrument"
	}
	return &domain.DocumentBinary{
		Data:     data,
		FileName: name + ".pdf",
		MimeType: mimeType,
	}, nil
}

func (g *Generic) get(ctx context.Context, rawURL string) (string, error) {
	data, _, err := g.getRaw(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (g *Generic) getRaw(ctx context.Context, rawURL string) ([]byte, string, error) {
	var data []byte
	var mimeType string

	call := func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return domain.WrapError(domain.ErrSourceUnavailable, "recorder request", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrRateLimited, "recorder request", fmt.Errorf("status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return domain.WrapError(domain.ErrSourceUnavailable, "recorder request", fmt.Errorf("status %d", resp.StatusCode))
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return domain.WrapError(domain.ErrSourceUnavailable, "recorder read body", err)
		}
		mimeType = resp.Header.Get("Content-Type")
		return nil
	}

	var err error
	if g.executor != nil {
		err = g.executor.Execute(ctx, "recorder."+g.Jurisdiction(), call, classifySourceError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, "", err
	}
	return data, mimeType, nil
}

// parseResults walks the page for the configured results table and
// maps each row onto an Instrument by column position. An absent table
// on an otherwise healthy page means no matches, not a failure.
func (g *Generic) parseResults(body, baseURL string) (domain.InstrumentPage, error) {
	lower := strings.ToLower(body)
	if strings.Contains(lower, "too many requests") {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable},
			domain.WrapError(domain.ErrRateLimited, "recorder parse", fmt.Errorf("source throttled"))
	}
	if strings.Contains(lower, "access denied") {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable},
			domain.WrapError(domain.ErrSourceUnavailable, "recorder parse", fmt.Errorf("access denied"))
	}

	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable},
			domain.WrapError(domain.ErrSourceUnavailable, "recorder parse", err)
	}

	table := findTable(root, g.selector("results_table", "results"))
	if table == nil {
		return domain.InstrumentPage{Outcome: domain.OutcomeNoMatches}, nil
	}

	instruments := g.parseRows(table, baseURL)
	page := domain.InstrumentPage{
		Outcome:     domain.OutcomeMatches,
		Instruments: instruments,
		NextToken:   findNextLink(root, baseURL),
	}
	if len(instruments) == 0 {
		page.Outcome = domain.OutcomeNoMatches
	}
	return page, nil
}

func (g *Generic) parseRows(table *html.Node, baseURL string) []domain.Instrument {
	col := func(key string, fallback int) int {
		raw := g.selector(key, strconv.Itoa(fallback))
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fallback
		}
		return n
	}
	colInstrument := col("col_instrument", 0)
	colType := col("col_type", 1)
	colDate := col("col_date", 2)
	colGrantor := col("col_grantor", 3)
	colGrantee := col("col_grantee", 4)
	colConsideration := col("col_consideration", 5)

	var instruments []domain.Instrument
	for _, row := range tableRows(table) {
		cells, links := rowCells(row)
		if len(cells) <= colInstrument {
			continue
		}
		instrument := strings.TrimSpace(cells[colInstrument])
		if instrument == "" || strings.EqualFold(instrument, "instrument") {
			// Header rows repeat the column captions.
			continue
		}

		inst := domain.Instrument{
			InstrumentNumber: instrument,
			Type:             domain.DocOther,
		}
		if len(cells) > colType {
			inst.Type = domain.ClassifyDocumentType(cells[colType])
		}
		if len(cells) > colDate {
			inst.RecordingDate = domain.ParseRecordingDate(cells[colDate])
		}
		if len(cells) > colGrantor {
			inst.Grantor = domain.SplitPartyNames(cells[colGrantor])
		}
		if len(cells) > colGrantee {
			inst.Grantee = domain.SplitPartyNames(cells[colGrantee])
		}
		if len(cells) > colConsideration {
			inst.Consideration = strings.TrimSpace(cells[colConsideration])
		}
		if len(links) > 0 {
			inst.DownloadURL = resolveURL(baseURL, links[0])
		}
		instruments = append(instruments, inst)
	}
	return instruments
}

func classifySourceError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	switch {
	case domain.IsKind(err, domain.ErrRateLimited):
		// Deferral is handled by lane throttling; hammering a source
		// that already throttled us only extends the penalty.
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	case domain.IsKind(err, domain.ErrSourceUnavailable):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
}
