package court

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/resilience"
)

const coloradoCourtURL = "https://www.coloradojudicial.gov/docket-search/api/cases"

// Colorado searches the state judicial branch docket API for cases
// naming a property owner: foreclosures, judgments, and lis pendens
// filings that encumber title without ever reaching the recorder.
type Colorado struct {
	baseURL  string
	delay    time.Duration
	client   *http.Client
	executor *resilience.Executor
	limiter  *rate.Limiter
}

func NewColorado(cfg *domain.JurisdictionConfig, deps Deps) ports.CourtAdapter {
	baseURL := coloradoCourtURL
	delay := 5 * time.Second
	rpm := 5
	if cfg != nil {
		if cfg.CourtRecordsURL != "" {
			baseURL = cfg.CourtRecordsURL
		}
		if cfg.RequestDelayMS > 0 {
			delay = time.Duration(cfg.RequestDelayMS) * time.Millisecond
		}
		if cfg.RequestsPerMinute > 0 {
			rpm = cfg.RequestsPerMinute
		}
	}
	return &Colorado{
		baseURL:  baseURL,
		delay:    delay,
		client:   deps.HTTPClient,
		executor: deps.Executor,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

func (c *Colorado) State() string { return "CO" }

func (c *Colorado) MinRequestDelay() time.Duration { return c.delay }

type coloradoCase struct {
	CaseNumber  string   `json:"caseNumber"`
	CaseType    string   `json:"caseType"`
	Status      string   `json:"status"`
	Parties     []string `json:"parties"`
	FilingDate  string   `json:"filingDate"`
	CourtName   string   `json:"courtName"`
	CaseURL     string   `json:"caseUrl"`
	Description string   `json:"description"`
}

func (c *Colorado) SearchByName(ctx context.Context, lastName, firstName, county string) ([]domain.CourtCase, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "court search", fmt.Errorf("bad court url: %w", err))
	}
	query := base.Query()
	query.Set("lastName", lastName)
	if firstName != "" {
		query.Set("firstName", firstName)
	}
	if county != "" {
		query.Set("county", county)
	}
	base.RawQuery = query.Encode()

	var raw []coloradoCase
	call := func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.client.Do(req)
		if err != nil {
			return domain.WrapError(domain.ErrSourceUnavailable, "court request", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrRateLimited, "court request", fmt.Errorf("status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return domain.WrapError(domain.ErrSourceUnavailable, "court request", fmt.Errorf("status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return domain.WrapError(domain.ErrSourceUnavailable, "court read body", err)
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return domain.WrapError(domain.ErrSourceUnavailable, "court decode", err)
		}
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "court.co", call, classifyCourtError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	cases := make([]domain.CourtCase, 0, len(raw))
	for _, rc := range raw {
		cases = append(cases, domain.CourtCase{
			CaseNumber:  rc.CaseNumber,
			Type:        classifyCaseType(rc.CaseType),
			Status:      classifyCaseStatus(rc.Status),
			Parties:     rc.Parties,
			FilingDate:  parseFilingDate(rc.FilingDate),
			CourtName:   rc.CourtName,
			CaseURL:     rc.CaseURL,
			Description: rc.Description,
		})
	}
	return cases, nil
}

func classifyCaseType(raw string) domain.CaseType {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(t, "foreclosure"), strings.Contains(t, "rule 120"):
		return domain.CaseForeclosure
	case strings.Contains(t, "judgment"):
		return domain.CaseJudgment
	case strings.Contains(t, "lis pendens"):
		return domain.CaseLisPendens
	case strings.Contains(t, "probate"):
		return domain.CaseProbate
	}
	return domain.CaseCivil
}

func classifyCaseStatus(raw string) domain.CaseStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "active":
		return domain.CaseOpen
	case "pending":
		return domain.CasePendingStatus
	case "closed", "dismissed", "disposed":
		return domain.CaseClosed
	}
	return domain.CaseUnknown
}

func parseFilingDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, format := range []string{"2006-01-02", "01/02/2006"} {
		if parsed, err := time.Parse(format, raw); err == nil {
			return &parsed
		}
	}
	return nil
}

func classifyCourtError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	switch {
	case domain.IsKind(err, domain.ErrRateLimited):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	case domain.IsKind(err, domain.ErrSourceUnavailable):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
}
