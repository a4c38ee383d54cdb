// Package commercial calls the paid title-data API used as the fallback
// record source for hybrid-sourced searches once scraping is exhausted
// or the jurisdiction is marked unhealthy.
package commercial

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
	"github.com/frontrangetitle/titleworks/internal/infrastructure/resilience"
)

type Client struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	executor *resilience.Executor
}

func NewClient(baseURL, apiKey string, httpClient *http.Client, executor *resilience.Executor) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		client:   httpClient,
		executor: executor,
	}
}

// Enabled reports whether the API is configured at all. Submissions that
// prefer or fall back to the API must be rejected up front when it is
// not.
func (c *Client) Enabled() bool {
	return c.baseURL != "" && c.apiKey != ""
}

var _ ports.CommercialSource = (*Client)(nil)

func (c *Client) SearchByParcel(ctx context.Context, county, parcel string, window domain.SearchWindow) (domain.InstrumentPage, error) {
	return c.search(ctx, county, window, map[string]string{"parcel": parcel})
}

func (c *Client) SearchByAddress(ctx context.Context, county, address string, window domain.SearchWindow) (domain.InstrumentPage, error) {
	return c.search(ctx, county, window, map[string]string{"address": address})
}

type apiInstrument struct {
	InstrumentNumber string   `json:"instrument_number"`
	DocumentType     string   `json:"document_type"`
	RecordingDate    string   `json:"recording_date"`
	Grantor          []string `json:"grantor"`
	Grantee          []string `json:"grantee"`
	Book             string   `json:"book"`
	Page             string   `json:"page"`
	Consideration    string   `json:"consideration"`
	DocumentURL      string   `json:"document_url"`
}

type apiSearchResponse struct {
	Records   []apiInstrument `json:"records"`
	NextToken string          `json:"next_token"`
}

func (c *Client) search(ctx context.Context, county string, window domain.SearchWindow, params map[string]string) (domain.InstrumentPage, error) {
	if !c.Enabled() {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable},
			domain.WrapError(domain.ErrSourceUnavailable, "commercial search", fmt.Errorf("api not configured"))
	}

	endpoint, err := url.Parse(c.baseURL + "/v1/records/search")
	if err != nil {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable},
			domain.WrapError(domain.ErrSourceUnavailable, "commercial search", err)
	}
	query := endpoint.Query()
	query.Set("county", county)
	query.Set("from", window.Start.Format("2006-01-02"))
	query.Set("to", window.End.Format("2006-01-02"))
	for key, value := range params {
		query.Set(key, value)
	}
	endpoint.RawQuery = query.Encode()

	var decoded apiSearchResponse
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return domain.WrapError(domain.ErrSourceUnavailable, "commercial request", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrRateLimited, "commercial request", fmt.Errorf("status %d", resp.StatusCode))
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return domain.WrapError(domain.ErrSourceUnavailable, "commercial request", fmt.Errorf("auth rejected: status %d", resp.StatusCode))
		case resp.StatusCode >= 500:
			return domain.WrapError(domain.ErrSourceUnavailable, "commercial request", fmt.Errorf("status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return domain.WrapError(domain.ErrValidation, "commercial request", fmt.Errorf("status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return domain.WrapError(domain.ErrSourceUnavailable, "commercial read body", err)
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return domain.WrapError(domain.ErrSourceUnavailable, "commercial decode", err)
		}
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "commercial.search", call, classifyCommercialError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.InstrumentPage{Outcome: domain.OutcomeUnavailable}, err
	}

	if len(decoded.Records) == 0 {
		return domain.InstrumentPage{Outcome: domain.OutcomeNoMatches}, nil
	}

	instruments := make([]domain.Instrument, 0, len(decoded.Records))
	for _, record := range decoded.Records {
		inst := domain.Instrument{
			InstrumentNumber: record.InstrumentNumber,
			Type:             domain.ClassifyDocumentType(record.DocumentType),
			Grantor:          record.Grantor,
			Grantee:          record.Grantee,
			Book:             record.Book,
			Page:             record.Page,
			Consideration:    record.Consideration,
			DownloadURL:      record.DocumentURL,
		}
		if parsed, err := time.Parse("2006-01-02", record.RecordingDate); err == nil {
			inst.RecordingDate = &parsed
		}
		instruments = append(instruments, inst)
	}
	return domain.InstrumentPage{
		Outcome:     domain.OutcomeMatches,
		Instruments: instruments,
		NextToken:   decoded.NextToken,
	}, nil
}

func classifyCommercialError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	switch {
	case domain.IsKind(err, domain.ErrSourceUnavailable):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case domain.IsKind(err, domain.ErrRateLimited):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
}
