package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/FranksOps/kwscout/pkg/httpclient"
)

// DefaultSerpAPIURL is the SerpAPI endpoint.
const DefaultSerpAPIURL = "https://serpapi.com/search.json"

// SerpAPIConfig configures the SerpAPI backend. Country and Language default
// to Japan.
type SerpAPIConfig struct {
	APIKey   string
	BaseURL  string
	Country  string
	Language string
	Client   *httpclient.Client
}

// SerpAPI queries Google through serpapi.com.
type SerpAPI struct {
	cfg    SerpAPIConfig
	client *httpclient.Client
}

var _ Backend = (*SerpAPI)(nil)

// NewSerpAPI validates cfg and returns a backend.
func NewSerpAPI(cfg SerpAPIConfig) (*SerpAPI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("serpapi: %w: api key is empty", ErrAuth)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSerpAPIURL
	}
	if cfg.Country == "" {
		cfg.Country = "jp"
	}
	if cfg.Language == "" {
		cfg.Language = "ja"
	}
	client := cfg.Client
	if client == nil {
		var err error
		if client, err = httpclient.New(httpclient.Config{}); err != nil {
			return nil, fmt.Errorf("serpapi: %w", err)
		}
	}
	return &SerpAPI{cfg: cfg, client: client}, nil
}

func (s *SerpAPI) Source() Source { return SourceSerpAPI }

type serpAPIResponse struct {
	Error             string `json:"error"`
	SearchInformation *struct {
		TotalResults        json.RawMessage `json:"total_results"`
		OrganicResultsState string          `json:"organic_results_state"`
	} `json:"search_information"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Link     string `json:"link"`
		Title    string `json:"title"`
	} `json:"organic_results"`
	RelatedSearches []struct {
		Query string `json:"query"`
	} `json:"related_searches"`
	RelatedQuestions []struct {
		Question string `json:"question"`
	} `json:"related_questions"`
}

// Search issues one SerpAPI request.
func (s *SerpAPI) Search(ctx context.Context, query string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("gl", s.cfg.Country)
	q.Set("hl", s.cfg.Language)
	q.Set("num", strconv.Itoa(limit))
	q.Set("api_key", s.cfg.APIKey)

	req, err := http.NewRequest(http.MethodGet, s.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("serpapi: %w: %v", ErrRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, body, err := s.client.Fetch(ctx, req)
	if err != nil {
		return nil, transportError(ctx, "serpapi", err)
	}

	var out serpAPIResponse
	decodeErr := json.Unmarshal(body, &out)
	if err := ClassifyStatus(resp.StatusCode, out.Error); err != nil {
		if resp.StatusCode == http.StatusTooManyRequests && isSerpAPIQuotaError(out.Error) {
			err = &StatusError{Kind: ErrAuth, Status: resp.StatusCode, Message: out.Error}
		}
		return nil, fmt.Errorf("serpapi: %w", err)
	}
	if decodeErr != nil {
		// A 2xx body that is not JSON carries no count; treat it as a malformed
		// page rather than a failure.
		return &Page{Query: query, Total: Infinite}, nil
	}

	page := &Page{Query: query, Total: Infinite}
	if out.SearchInformation != nil {
		if out.SearchInformation.OrganicResultsState == "Fully empty" {
			page.Total = 0
		} else if c, ok := countFromJSON(out.SearchInformation.TotalResults); ok {
			page.Total = c
		}
	}
	if out.Error != "" {
		switch {
		case strings.Contains(out.Error, "hasn't returned any results"):
			page.Total = 0
		case isSerpAPIKeyError(out.Error):
			return nil, fmt.Errorf("serpapi: %w", &StatusError{Kind: ErrAuth, Status: resp.StatusCode, Message: out.Error})
		default:
			return nil, fmt.Errorf("serpapi: %w", &StatusError{Kind: ErrRequest, Status: resp.StatusCode, Message: out.Error})
		}
	}

	for _, r := range out.OrganicResults {
		if len(page.Organic) >= limit {
			break
		}
		page.Organic = append(page.Organic, OrganicResult{Rank: r.Position, URL: r.Link, Title: r.Title})
	}
	for _, r := range out.RelatedSearches {
		page.Related = appendText(page.Related, r.Query)
	}
	for _, r := range out.RelatedQuestions {
		page.Related = appendText(page.Related, r.Question)
	}
	return page, nil
}

func appendText(dst []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		dst = append(dst, s)
	}
	return dst
}

func isSerpAPIKeyError(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "api key")
}

// Running out of searches is an account problem no retry can fix.
func isSerpAPIQuotaError(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "run out of searches")
}

// transportError wraps a failed round trip. Cancellation is returned as the
// context error so callers stop instead of retrying.
func transportError(ctx context.Context, backend string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", backend, ctxErr)
	}
	return fmt.Errorf("%s: %w: %v", backend, ErrTransport, err)
}
