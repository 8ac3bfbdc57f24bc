package serp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/FranksOps/kwscout/pkg/httpclient"
)

// DefaultDataForSEOURL is the DataForSEO API root.
const DefaultDataForSEOURL = "https://api.dataforseo.com"

const dataForSEOLivePath = "/v3/serp/google/organic/live/regular"

// DataForSEOConfig configures the DataForSEO backend. LocationCode 2392 is
// Japan.
type DataForSEOConfig struct {
	Login        string
	Password     string
	BaseURL      string
	LocationCode int
	LanguageCode string
	Device       string
	Client       *httpclient.Client
}

// DataForSEO queries the Google organic live endpoint of DataForSEO.
type DataForSEO struct {
	cfg    DataForSEOConfig
	client *httpclient.Client
}

var _ Backend = (*DataForSEO)(nil)

// NewDataForSEO validates cfg and returns a backend.
func NewDataForSEO(cfg DataForSEOConfig) (*DataForSEO, error) {
	if cfg.Login == "" || cfg.Password == "" {
		return nil, fmt.Errorf("dataforseo: %w: login or password is empty", ErrAuth)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDataForSEOURL
	}
	if cfg.LocationCode == 0 {
		cfg.LocationCode = 2392
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "ja"
	}
	if cfg.Device == "" {
		cfg.Device = "desktop"
	}
	client := cfg.Client
	if client == nil {
		var err error
		if client, err = httpclient.New(httpclient.Config{}); err != nil {
			return nil, fmt.Errorf("dataforseo: %w", err)
		}
	}
	return &DataForSEO{cfg: cfg, client: client}, nil
}

func (d *DataForSEO) Source() Source { return SourceDataForSEO }

type dataForSEOTask struct {
	Keyword      string `json:"keyword"`
	LocationCode int    `json:"location_code"`
	LanguageCode string `json:"language_code"`
	Device       string `json:"device"`
	OS           string `json:"os,omitempty"`
	Depth        int    `json:"depth"`
}

type dataForSEOResponse struct {
	StatusCode    int         `json:"status_code"`
	StatusMessage string      `json:"status_message"`
	Cost          json.Number `json:"cost"`
	Tasks         []struct {
		StatusCode    int         `json:"status_code"`
		StatusMessage string      `json:"status_message"`
		Cost          json.Number `json:"cost"`
		Result        []struct {
			SEResultsCount json.RawMessage `json:"se_results_count"`
			Items          []struct {
				Type      string `json:"type"`
				RankGroup int    `json:"rank_group"`
				URL       string `json:"url"`
				Title     string `json:"title"`
				// Nested holds the strings of a related_searches element or
				// the questions of a people_also_ask element.
				Nested json.RawMessage `json:"items"`
			} `json:"items"`
		} `json:"result"`
	} `json:"tasks"`
}

// Search posts a single live task and reads its first result.
func (d *DataForSEO) Search(ctx context.Context, query string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 10
	}
	task := dataForSEOTask{
		Keyword:      query,
		LocationCode: d.cfg.LocationCode,
		LanguageCode: d.cfg.LanguageCode,
		Device:       d.cfg.Device,
		Depth:        limit,
	}
	if d.cfg.Device == "desktop" {
		task.OS = "windows"
	}
	payload, err := json.Marshal([]dataForSEOTask{task})
	if err != nil {
		return nil, fmt.Errorf("dataforseo: %w: %v", ErrRequest, err)
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.BaseURL+dataForSEOLivePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("dataforseo: %w: %v", ErrRequest, err)
	}
	req.SetBasicAuth(d.cfg.Login, d.cfg.Password)
	req.Header.Set("Content-Type", "application/json")

	resp, body, err := d.client.Fetch(ctx, req)
	if err != nil {
		return nil, transportError(ctx, "dataforseo", err)
	}

	var out dataForSEOResponse
	decodeErr := json.Unmarshal(body, &out)
	if err := ClassifyStatus(resp.StatusCode, out.StatusMessage); err != nil {
		return nil, fmt.Errorf("dataforseo: %w", err)
	}
	if decodeErr != nil {
		return &Page{Query: query, Total: Infinite}, nil
	}
	if err := classifyDataForSEO(out.StatusCode, out.StatusMessage); err != nil {
		return nil, fmt.Errorf("dataforseo: %w", err)
	}

	page := &Page{Query: query, Total: Infinite, Cost: out.Cost.String()}
	if len(out.Tasks) == 0 {
		return page, nil
	}
	t := out.Tasks[0]
	if err := classifyDataForSEO(t.StatusCode, t.StatusMessage); err != nil {
		return nil, fmt.Errorf("dataforseo: %w", err)
	}
	if t.Cost != "" {
		page.Cost = t.Cost.String()
	}
	if len(t.Result) == 0 {
		return page, nil
	}
	r := t.Result[0]
	if c, ok := countFromJSON(r.SEResultsCount); ok {
		page.Total = c
	}
	for _, it := range r.Items {
		switch it.Type {
		case "organic":
			if len(page.Organic) < limit {
				page.Organic = append(page.Organic, OrganicResult{Rank: it.RankGroup, URL: it.URL, Title: it.Title})
			}
		case "related_searches", "people_also_ask":
			page.Related = append(page.Related, nestedText(it.Nested)...)
		}
	}
	return page, nil
}

// nestedText reads the element list of a SERP feature. related_searches
// lists plain strings; people_also_ask lists objects with a title.
func nestedText(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	var texts []string
	if json.Unmarshal(raw, &texts) == nil {
		for _, t := range texts {
			out = appendText(out, t)
		}
		return out
	}
	var objs []struct {
		Title string `json:"title"`
	}
	if json.Unmarshal(raw, &objs) == nil {
		for _, o := range objs {
			out = appendText(out, o.Title)
		}
	}
	return out
}

// classifyDataForSEO maps the five digit API status codes. 20000 is success,
// 401xx and 402xx are credential or balance problems except the per-minute
// rate limit (40202), which is retried like 5xxxx.
func classifyDataForSEO(code int, msg string) error {
	switch {
	case code == 0 || code == 20000:
		return nil
	case code == 40202 || code >= 50000:
		return &StatusError{Kind: ErrTransport, Status: code, Message: msg}
	case code >= 40100 && code < 40300:
		return &StatusError{Kind: ErrAuth, Status: code, Message: msg}
	default:
		return &StatusError{Kind: ErrRequest, Status: code, Message: msg}
	}
}
