package serp

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Source identifies the backend a MetricsResult came from.
type Source string

const (
	SourceSerpAPI    Source = "serpapi"
	SourceDataForSEO Source = "dataforseo"
	SourceYahoo      Source = "yahoo"
)

// Valid reports whether s names a known backend.
func (s Source) Valid() bool {
	switch s {
	case SourceSerpAPI, SourceDataForSEO, SourceYahoo:
		return true
	}
	return false
}

// ParseSource resolves a provider id. "A" and "B" are accepted as aliases for
// serpapi and dataforseo.
func ParseSource(raw string) (Source, error) {
	switch raw {
	case "A", "a", string(SourceSerpAPI):
		return SourceSerpAPI, nil
	case "B", "b", string(SourceDataForSEO):
		return SourceDataForSEO, nil
	case string(SourceYahoo):
		return SourceYahoo, nil
	}
	return "", fmt.Errorf("unknown provider %q", raw)
}

// Count is a non-negative result count. Infinite marks a count that the
// backend did not report or reported in an unusable form.
type Count int64

// Infinite compares greater than every threshold.
const Infinite Count = math.MaxInt64

// IsInfinite reports whether c is the sentinel.
func (c Count) IsInfinite() bool { return c == Infinite }

func (c Count) String() string {
	if c.IsInfinite() {
		return "inf"
	}
	return strconv.FormatInt(int64(c), 10)
}

// MarshalJSON writes a finite count as a JSON number and the sentinel as
// null.
func (c Count) MarshalJSON() ([]byte, error) {
	if c.IsInfinite() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, int64(c), 10), nil
}

// UnmarshalJSON accepts a number, null for the sentinel, or the quoted text
// form written by older caches.
func (c *Count) UnmarshalJSON(b []byte) error {
	raw := string(b)
	switch {
	case raw == "null":
		*c = Infinite
		return nil
	case len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"':
		raw = raw[1 : len(raw)-1]
		if raw == "" {
			return fmt.Errorf("parse count: empty string")
		}
	}
	n, err := ParseCount(raw)
	if err != nil {
		return err
	}
	*c = n
	return nil
}

// MarshalText renders the sentinel as "inf" for text formats such as CSV.
func (c Count) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts a decimal integer or "inf". Negative values are rejected.
func (c *Count) UnmarshalText(b []byte) error {
	n, err := ParseCount(string(b))
	if err != nil {
		return err
	}
	*c = n
	return nil
}

// ParseCount parses the text form produced by Count.String.
func ParseCount(raw string) (Count, error) {
	if raw == "inf" {
		return Infinite, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("parse count %q: negative", raw)
	}
	return Count(n), nil
}

// Operator is a search restriction scope.
type Operator string

const (
	OpAllInTitle Operator = "allintitle"
	OpInTitle    Operator = "intitle"
	// OpOrganic is the bare keyword with no restriction.
	OpOrganic Operator = "organic"
)

// Query renders the search string for keyword under op. The keyword is
// appended bare: exact-match quoting changes operator semantics and collapses
// counts toward zero.
func (op Operator) Query(keyword string) string {
	if op == OpOrganic {
		return keyword
	}
	return string(op) + ":" + keyword
}

// OrganicResult is one ranked result of a listing.
type OrganicResult struct {
	Rank  int    `json:"rank"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Page is what a backend returns for a single query.
type Page struct {
	Query string
	// Total is Infinite when the response carried no usable count.
	Total   Count
	Organic []OrganicResult
	// Related holds the related searches and "people also ask" questions
	// shown with the listing, in page order.
	Related []string
	// Cost is the provider-reported charge for the call, if any, in USD.
	Cost string
}

// Competitor is a weak site found in the top of a listing.
type Competitor struct {
	Rank     int    `json:"rank"`
	Category string `json:"category"`
	Domain   string `json:"domain"`
	URL      string `json:"url"`
}

// MetricsResult holds both counts for a keyword from one source.
type MetricsResult struct {
	ID          string       `json:"id"`
	Keyword     string       `json:"keyword"`
	AllInTitle  Count        `json:"allintitle_count"`
	InTitle     Count        `json:"intitle_count"`
	Source      Source       `json:"source"`
	FetchedAt   time.Time    `json:"fetched_at"`
	Competitors []Competitor `json:"competitors,omitempty"`
	// Malformed lists the operators whose count was replaced by Infinite.
	Malformed []Operator `json:"malformed,omitempty"`
}

// Backend performs a single search against a metrics provider and returns the
// reported total plus up to limit organic results. Every call is one billable
// request.
type Backend interface {
	Source() Source
	Search(ctx context.Context, query string, limit int) (*Page, error)
}
