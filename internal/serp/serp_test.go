package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestOperator_QueryNeverQuotes(t *testing.T) {
	tests := []struct {
		op   Operator
		kw   string
		want string
	}{
		{OpAllInTitle, "スポーツドリンク", "allintitle:スポーツドリンク"},
		{OpInTitle, "スポーツドリンク", "intitle:スポーツドリンク"},
		{OpAllInTitle, "スポーツドリンク 作り方", "allintitle:スポーツドリンク 作り方"},
		{OpOrganic, "扇風機 おすすめ", "扇風機 おすすめ"},
	}
	for _, tt := range tests {
		got := tt.op.Query(tt.kw)
		if got != tt.want {
			t.Errorf("%s.Query(%q) = %q, want %q", tt.op, tt.kw, got, tt.want)
		}
	}

	if got := OpAllInTitle.Query("スポーツドリンク"); got == `allintitle:"スポーツドリンク"` {
		t.Fatalf("query must not be quoted: %s", got)
	}
}

func TestCount_TextRoundTrip(t *testing.T) {
	for _, c := range []Count{0, 10, 30000, Infinite} {
		b, err := c.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", c, err)
		}
		var got Count
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if got != c {
			t.Errorf("round trip %v -> %s -> %v", c, b, got)
		}
	}

	if Infinite.String() != "inf" {
		t.Errorf("expected inf, got %s", Infinite.String())
	}

	var c Count
	if err := c.UnmarshalText([]byte("-3")); err == nil {
		t.Error("expected error for negative count")
	}
	if err := c.UnmarshalText([]byte("many")); err == nil {
		t.Error("expected error for non-numeric count")
	}
}

func TestMetricsResult_JSONCarriesSentinel(t *testing.T) {
	m := MetricsResult{Keyword: "k", AllInTitle: Infinite, InTitle: 12, Source: SourceSerpAPI}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"allintitle_count":null`) || !strings.Contains(string(data), `"intitle_count":12`) {
		t.Errorf("counts should be a number or null, got %s", data)
	}
	var got MetricsResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.AllInTitle.IsInfinite() || got.InTitle != 12 {
		t.Errorf("unexpected counts after JSON: %+v", got)
	}
}

func TestCount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    Count
		wantErr bool
	}{
		{in: `214`, want: 214},
		{in: `0`, want: 0},
		{in: `null`, want: Infinite},
		{in: `"2850"`, want: 2850},
		{in: `"inf"`, want: Infinite},
		{in: `-1`, wantErr: true},
		{in: `""`, wantErr: true},
		{in: `1.5`, wantErr: true},
		{in: `"many"`, wantErr: true},
	}
	for _, tt := range tests {
		var c Count
		err := json.Unmarshal([]byte(tt.in), &c)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && c != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, c, tt.want)
		}
	}
}

func TestParseSource(t *testing.T) {
	tests := map[string]Source{
		"A":          SourceSerpAPI,
		"serpapi":    SourceSerpAPI,
		"B":          SourceDataForSEO,
		"dataforseo": SourceDataForSEO,
		"yahoo":      SourceYahoo,
	}
	for raw, want := range tests {
		got, err := ParseSource(raw)
		if err != nil {
			t.Fatalf("ParseSource(%q): %v", raw, err)
		}
		if got != want {
			t.Errorf("ParseSource(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseSource("bing"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusOK, nil},
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusForbidden, ErrAuth},
		{http.StatusTooManyRequests, ErrTransport},
		{http.StatusBadGateway, ErrTransport},
		{http.StatusBadRequest, ErrRequest},
	}
	for _, tt := range tests {
		err := ClassifyStatus(tt.status, "")
		if tt.want == nil {
			if err != nil {
				t.Errorf("status %d: unexpected error %v", tt.status, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("wrap: %w", ErrAuth), "auth"},
		{ClassifyStatus(503, "down"), "transport"},
		{fmt.Errorf("wrap: %w", ErrBlocked), "blocked"},
		{ClassifyStatus(400, "bad"), "request"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if !Retryable(ClassifyStatus(500, "")) || Retryable(ClassifyStatus(401, "")) {
		t.Error("unexpected Retryable classification")
	}
}
