package csvbackend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/storage"
)

func TestCSVBackend(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "kwscout.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	res1 := &serp.MetricsResult{
		ID:         "csv1",
		Keyword:    "除湿機 衣類乾燥",
		AllInTitle: 12,
		InTitle:    4000,
		Source:     serp.SourceSerpAPI,
		FetchedAt:  now.Add(-2 * time.Hour),
	}
	res2 := &serp.MetricsResult{
		ID:         "csv2",
		Keyword:    "除湿機 衣類乾燥",
		AllInTitle: serp.Infinite,
		InTitle:    3900,
		Source:     serp.SourceYahoo,
		FetchedAt:  now.Add(-1 * time.Hour),
		Malformed:  []serp.Operator{serp.OpAllInTitle},
		Competitors: []serp.Competitor{
			{Rank: 2, Category: "sns", Domain: "x.com", URL: "https://x.com/a/status/1"},
		},
	}

	if err := b.Save(ctx, res1); err != nil {
		t.Fatalf("Failed to save result 1: %v", err)
	}
	if err := b.Save(ctx, res2); err != nil {
		t.Fatalf("Failed to save result 2: %v", err)
	}

	// Test Source filter
	resultsSource, err := b.Query(ctx, storage.Filter{Source: serp.SourceYahoo})
	if err != nil {
		t.Fatalf("Failed to query by source: %v", err)
	}
	if len(resultsSource) != 1 || resultsSource[0].ID != "csv2" {
		t.Fatalf("Expected csv2 for source filter, got %+v", resultsSource)
	}
	got := resultsSource[0]
	if !got.AllInTitle.IsInfinite() || got.InTitle != 3900 {
		t.Errorf("Unexpected counts %v/%v", got.AllInTitle, got.InTitle)
	}
	if len(got.Competitors) != 1 || got.Competitors[0].Domain != "x.com" {
		t.Errorf("Unexpected competitors %+v", got.Competitors)
	}
	if !got.FetchedAt.Equal(res2.FetchedAt) {
		t.Errorf("Expected FetchedAt %v, got %v", res2.FetchedAt, got.FetchedAt)
	}

	// Test Since Filter
	past := now.Add(-90 * time.Minute)
	resultsSince, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query by Since: %v", err)
	}
	if len(resultsSince) != 1 || resultsSince[0].ID != "csv2" {
		t.Fatalf("Expected csv2 for Since filter, got %+v", resultsSince)
	}

	// Test no filters, ordering
	resultsAll, err := b.Query(ctx, storage.Filter{Keyword: "除湿機 衣類乾燥"})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(resultsAll) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(resultsAll))
	}
	// Order should be descending (newest first)
	if resultsAll[0].ID != "csv2" {
		t.Errorf("Expected csv2 first, got %s", resultsAll[0].ID)
	}

	// Test limit and offset
	resultsLimit, err := b.Query(ctx, storage.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query limit: %v", err)
	}
	if len(resultsLimit) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(resultsLimit))
	}
	resultsOffset, err := b.Query(ctx, storage.Filter{Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query offset: %v", err)
	}
	if len(resultsOffset) != 1 || resultsOffset[0].ID != "csv1" {
		t.Fatalf("Expected csv1 for offset 1, got %+v", resultsOffset)
	}
}

func TestCSVBackend_SkipsMalformedRows(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "kwscout.csv")
	b, err := New(filePath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	junk := "" +
		"m1,k,serpapi,-4,10,[],[]," + ts + "\n" +
		"m2,,serpapi,1,10,[],[]," + ts + "\n" +
		"m3,k,bing,1,10,[],[]," + ts + "\n" +
		"m4,k,serpapi,1,10,[],[],yesterday\n" +
		"m5,k,serpapi,many,10,[],[]," + ts + "\n" +
		"m6,k,serpapi\n" +
		"ok,k,serpapi,1,10,[],[]," + ts + "\n"
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(junk); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	rows, err := b.Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "ok" {
		t.Fatalf("expected only the valid row, got %+v", rows)
	}
}

func TestCSVBackend_ReopenKeepsHeader(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "kwscout.csv")
	b, _ := New(filePath)
	_ = b.Save(context.Background(), &serp.MetricsResult{Keyword: "k", Source: serp.SourceSerpAPI, FetchedAt: time.Now()})
	b.Close()

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	rows, err := b.Query(context.Background(), storage.Filter{})
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 row after reopen, got %d (%v)", len(rows), err)
	}
}
