package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FranksOps/kwscout/internal/cache"
	"github.com/FranksOps/kwscout/internal/ledger"
	"github.com/FranksOps/kwscout/internal/plan"
	"github.com/FranksOps/kwscout/internal/provider"
	"github.com/FranksOps/kwscout/internal/qualify"
	"github.com/FranksOps/kwscout/internal/report"
	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/storage/jsonbackend"
)

type counts struct{ all, in serp.Count }

// fakeProvider takes one meter unit per planned call, like the real adapter.
type fakeProvider struct {
	counts   map[string]counts
	errs     map[string]error
	delay    time.Duration
	calls    atomic.Int32
	inflight atomic.Int32
	maxSeen  atomic.Int32
	mu       sync.Mutex
	fetched  []string
}

func (f *fakeProvider) ID() serp.Source { return serp.SourceSerpAPI }

func (f *fakeProvider) Fetch(ctx context.Context, kw string, calls []plan.Call, meter provider.Meter) (*serp.MetricsResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		old := f.maxSeen.Load()
		if n <= old || f.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, kw)
	f.mu.Unlock()

	for range calls {
		if err := meter.Take(); err != nil {
			return nil, err
		}
		f.calls.Add(1)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[kw]; err != nil {
		return nil, fmt.Errorf("fake: %w", err)
	}
	c, ok := f.counts[kw]
	if !ok {
		c = counts{100, 100000}
	}
	return &serp.MetricsResult{Keyword: kw, AllInTitle: c.all, InTitle: c.in, Source: serp.SourceSerpAPI, FetchedAt: time.Now()}, nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRun_Scenarios(t *testing.T) {
	fp := &fakeProvider{counts: map[string]counts{
		"スポーツドリンク 作り方": {214, 2850},
		"entry":                  {5, 50000},
		"gold":                   {10, 30000},
	}}
	p := New(fp, nil, Config{
		Thresholds: qualify.DefaultThresholds(),
		Budget:     ledger.Budget{MaxCalls: 100, CostPerCall: decimal.RequireFromString("0.01")},
	}, quiet())

	rep, err := p.Run(context.Background(), []string{"スポーツドリンク 作り方", "entry", "gold"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []qualify.Tier{qualify.SilverReview, qualify.SilverEntry, qualify.Gold}
	for i, e := range rep.Entries {
		if e.Status != report.StatusOK || e.Tier != want[i] {
			t.Errorf("entry %d (%s): status %s tier %s, want OK %s", i, e.Keyword, e.Status, e.Tier, want[i])
		}
	}
	if rep.Summary.TotalCalls != 6 {
		t.Errorf("expected 6 calls, got %d", rep.Summary.TotalCalls)
	}
	if !rep.Summary.TotalCost.Equal(decimal.RequireFromString("0.06")) {
		t.Errorf("expected cost 0.06, got %s", rep.Summary.TotalCost)
	}
	if rep.Summary.RunID == "" || rep.Summary.Provider != serp.SourceSerpAPI {
		t.Errorf("unexpected summary %+v", rep.Summary)
	}
}

func TestRun_BudgetForMOfN(t *testing.T) {
	const n, m = 7, 3
	fp := &fakeProvider{}
	p := New(fp, nil, Config{Budget: ledger.Budget{MaxCalls: m * plan.Optimized.Calls()}, Concurrency: 3}, quiet())

	var kws []string
	for i := 0; i < n; i++ {
		kws = append(kws, fmt.Sprintf("kw%d", i))
	}
	rep, err := p.Run(context.Background(), kws)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := rep.Summary.StatusCounts[report.StatusOK]; got != m {
		t.Errorf("expected %d processed, got %d", m, got)
	}
	if got := rep.Summary.StatusCounts[report.StatusBudgetExhausted]; got != n-m {
		t.Errorf("expected %d exhausted, got %d", n-m, got)
	}
	if rep.Summary.TotalCalls > m*plan.Optimized.Calls() {
		t.Errorf("calls %d exceed budget", rep.Summary.TotalCalls)
	}
	if int(fp.calls.Load()) != rep.Summary.TotalCalls {
		t.Errorf("ledger says %d calls, provider saw %d", rep.Summary.TotalCalls, fp.calls.Load())
	}
	// Reservations are taken in input order, so the tail is what gets skipped.
	for i, e := range rep.Entries {
		if (i < m) != (e.Status == report.StatusOK) {
			t.Errorf("entry %d has status %s", i, e.Status)
		}
		if e.Status == report.StatusBudgetExhausted && e.ErrorKind != "budget_exhausted" {
			t.Errorf("entry %d kind %q", i, e.ErrorKind)
		}
	}
	if len(fp.fetched) != m {
		t.Errorf("exhausted keywords reached the provider: %v", fp.fetched)
	}
}

func TestRun_FailureDoesNotAbort(t *testing.T) {
	fp := &fakeProvider{errs: map[string]error{"b": serp.ErrTransport, "c": ledger.ErrBudgetExhausted}}
	p := New(fp, nil, Config{Budget: ledger.Budget{MaxCalls: 100}}, quiet())

	rep, err := p.Run(context.Background(), []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Entries[1].Status != report.StatusFailed || rep.Entries[1].ErrorKind != "transport" {
		t.Errorf("unexpected entry %+v", rep.Entries[1])
	}
	if rep.Entries[2].Status != report.StatusFailed || rep.Entries[2].ErrorKind != "budget_exhausted" {
		t.Errorf("unexpected entry %+v", rep.Entries[2])
	}
	if rep.Entries[0].Status != report.StatusOK || rep.Entries[3].Status != report.StatusOK {
		t.Errorf("other keywords should succeed: %+v", rep.Entries)
	}
}

func TestRun_AuthAbortsBatch(t *testing.T) {
	fp := &fakeProvider{errs: map[string]error{"b": serp.ErrAuth}}
	p := New(fp, nil, Config{Budget: ledger.Budget{MaxCalls: 100}, Concurrency: 1}, quiet())

	rep, err := p.Run(context.Background(), []string{"a", "b", "c", "d"})
	if !errors.Is(err, serp.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if rep == nil || len(rep.Entries) != 4 {
		t.Fatalf("expected a partial report with 4 entries, got %+v", rep)
	}
	if rep.Entries[0].Status != report.StatusOK {
		t.Errorf("keyword before the failure should be OK, got %s", rep.Entries[0].Status)
	}
	if rep.Entries[1].ErrorKind != "auth" {
		t.Errorf("expected auth kind, got %q", rep.Entries[1].ErrorKind)
	}
	for _, e := range rep.Entries[2:] {
		if e.Status == report.StatusOK {
			t.Errorf("keyword %s ran after an auth failure", e.Keyword)
		}
	}
}

func TestRun_ConcurrencyBound(t *testing.T) {
	fp := &fakeProvider{delay: 20 * time.Millisecond}
	p := New(fp, nil, Config{Budget: ledger.Budget{MaxCalls: 1000}, Concurrency: 2}, quiet())

	var kws []string
	for i := 0; i < 8; i++ {
		kws = append(kws, fmt.Sprintf("k%d", i))
	}
	if _, err := p.Run(context.Background(), kws); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := fp.maxSeen.Load(); got > 2 {
		t.Errorf("saw %d keywords in flight, limit is 2", got)
	}
}

func TestRun_DuplicatesPlannedOnce(t *testing.T) {
	fp := &fakeProvider{}
	p := New(fp, nil, Config{Budget: ledger.Budget{MaxCalls: 100}}, quiet())
	rep, err := p.Run(context.Background(), []string{"扇風機 おすすめ", "扇風機　おすすめ", "扇風機 おすすめ"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Entries) != 1 || fp.calls.Load() != 2 {
		t.Errorf("expected one entry and two calls, got %d entries and %d calls", len(rep.Entries), fp.calls.Load())
	}
}

func TestRun_CacheHitCostsNothing(t *testing.T) {
	b, err := jsonbackend.New(filepath.Join(t.TempDir(), "cache.ndjson"))
	if err != nil {
		t.Fatalf("jsonbackend.New: %v", err)
	}
	c := cache.New(b, cache.Config{Logger: quiet()})
	defer c.Close()

	seed := &serp.MetricsResult{Keyword: "cached kw", AllInTitle: 2, InTitle: 10, Source: serp.SourceSerpAPI, FetchedAt: time.Now()}
	if err := c.Store(context.Background(), seed); err != nil {
		t.Fatalf("Store: %v", err)
	}

	fp := &fakeProvider{}
	// Zero budget: only the cached keyword can be answered.
	p := New(fp, c, Config{Thresholds: qualify.DefaultThresholds(), Budget: ledger.Budget{MaxCalls: 0}}, quiet())
	rep, err := p.Run(context.Background(), []string{"cached kw", "fresh kw"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e := rep.Entries[0]; e.Status != report.StatusOK || !e.Cached || e.Tier != qualify.Gold {
		t.Errorf("unexpected cached entry %+v", e)
	}
	if rep.Entries[1].Status != report.StatusBudgetExhausted {
		t.Errorf("expected exhausted, got %s", rep.Entries[1].Status)
	}
	if fp.calls.Load() != 0 || rep.Summary.TotalCalls != 0 {
		t.Errorf("cache hit should cost nothing")
	}
}

func TestRun_StoresFetchedResults(t *testing.T) {
	b, _ := jsonbackend.New(filepath.Join(t.TempDir(), "cache.ndjson"))
	c := cache.New(b, cache.Config{Logger: quiet()})
	defer c.Close()

	fp := &fakeProvider{}
	p := New(fp, c, Config{Budget: ledger.Budget{MaxCalls: 10}}, quiet())
	if _, err := p.Run(context.Background(), []string{"k"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	rep, err := p.Run(context.Background(), []string{"k"})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !rep.Entries[0].Cached || fp.calls.Load() != 2 {
		t.Errorf("second run should be served from cache, calls=%d", fp.calls.Load())
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(&fakeProvider{}, nil, Config{Budget: ledger.Budget{MaxCalls: 10}}, quiet())
	rep, err := p.Run(ctx, []string{"a", "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, e := range rep.Entries {
		if e.Status != report.StatusFailed || e.ErrorKind != "canceled" {
			t.Errorf("unexpected entry %+v", e)
		}
	}
}

func TestRun_ZeroThresholdsAreKept(t *testing.T) {
	fp := &fakeProvider{counts: map[string]counts{"k": {5, 50}}}
	th := qualify.Thresholds{AllInTitle: 0, InTitle: 0}
	p := New(fp, nil, Config{Thresholds: th, Budget: ledger.Budget{MaxCalls: 10}}, quiet())

	rep, err := p.Run(context.Background(), []string{"k"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := qualify.Classify(serp.MetricsResult{Keyword: "k", AllInTitle: 5, InTitle: 50}, th).Tier
	if got := rep.Entries[0].Tier; got != qualify.Bronze || got != want {
		t.Errorf("tier %s, want %s from the configured (0, 0) thresholds", got, want)
	}
}
