// Package pipeline runs a keyword batch: cache lookup, planning, budget
// reservation, fetching, classification and reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/kwscout/internal/cache"
	"github.com/FranksOps/kwscout/internal/keyword"
	"github.com/FranksOps/kwscout/internal/ledger"
	"github.com/FranksOps/kwscout/internal/metrics"
	"github.com/FranksOps/kwscout/internal/plan"
	"github.com/FranksOps/kwscout/internal/provider"
	"github.com/FranksOps/kwscout/internal/qualify"
	"github.com/FranksOps/kwscout/internal/report"
	"github.com/FranksOps/kwscout/internal/serp"
)

// Config holds the per-run settings.
type Config struct {
	Strategy plan.Strategy
	// Thresholds are applied as given; (0, 0) is a valid setting.
	Thresholds qualify.Thresholds
	Budget     ledger.Budget
	// Concurrency bounds the keywords in flight. Defaults to 3.
	Concurrency int
}

// Pipeline orchestrates one provider, an optional cache and a fresh ledger
// per run.
type Pipeline struct {
	provider provider.Provider
	cache    *cache.Cache
	planner  *plan.Planner
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New wires a pipeline. c may be nil to disable caching.
func New(p provider.Provider, c *cache.Cache, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.Strategy == "" {
		cfg.Strategy = plan.Optimized
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		provider: p,
		cache:    c,
		planner:  plan.New(cfg.Strategy),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run processes keywords and returns a report with one entry per distinct
// keyword, in input order. Keyword failures are recorded in the report; only
// an authentication failure, or cancellation of ctx, aborts the batch, in
// which case the partial report is returned together with the error.
func (p *Pipeline) Run(ctx context.Context, keywords []string) (*report.Report, error) {
	if p.provider == nil {
		return nil, errors.New("pipeline: provider is nil")
	}

	start := p.now()
	runID := uuid.NewString()
	kws := keyword.Dedupe(keywords)
	l := ledger.New(p.cfg.Budget)
	entries := make([]report.Entry, len(kws))
	done := make([]bool, len(kws))

	p.logger.Info("run started", "run_id", runID, "keywords", len(kws), "provider", p.provider.ID(),
		"strategy", p.cfg.Strategy, "max_calls", p.cfg.Budget.MaxCalls)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for i, k := range kws {
		if gctx.Err() != nil {
			break
		}
		kw := k.String()

		if m, ok := p.lookup(gctx, kw); ok {
			entries[i] = report.OK(qualify.Classify(*m, p.cfg.Thresholds), m, true)
			done[i] = true
			continue
		}

		calls := p.planner.Plan(kw)
		tab, ok := l.Open(len(calls))
		if !ok {
			p.logger.Debug("budget exhausted, skipping", "keyword", kw)
			entries[i] = report.Exhausted(kw)
			done[i] = true
			continue
		}

		g.Go(func() error {
			defer func() {
				tab.Close()
				metrics.LedgerCallsUsed.Set(float64(l.Used()))
			}()
			if err := gctx.Err(); err != nil {
				entries[i] = report.Failed(kw, "canceled", err)
				done[i] = true
				return nil
			}
			e, err := p.fetch(gctx, kw, calls, tab)
			entries[i] = e
			done[i] = true
			return err
		})
	}

	runErr := g.Wait()
	if runErr == nil && ctx.Err() != nil {
		runErr = fmt.Errorf("pipeline: %w", ctx.Err())
	}
	for i, k := range kws {
		if !done[i] {
			entries[i] = report.Failed(k.String(), "canceled", runErr)
		}
	}

	end := p.now()
	s := report.GenerateSummary(entries)
	s.RunID = runID
	s.Provider = p.provider.ID()
	s.Strategy = string(p.cfg.Strategy)
	s.MaxCalls = p.cfg.Budget.MaxCalls
	s.TotalCalls = l.Used()
	s.TotalCost = l.Cost()
	s.ObservedCost = l.ObservedCost()
	s.StartTime = start
	s.EndTime = end
	s.Duration = end.Sub(start)

	for _, e := range entries {
		metrics.RecordKeyword(string(e.Status), string(e.Tier))
	}

	p.logger.Info("run finished", "run_id", runID, "calls", s.TotalCalls, "cost", s.TotalCost.String(),
		"ok", s.StatusCounts[report.StatusOK], "failed", s.StatusCounts[report.StatusFailed],
		"exhausted", s.StatusCounts[report.StatusBudgetExhausted], "duration", s.Duration)

	return &report.Report{Summary: s, Entries: entries}, runErr
}

func (p *Pipeline) lookup(ctx context.Context, kw string) (*serp.MetricsResult, bool) {
	m, ok, err := p.cache.Lookup(ctx, kw, p.provider.ID())
	if err != nil {
		p.logger.Warn("cache lookup failed", "keyword", kw, "err", err)
		return nil, false
	}
	if ok {
		p.logger.Debug("cache hit", "keyword", kw, "fetched_at", m.FetchedAt)
	}
	return m, ok
}

// fetch returns a non-nil error only when the whole batch must stop.
func (p *Pipeline) fetch(ctx context.Context, kw string, calls []plan.Call, tab *ledger.Tab) (report.Entry, error) {
	m, err := p.provider.Fetch(ctx, kw, calls, tab)
	if err != nil {
		kind := errorKind(err)
		p.logger.Warn("keyword failed", "keyword", kw, "kind", kind, "err", err)
		if errors.Is(err, serp.ErrAuth) {
			return report.Failed(kw, kind, err), fmt.Errorf("pipeline: keyword %q: %w", kw, err)
		}
		return report.Failed(kw, kind, err), nil
	}

	v := qualify.Classify(*m, p.cfg.Thresholds)
	p.logger.Debug("keyword classified", "keyword", kw, "tier", v.Tier, "allintitle", m.AllInTitle, "intitle", m.InTitle)

	if err := p.cache.Store(ctx, m); err != nil {
		p.logger.Warn("cache store failed", "keyword", kw, "err", err)
	}
	return report.OK(v, m, false), nil
}

// errorKind names err for the report.
func errorKind(err error) string {
	if errors.Is(err, ledger.ErrBudgetExhausted) {
		return "budget_exhausted"
	}
	return serp.Kind(err)
}
