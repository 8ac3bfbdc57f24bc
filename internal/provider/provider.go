// Package provider turns planned calls into a MetricsResult using one search
// backend, with retries, pacing and per-attempt metering.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/kwscout/internal/competitor"
	"github.com/FranksOps/kwscout/internal/metrics"
	"github.com/FranksOps/kwscout/internal/plan"
	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/pkg/ratelimit"
	"github.com/FranksOps/kwscout/pkg/retry"
)

// Meter accounts for the network attempts of one keyword. Take is called
// before every attempt, retries included; an error vetoes the attempt.
type Meter interface {
	Take() error
	Observe(cost decimal.Decimal)
}

// Provider fetches both counts for a keyword.
type Provider interface {
	ID() serp.Source
	Fetch(ctx context.Context, keyword string, calls []plan.Call, meter Meter) (*serp.MetricsResult, error)
}

// Config tunes an Adapter. Zero values get defaults.
type Config struct {
	Retry retry.Policy
	// RequestsPerSecond paces attempts across all keywords. 0 disables pacing.
	RequestsPerSecond float64
	Jitter            float64
	// Scanner finds weak competitors in the listing marked ScanOrganic.
	// Nil uses competitor.DefaultSites.
	Scanner *competitor.Scanner
	// Depth is how many organic results each call requests.
	Depth  int
	Logger *slog.Logger
	Now    func() time.Time
}

// Adapter implements Provider over a serp.Backend.
type Adapter struct {
	backend serp.Backend
	policy  retry.Policy
	limiter *ratelimit.Limiter
	scanner *competitor.Scanner
	depth   int
	logger  *slog.Logger
	now     func() time.Time
}

var _ Provider = (*Adapter)(nil)

// NewAdapter wraps b.
func NewAdapter(b serp.Backend, cfg Config) *Adapter {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Default()
	}
	if cfg.Scanner == nil {
		cfg.Scanner = competitor.NewScanner(nil)
	}
	if cfg.Depth <= 0 {
		cfg.Depth = competitor.TopN
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Adapter{
		backend: b,
		policy:  cfg.Retry,
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter),
		scanner: cfg.Scanner,
		depth:   cfg.Depth,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
}

func (a *Adapter) ID() serp.Source { return a.backend.Source() }

// Fetch issues calls concurrently and assembles the result. A count the
// backend did not report stays Infinite and its operator is listed in
// Malformed. The first failing call cancels the others.
func (a *Adapter) Fetch(ctx context.Context, keyword string, calls []plan.Call, meter Meter) (*serp.MetricsResult, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("provider: %w: no calls planned for %q", serp.ErrRequest, keyword)
	}
	if meter == nil {
		meter = unmetered{}
	}

	pages := make([]*serp.Page, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range calls {
		g.Go(func() error {
			p, err := a.call(gctx, c, meter)
			if err != nil {
				return fmt.Errorf("provider %s: %s: %w", a.ID(), c.Operator, err)
			}
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &serp.MetricsResult{
		Keyword:    keyword,
		AllInTitle: serp.Infinite,
		InTitle:    serp.Infinite,
		Source:     a.ID(),
		FetchedAt:  a.now().UTC(),
	}
	for i, c := range calls {
		p := pages[i]
		switch c.Operator {
		case serp.OpAllInTitle:
			res.AllInTitle = p.Total
		case serp.OpInTitle:
			res.InTitle = p.Total
		}
		if c.Operator != serp.OpOrganic && p.Total.IsInfinite() {
			res.Malformed = append(res.Malformed, c.Operator)
			a.logger.Warn("count missing from response", "keyword", keyword, "operator", c.Operator, "source", a.ID())
		}
		if c.ScanOrganic {
			res.Competitors = a.scanner.Scan(p.Organic)
		}
	}
	return res, nil
}

// Related issues one bare-keyword search for seed and returns the related
// searches the listing showed. It is metered and retried like Fetch.
func (a *Adapter) Related(ctx context.Context, seed string, meter Meter) ([]string, error) {
	if meter == nil {
		meter = unmetered{}
	}
	p, err := a.call(ctx, plan.Call{Operator: serp.OpOrganic, Keyword: seed}, meter)
	if err != nil {
		return nil, fmt.Errorf("provider %s: related: %w", a.ID(), err)
	}
	return p.Related, nil
}

func (a *Adapter) call(ctx context.Context, c plan.Call, meter Meter) (*serp.Page, error) {
	query := c.Query()
	var page *serp.Page

	before := func(attempt int) error {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := meter.Take(); err != nil {
			return err
		}
		if attempt > 1 {
			a.logger.Info("retrying provider call", "query", query, "attempt", attempt)
		}
		return nil
	}

	err := a.policy.Do(ctx, serp.Retryable, before, func(ctx context.Context) error {
		start := time.Now()
		p, err := a.backend.Search(ctx, query, a.depth)
		metrics.RecordCall(a.ID(), c.Operator, err, time.Since(start))
		if p != nil && p.Cost != "" {
			if cost, cerr := decimal.NewFromString(p.Cost); cerr == nil {
				meter.Observe(cost)
			}
		}
		if err != nil {
			a.logger.Warn("provider call failed", "query", query, "err", err)
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

type unmetered struct{}

func (unmetered) Take() error              { return nil }
func (unmetered) Observe(decimal.Decimal) {}
