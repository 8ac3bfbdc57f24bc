// Package suggest grows a seed keyword into a candidate list for a run. The
// candidates are the related searches shown on the seed's listing and on the
// listings of the seed combined with intent modifiers.
package suggest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/kwscout/internal/keyword"
	"github.com/FranksOps/kwscout/internal/ledger"
	"github.com/FranksOps/kwscout/internal/metrics"
	"github.com/FranksOps/kwscout/internal/provider"
	"github.com/FranksOps/kwscout/internal/serp"
)

// DefaultModifiers are appended to the seed to reach buying, how-to, concern
// and definition queries.
var DefaultModifiers = []string{
	"おすすめ", "比較", "ランキング", "選び方",
	"やり方", "使い方",
	"デメリット", "注意点", "口コミ",
	"とは",
}

// DefaultLimit caps the written list.
const DefaultLimit = 400

const (
	minRunes       = 2
	maxRunes       = 50
	maxSymbolRatio = 0.3
)

// Source returns the related searches of one listing. provider.Adapter
// implements it.
type Source interface {
	ID() serp.Source
	Related(ctx context.Context, seed string, meter provider.Meter) ([]string, error)
}

// Config tunes a Collector.
type Config struct {
	// Modifiers are combined with the seed, one query each. Nil queries the
	// seed alone.
	Modifiers []string
	Budget    ledger.Budget
	// Limit caps the number of suggestions. 0 means DefaultLimit.
	Limit int
	// Concurrency bounds the queries in flight. Defaults to 3.
	Concurrency int
}

// Result is the outcome of one collection.
type Result struct {
	Seed     keyword.Keyword
	Keywords []keyword.Keyword
	// Queries lists every query planned, seed first.
	Queries []string
	Failed  int
	// Skipped counts the queries the budget could not cover.
	Skipped      int
	Calls        int
	Cost         decimal.Decimal
	ObservedCost decimal.Decimal
}

// Collector runs suggestion collection against one source.
type Collector struct {
	source Source
	cfg    Config
	logger *slog.Logger
}

// New wires a collector.
func New(src Source, cfg Config, logger *slog.Logger) *Collector {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{source: src, cfg: cfg, logger: logger}
}

// Collect queries the seed and every seed+modifier combination, one billable
// call each, and merges their related searches in query order. A failed
// query is logged and skipped. An authentication failure or cancellation
// stops the collection and the partial result is returned with the error.
func (c *Collector) Collect(ctx context.Context, seed string) (*Result, error) {
	if c.source == nil {
		return nil, errors.New("suggest: source is nil")
	}
	root := keyword.Normalize(seed)
	if root == "" {
		return nil, errors.New("suggest: seed is empty")
	}

	res := &Result{Seed: root, Queries: Queries(root, c.cfg.Modifiers)}
	l := ledger.New(c.cfg.Budget)
	related := make([][]string, len(res.Queries))
	failed := make([]bool, len(res.Queries))

	c.logger.Info("suggestion collection started", "seed", root, "queries", len(res.Queries),
		"provider", c.source.ID(), "max_calls", c.cfg.Budget.MaxCalls)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, q := range res.Queries {
		if gctx.Err() != nil {
			break
		}
		tab, ok := l.Open(1)
		if !ok {
			res.Skipped = len(res.Queries) - i
			c.logger.Warn("budget exhausted, remaining queries skipped", "skipped", res.Skipped)
			break
		}
		g.Go(func() error {
			defer func() {
				tab.Close()
				metrics.LedgerCallsUsed.Set(float64(l.Used()))
			}()
			rel, err := c.source.Related(gctx, q, tab)
			if err != nil {
				if errors.Is(err, serp.ErrAuth) {
					return fmt.Errorf("suggest: %w", err)
				}
				failed[i] = true
				c.logger.Warn("related search failed", "query", q, "err", err)
				return nil
			}
			related[i] = rel
			c.logger.Debug("related searches", "query", q, "found", len(rel))
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("suggest: %w", ctx.Err())
	}
	for _, f := range failed {
		if f {
			res.Failed++
		}
	}
	res.Keywords = Merge(root, related, c.cfg.Limit)
	metrics.SuggestionsTotal.Add(float64(len(res.Keywords)))
	res.Calls = l.Used()
	res.Cost = l.Cost()
	res.ObservedCost = l.ObservedCost()

	c.logger.Info("suggestion collection finished", "seed", root, "suggestions", len(res.Keywords),
		"calls", res.Calls, "failed", res.Failed, "skipped", res.Skipped, "cost", res.Cost.StringFixed(2))
	return res, err
}

// Queries returns the seed followed by the seed joined with each modifier.
// Modifiers already contained in the seed are not repeated.
func Queries(seed keyword.Keyword, modifiers []string) []string {
	qs := []string{seed.String()}
	seen := map[keyword.Keyword]bool{seed: true}
	for _, m := range modifiers {
		mk := keyword.Normalize(m)
		if mk == "" || strings.Contains(seed.String(), mk.String()) {
			continue
		}
		q := keyword.Normalize(seed.String() + " " + mk.String())
		if seen[q] {
			continue
		}
		seen[q] = true
		qs = append(qs, q.String())
	}
	return qs
}

// Merge normalizes and dedupes the related searches in order, drops the
// seed and unusable phrases, and keeps at most limit. limit <= 0 keeps all.
func Merge(seed keyword.Keyword, lists [][]string, limit int) []keyword.Keyword {
	seen := map[keyword.Keyword]bool{seed: true}
	var out []keyword.Keyword
	for _, list := range lists {
		for _, raw := range list {
			k := keyword.Normalize(raw)
			if k == "" || seen[k] || !Usable(k) {
				continue
			}
			seen[k] = true
			out = append(out, k)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// Usable rejects phrases too short or too long to be a search keyword and
// phrases made mostly of symbols.
func Usable(k keyword.Keyword) bool {
	n := utf8.RuneCountInString(string(k))
	if n < minRunes || n > maxRunes {
		return false
	}
	symbols := 0
	for _, r := range string(k) {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsSpace(r) && !unicode.Is(unicode.Mn, r) {
			symbols++
		}
	}
	return float64(symbols)/float64(n) <= maxSymbolRatio
}

// WriteList writes one keyword per line, preceded by a comment naming the
// seed. keyword.Load reads the output back.
func WriteList(w io.Writer, r *Result) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# seed: %s\n", r.Seed)
	for _, k := range r.Keywords {
		fmt.Fprintln(bw, k)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("suggest: write: %w", err)
	}
	return nil
}
