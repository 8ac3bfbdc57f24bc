package plan

import (
	"fmt"

	"github.com/FranksOps/kwscout/internal/serp"
)

// Strategy selects which queries a keyword costs.
type Strategy string

const (
	// Optimized issues allintitle and intitle only, and reuses the intitle
	// listing for the competitor scan. Two calls per keyword.
	Optimized Strategy = "optimized"
	// Naive additionally fetches the plain organic listing for the competitor
	// scan. Three calls per keyword.
	Naive Strategy = "naive"
)

// ParseStrategy resolves a strategy name. The empty string selects Optimized.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(raw) {
	case "", Optimized:
		return Optimized, nil
	case Naive:
		return Naive, nil
	}
	return "", fmt.Errorf("unknown plan strategy %q", raw)
}

// Calls returns the number of billable calls the strategy spends per keyword.
func (s Strategy) Calls() int {
	if s == Naive {
		return 3
	}
	return 2
}

// Call is a single planned search.
type Call struct {
	Operator serp.Operator
	Keyword  string
	// ScanOrganic marks the call whose organic listing feeds the weak
	// competitor scan. At most one call per plan has it set.
	ScanOrganic bool
}

// Query renders the search string sent to the backend.
func (c Call) Query() string { return c.Operator.Query(c.Keyword) }

// Plan builds the calls for keyword under s. The result is never empty and
// always contains exactly one allintitle and one intitle call.
func Plan(s Strategy, keyword string) []Call {
	switch s {
	case Naive:
		return []Call{
			{Operator: serp.OpAllInTitle, Keyword: keyword},
			{Operator: serp.OpInTitle, Keyword: keyword},
			{Operator: serp.OpOrganic, Keyword: keyword, ScanOrganic: true},
		}
	default:
		return []Call{
			{Operator: serp.OpAllInTitle, Keyword: keyword},
			{Operator: serp.OpInTitle, Keyword: keyword, ScanOrganic: true},
		}
	}
}

// Planner plans keywords under a fixed strategy.
type Planner struct {
	Strategy Strategy
}

// New returns a Planner for s.
func New(s Strategy) *Planner { return &Planner{Strategy: s} }

// Plan builds the calls for keyword.
func (p *Planner) Plan(keyword string) []Call { return Plan(p.Strategy, keyword) }

// Calls returns the per-keyword call count of the planner's strategy.
func (p *Planner) Calls() int { return p.Strategy.Calls() }
