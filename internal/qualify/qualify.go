// Package qualify turns fetched counts into a viability tier. Everything
// here is pure: a Verdict depends only on its MetricsResult and thresholds.
package qualify

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/FranksOps/kwscout/internal/serp"
)

// Tier is a keyword viability bucket.
type Tier string

const (
	Gold         Tier = "GOLD"
	SilverEntry  Tier = "SILVER_ENTRY"
	SilverReview Tier = "SILVER_REVIEW"
	Bronze       Tier = "BRONZE"
)

// Tiers lists every tier, best first.
var Tiers = []Tier{Gold, SilverEntry, SilverReview, Bronze}

func (t Tier) rank() int {
	switch t {
	case Gold:
		return 0
	case SilverEntry:
		return 1
	case SilverReview:
		return 2
	}
	return 3
}

// Thresholds are inclusive upper bounds. allintitle gates the top two tiers.
type Thresholds struct {
	AllInTitle serp.Count `mapstructure:"allintitle"`
	InTitle    serp.Count `mapstructure:"intitle"`
}

// DefaultThresholds returns 10 and 30000.
func DefaultThresholds() Thresholds {
	return Thresholds{AllInTitle: 10, InTitle: 30000}
}

// Verdict is the classification of one MetricsResult.
type Verdict struct {
	Keyword    string     `json:"keyword"`
	Tier       Tier       `json:"tier"`
	AllInTitle serp.Count `json:"allintitle_count"`
	InTitle    serp.Count `json:"intitle_count"`
	Reason     string     `json:"reason"`
}

// Classify is total. Infinite counts compare above every threshold, so a
// keyword with an unknown allintitle can never reach GOLD or SILVER_ENTRY.
func Classify(m serp.MetricsResult, th Thresholds) Verdict {
	allOK := m.AllInTitle <= th.AllInTitle
	inOK := m.InTitle <= th.InTitle

	var tier Tier
	switch {
	case allOK && inOK:
		tier = Gold
	case allOK:
		tier = SilverEntry
	case inOK:
		tier = SilverReview
	default:
		tier = Bronze
	}

	return Verdict{
		Keyword:    m.Keyword,
		Tier:       tier,
		AllInTitle: m.AllInTitle,
		InTitle:    m.InTitle,
		Reason:     reason(m, th, allOK, inOK),
	}
}

func reason(m serp.MetricsResult, th Thresholds, allOK, inOK bool) string {
	var parts []string
	parts = append(parts, compare("allintitle", m.AllInTitle, th.AllInTitle, allOK))
	parts = append(parts, compare("intitle", m.InTitle, th.InTitle, inOK))
	if len(m.Competitors) > 0 {
		c := m.Competitors[0]
		parts = append(parts, fmt.Sprintf("weak competitor %s (%s) at #%d", c.Domain, c.Category, c.Rank))
	}
	return strings.Join(parts, "; ")
}

func compare(name string, got, limit serp.Count, ok bool) string {
	if got.IsInfinite() {
		return name + " unknown"
	}
	if ok {
		return fmt.Sprintf("%s %d <= %d", name, got, limit)
	}
	return fmt.Sprintf("%s %d > %d", name, got, limit)
}

// Compare orders verdicts best first: tier, then allintitle ascending,
// intitle ascending, keyword.
func Compare(a, b Verdict) int {
	return cmp.Or(
		cmp.Compare(a.Tier.rank(), b.Tier.rank()),
		cmp.Compare(a.AllInTitle, b.AllInTitle),
		cmp.Compare(a.InTitle, b.InTitle),
		strings.Compare(a.Keyword, b.Keyword),
	)
}

// Rank returns a sorted copy of vs.
func Rank(vs []Verdict) []Verdict {
	out := slices.Clone(vs)
	slices.SortStableFunc(out, Compare)
	return out
}
