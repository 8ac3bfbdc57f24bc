package qualify

import (
	"reflect"
	"strings"
	"testing"

	"github.com/FranksOps/kwscout/internal/serp"
)

func TestClassify_Table(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name       string
		allintitle serp.Count
		intitle    serp.Count
		want       Tier
	}{
		{"both low", 3, 1200, Gold},
		{"boundaries inclusive", 10, 30000, Gold},
		{"allintitle just over", 11, 30000, SilverReview},
		{"intitle just over", 10, 30001, SilverEntry},
		{"sports drink how-to", 214, 2850, SilverReview},
		{"entry", 5, 50000, SilverEntry},
		{"both high", 500, 900000, Bronze},
		{"zero counts", 0, 0, Gold},
		{"unknown allintitle", serp.Infinite, 10, SilverReview},
		{"unknown both", serp.Infinite, serp.Infinite, Bronze},
		{"unknown intitle", 2, serp.Infinite, SilverEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(serp.MetricsResult{Keyword: "k", AllInTitle: tt.allintitle, InTitle: tt.intitle}, th)
			if v.Tier != tt.want {
				t.Errorf("Classify(%v, %v) = %s, want %s", tt.allintitle, tt.intitle, v.Tier, tt.want)
			}
		})
	}
}

func TestClassify_InfiniteNeverTopTiers(t *testing.T) {
	th := Thresholds{AllInTitle: serp.Infinite - 1, InTitle: serp.Infinite - 1}
	for _, in := range []serp.Count{0, 1, 30000, serp.Infinite} {
		v := Classify(serp.MetricsResult{AllInTitle: serp.Infinite, InTitle: in}, th)
		if v.Tier == Gold || v.Tier == SilverEntry {
			t.Errorf("infinite allintitle reached %s", v.Tier)
		}
	}
}

func TestClassify_Pure(t *testing.T) {
	m := serp.MetricsResult{
		Keyword:    "スポーツドリンク 作り方",
		AllInTitle: 214,
		InTitle:    2850,
		Competitors: []serp.Competitor{
			{Rank: 4, Category: "qa", Domain: "chiebukuro.yahoo.co.jp"},
		},
	}
	a := Classify(m, DefaultThresholds())
	b := Classify(m, DefaultThresholds())
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Classify is not deterministic: %+v vs %+v", a, b)
	}
	if a.Tier != SilverReview {
		t.Errorf("expected SILVER_REVIEW, got %s", a.Tier)
	}
	if !strings.Contains(a.Reason, "allintitle 214 > 10") || !strings.Contains(a.Reason, "chiebukuro.yahoo.co.jp") {
		t.Errorf("unexpected reason %q", a.Reason)
	}
}

func TestClassify_CustomThresholds(t *testing.T) {
	v := Classify(serp.MetricsResult{AllInTitle: 25, InTitle: 40000}, Thresholds{AllInTitle: 30, InTitle: 50000})
	if v.Tier != Gold {
		t.Errorf("expected GOLD with relaxed thresholds, got %s", v.Tier)
	}
}

func TestRank(t *testing.T) {
	vs := []Verdict{
		{Keyword: "d", Tier: Bronze, AllInTitle: 1},
		{Keyword: "c", Tier: Gold, AllInTitle: 8, InTitle: 10},
		{Keyword: "b", Tier: Gold, AllInTitle: 2, InTitle: 99},
		{Keyword: "a", Tier: Gold, AllInTitle: 2, InTitle: 99},
		{Keyword: "e", Tier: SilverReview, AllInTitle: serp.Infinite},
		{Keyword: "f", Tier: SilverEntry, AllInTitle: 9},
	}
	got := Rank(vs)
	var order []string
	for _, v := range got {
		order = append(order, v.Keyword)
	}
	want := []string{"a", "b", "c", "f", "e", "d"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("Rank order = %v, want %v", order, want)
	}
	if vs[0].Keyword != "d" {
		t.Error("Rank must not modify its input")
	}
}
