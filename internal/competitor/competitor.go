// Package competitor finds weak sites (Q&A boards, social media, free blog
// hosts, shopping malls) near the top of a result listing. A keyword whose
// first page is held by such sites is easier to rank for.
package competitor

import (
	"net/url"
	"sort"
	"strings"

	"github.com/FranksOps/kwscout/internal/serp"
)

// Category names a class of weak site.
type Category string

const (
	QA       Category = "qa"
	SNS      Category = "sns"
	FreeBlog Category = "free_blog"
	Mall     Category = "mall"
)

// Site matches a host suffix and, optionally, a path prefix.
type Site struct {
	Domain     string
	PathPrefix string
	Category   Category
}

// DefaultSites is the weak-site list used when none is configured.
var DefaultSites = []Site{
	{Domain: "chiebukuro.yahoo.co.jp", Category: QA},
	{Domain: "okwave.jp", Category: QA},
	{Domain: "oshiete.goo.ne.jp", Category: QA},
	{Domain: "komachi.yomiuri.co.jp", Category: QA},
	{Domain: "qa.itmedia.co.jp", Category: QA},
	{Domain: "teratail.com", Category: QA},
	{Domain: "stackexchange.com", Category: QA},
	{Domain: "quora.com", Category: QA},
	{Domain: "reddit.com", Category: QA},

	{Domain: "x.com", Category: SNS},
	{Domain: "twitter.com", Category: SNS},
	{Domain: "instagram.com", Category: SNS},
	{Domain: "facebook.com", Category: SNS},
	{Domain: "youtube.com", Category: SNS},
	{Domain: "tiktok.com", Category: SNS},
	{Domain: "pinterest.jp", Category: SNS},
	{Domain: "pinterest.com", Category: SNS},

	{Domain: "ameblo.jp", Category: FreeBlog},
	{Domain: "hatenablog.com", Category: FreeBlog},
	{Domain: "note.com", Category: FreeBlog},
	{Domain: "livedoor.jp", Category: FreeBlog},
	{Domain: "fc2.com", Category: FreeBlog},
	{Domain: "seesaa.net", Category: FreeBlog},
	{Domain: "jugem.jp", Category: FreeBlog},
	{Domain: "exblog.jp", Category: FreeBlog},
	{Domain: "plaza.rakuten.co.jp", Category: FreeBlog},
	{Domain: "blog.goo.ne.jp", Category: FreeBlog},

	{Domain: "amazon.co.jp", Category: Mall},
	{Domain: "rakuten.co.jp", Category: Mall},
	{Domain: "shopping.yahoo.co.jp", Category: Mall},
}

// TopN is how deep into a listing the scan looks.
const TopN = 10

// Scanner matches listings against a site list.
type Scanner struct {
	sites []Site
}

// NewScanner builds a scanner. More specific entries win: a site with a path
// prefix or a longer domain is tried before a shorter one, so
// plaza.rakuten.co.jp is a blog, not a mall.
func NewScanner(sites []Site) *Scanner {
	if len(sites) == 0 {
		sites = DefaultSites
	}
	sorted := append([]Site(nil), sites...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].PathPrefix) != len(sorted[j].PathPrefix) {
			return len(sorted[i].PathPrefix) > len(sorted[j].PathPrefix)
		}
		return len(sorted[i].Domain) > len(sorted[j].Domain)
	})
	return &Scanner{sites: sorted}
}

// Match returns the site rawURL belongs to.
func (s *Scanner) Match(rawURL string) (Site, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Site{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, site := range s.sites {
		if host != site.Domain && !strings.HasSuffix(host, "."+site.Domain) {
			continue
		}
		if site.PathPrefix != "" && !strings.HasPrefix(u.Path, site.PathPrefix) {
			continue
		}
		return site, true
	}
	return Site{}, false
}

// Scan returns the weak sites among the first TopN results, ordered by rank.
func (s *Scanner) Scan(results []serp.OrganicResult) []serp.Competitor {
	var hits []serp.Competitor
	for _, r := range results {
		if r.Rank < 1 || r.Rank > TopN {
			continue
		}
		site, ok := s.Match(r.URL)
		if !ok {
			continue
		}
		hits = append(hits, serp.Competitor{
			Rank:     r.Rank,
			Category: string(site.Category),
			Domain:   site.Domain,
			URL:      r.URL,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Rank < hits[j].Rank })
	return hits
}
