package serp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/kwscout/internal/bypass"
	"github.com/FranksOps/kwscout/pkg/httpclient"
	"github.com/FranksOps/kwscout/pkg/proxy"
	"github.com/FranksOps/kwscout/pkg/robots"
	"github.com/FranksOps/kwscout/pkg/useragent"
)

// DefaultYahooURL is the Yahoo! JAPAN web search endpoint.
const DefaultYahooURL = "https://search.yahoo.co.jp/search"

// YahooConfig configures the HTML backend. No credentials are involved.
type YahooConfig struct {
	BaseURL     string
	Fingerprint httpclient.Profile
	UserAgents  *useragent.Pool
	Proxies     *proxy.Pool
	Detectors   []bypass.Detector
	Client      *httpclient.Client
	Logger      *slog.Logger

	// RespectRobots refuses queries the host's robots.txt disallows.
	RespectRobots bool
}

// Yahoo scrapes search.yahoo.co.jp result pages.
type Yahoo struct {
	cfg    YahooConfig
	client *httpclient.Client
	robots *robots.Auditor
	logger *slog.Logger
}

var _ Backend = (*Yahoo)(nil)

// NewYahoo returns an HTML backend. Without an explicit Client it builds one
// with the configured TLS fingerprint that routes through Proxies.
func NewYahoo(cfg YahooConfig) (*Yahoo, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultYahooURL
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = httpclient.ProfileChrome
	}
	if cfg.UserAgents == nil {
		cfg.UserAgents = useragent.NewPool(nil)
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		var err error
		client, err = httpclient.New(httpclient.Config{
			Fingerprint:  cfg.Fingerprint,
			Proxy:        proxy.FromRequest,
			UseCookieJar: true,
			MaxRedirects: 5,
		})
		if err != nil {
			return nil, fmt.Errorf("yahoo: %w", err)
		}
	}
	y := &Yahoo{cfg: cfg, client: client, logger: logger}
	if cfg.RespectRobots {
		y.robots = robots.NewAuditor(client, logger)
	}
	return y, nil
}

func (y *Yahoo) Source() Source { return SourceYahoo }

// Search fetches one result page. Block and captcha pages surface as
// ErrBlocked and count against the proxy that served them.
func (y *Yahoo) Search(ctx context.Context, query string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("p", query)
	q.Set("ei", "UTF-8")

	req, err := http.NewRequest(http.MethodGet, y.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo: %w: %v", ErrRequest, err)
	}
	ua := y.cfg.UserAgents.Random()
	if ok, err := y.robots.Allowed(ctx, req.URL.String(), ua); err != nil || !ok {
		return nil, fmt.Errorf("yahoo: %w: disallowed by robots.txt", ErrRequest)
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9")

	px := y.cfg.Proxies.Next()
	resp, body, err := y.client.Fetch(proxy.WithProxy(ctx, px), req)
	if err != nil {
		y.markProxy(px, false)
		return nil, transportError(ctx, "yahoo", err)
	}

	if blocked, by := bypass.Analyze(&bypass.Page{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, y.cfg.Detectors); blocked {
		y.markProxy(px, false)
		y.logger.Warn("search blocked", "query", query, "by", by, "status", resp.StatusCode)
		return nil, fmt.Errorf("yahoo: %w: %s", ErrBlocked, by)
	}
	if err := ClassifyStatus(resp.StatusCode, ""); err != nil {
		y.markProxy(px, false)
		return nil, fmt.Errorf("yahoo: %w", err)
	}
	y.markProxy(px, true)

	page, err := ParseYahoo(body, limit)
	if err != nil {
		return nil, fmt.Errorf("yahoo: %w", err)
	}
	page.Query = query
	return page, nil
}

func (y *Yahoo) markProxy(px *url.URL, ok bool) {
	if px == nil {
		return
	}
	var err error
	if ok {
		err = y.cfg.Proxies.MarkSuccess(px)
	} else {
		err = y.cfg.Proxies.MarkFailure(px)
	}
	if err != nil {
		y.logger.Debug("proxy bookkeeping failed", "proxy", px.Host, "err", err)
	}
}

var yahooCountRe = regexp.MustCompile(`約?\s*([0-9][0-9,]*)\s*件`)

// yahooNoHits marks the zero-result page, which prints no count.
var yahooNoHits = []string{"に一致するウェブページは見つかりませんでした", "検索結果はありませんでした"}

// ParseYahoo extracts the total and up to limit organic results from a
// Yahoo! JAPAN result page. Only the known count elements are trusted; a page
// without one, and without a no-hit notice, yields Infinite.
func ParseYahoo(body []byte, limit int) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{Total: yahooTotal(doc)}

	seen := make(map[string]bool)
	doc.Find(".Algo, .sw-Card").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if len(page.Organic) >= limit {
			return false
		}
		a := card.Find(".sw-Card__title a").First()
		if a.Length() == 0 {
			a = card.Find("a[href^='http']").First()
		}
		href, ok := a.Attr("href")
		if !ok || !strings.HasPrefix(href, "http") || seen[href] {
			return true
		}
		seen[href] = true
		page.Organic = append(page.Organic, OrganicResult{
			Rank:  len(page.Organic) + 1,
			URL:   href,
			Title: strings.TrimSpace(a.Text()),
		})
		return true
	})
	page.Related = yahooRelated(doc)
	return page, nil
}

const yahooRelatedSel = "[class*='RelatedSearch'] a, [class*='relatedSearch'] a, [class*='related-search'] a"

// yahooRelated reads the related search links printed around the listing.
func yahooRelated(doc *goquery.Document) []string {
	var out []string
	seen := make(map[string]bool)
	doc.Find(yahooRelatedSel).Each(func(_ int, a *goquery.Selection) {
		if a.Closest(".Algo, .sw-Card").Length() > 0 {
			return
		}
		text := strings.Join(strings.Fields(a.Text()), " ")
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, text)
	})
	return out
}

func yahooTotal(doc *goquery.Document) Count {
	for _, sel := range []string{".SearchResultInfo", ".SearchResultSummary", ".Hits__item"} {
		if c, ok := countIn(doc.Find(sel).First().Text()); ok {
			return c
		}
	}
	text := doc.Find("body").Text()
	for _, s := range yahooNoHits {
		if strings.Contains(text, s) {
			return 0
		}
	}
	return Infinite
}

func countIn(text string) (Count, bool) {
	m := yahooCountRe.FindStringSubmatch(text)
	if m == nil {
		return Infinite, false
	}
	return countFromText(m[1])
}
