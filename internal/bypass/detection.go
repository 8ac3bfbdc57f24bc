package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Page is the part of a search response the detectors look at.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector reports whether a search response is a challenge or block page
// rather than a result listing, and who served it.
type Detector func(p *Page) (blocked bool, source string)

// DefaultDetectors returns the detectors for the engines and CDNs the HTML
// backend talks to.
func DefaultDetectors() []Detector {
	return []Detector{
		detectYahooJapan,
		detectGoogleSorry,
		detectCloudflare,
		detectAkamai,
	}
}

// Analyze runs p through detectors in order and returns the first hit.
func Analyze(p *Page, detectors []Detector) (bool, string) {
	if p == nil {
		return false, ""
	}
	for _, d := range detectors {
		if blocked, src := d(p); blocked {
			return true, src
		}
	}
	return false, ""
}

func containsAny(body []byte, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(body, []byte(n)) {
			return true
		}
	}
	return false
}

// detectYahooJapan catches the access-restriction and captcha interstitials
// search.yahoo.co.jp serves to automated clients.
func detectYahooJapan(p *Page) (bool, string) {
	if p.StatusCode == http.StatusForbidden || p.StatusCode == http.StatusTooManyRequests {
		return true, "YahooJapan"
	}
	if containsAny(p.Body,
		"captcha.yahoo.co.jp",
		"ただいまアクセスが集中しています",
		"不正なアクセスの可能性",
		"id=\"yjCaptcha\"",
	) {
		return true, "YahooJapan"
	}
	return false, ""
}

// detectGoogleSorry catches Google's unusual-traffic page.
func detectGoogleSorry(p *Page) (bool, string) {
	if loc := p.Header.Get("Location"); strings.Contains(loc, "/sorry/index") {
		return true, "Google"
	}
	if containsAny(p.Body,
		"Our systems have detected unusual traffic",
		"お使いのコンピュータ ネットワークから通常と異なるトラフィックが検出されました",
		"/sorry/index",
	) {
		return true, "Google"
	}
	return false, ""
}

func detectCloudflare(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden && p.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Header.Get("Server")), "cloudflare") ||
		containsAny(p.Body, "cf-browser-verification", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Header.Get("Server")), "akamai") ||
		(containsAny(p.Body, "Reference #") && containsAny(p.Body, "Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}
