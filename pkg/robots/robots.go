// Package robots answers whether a URL may be fetched under the host's
// robots.txt.
package robots

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/FranksOps/kwscout/pkg/httpclient"
)

// Auditor fetches robots.txt once per host and caches the parsed rules. A
// host whose robots.txt is missing or unreadable allows everything.
type Auditor struct {
	client *httpclient.Client
	logger *slog.Logger
	mu     sync.Mutex
	cache  map[string]*robotstxt.RobotsData
}

// NewAuditor returns an Auditor that fetches through client.
func NewAuditor(client *httpclient.Client, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		client: client,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch target. A nil Auditor allows
// everything.
func (a *Auditor) Allowed(ctx context.Context, target, userAgent string) (bool, error) {
	if a == nil {
		return true, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return false, fmt.Errorf("robots: invalid url: %w", err)
	}

	data := a.rules(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}
	return data.FindGroup(userAgent).Test(u.Path), nil
}

func (a *Auditor) rules(ctx context.Context, host string) *robotstxt.RobotsData {
	a.mu.Lock()
	defer a.mu.Unlock()

	if data, ok := a.cache[host]; ok {
		return data
	}
	data, err := a.fetch(ctx, host)
	if err != nil {
		a.logger.Debug("robots.txt unavailable, allowing", "host", host, "err", err)
	}
	a.cache[host] = data
	return data
}

func (a *Auditor) fetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequest(http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	resp, body, err := a.client.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	// 4xx means no rules; robotstxt treats 5xx as disallow-all.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return data, nil
}
