package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// Fingerprint selects the TLS ClientHello. Empty means the Go default.
	Fingerprint Profile
	// Proxy picks an outbound proxy per request. Nil means no proxy.
	Proxy func(*http.Request) (*url.URL, error)
	// UserAgent is set on requests that do not carry one.
	UserAgent string
	// MaxBodyBytes caps how much of a response body Fetch reads (0 = 8 MiB).
	MaxBodyBytes int64
	// Transport overrides Fingerprint and Proxy entirely, e.g. in tests.
	Transport http.RoundTripper
}

// Client wraps a standard http.Client with redirect, cookie and transport
// policy shared by every provider backend.
type Client struct {
	*http.Client
	userAgent string
	maxBody   int64
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}

	c := &http.Client{Timeout: cfg.Timeout}

	if cfg.MaxRedirects >= 0 {
		max := cfg.MaxRedirects
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= max {
				return fmt.Errorf("httpclient: stopped after %d redirects", max)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	} else {
		rt, err := Transport(cfg.Fingerprint, cfg.Proxy)
		if err != nil {
			return nil, err
		}
		c.Transport = rt
	}

	return &Client{Client: c, userAgent: cfg.UserAgent, maxBody: cfg.MaxBodyBytes}, nil
}

// Do executes req under ctx, which controls cancellation independently of the
// client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	r := req.Clone(ctx)
	if c.userAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.Client.Do(r)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}

// Fetch executes req and reads the body, up to the configured cap. The
// response body is always closed.
func (c *Client) Fetch(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return resp, nil, fmt.Errorf("httpclient: read body: %w", err)
	}
	return resp, body, nil
}
