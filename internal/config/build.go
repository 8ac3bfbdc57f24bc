package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/FranksOps/kwscout/internal/cache"
	"github.com/FranksOps/kwscout/internal/provider"
	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/storage"
	"github.com/FranksOps/kwscout/internal/storage/csvbackend"
	"github.com/FranksOps/kwscout/internal/storage/jsonbackend"
	"github.com/FranksOps/kwscout/internal/storage/postgres"
	"github.com/FranksOps/kwscout/internal/storage/sqlite"
	"github.com/FranksOps/kwscout/pkg/httpclient"
	"github.com/FranksOps/kwscout/pkg/proxy"
	"github.com/FranksOps/kwscout/pkg/useragent"
)

// Proxies loads the proxy pool. It returns nil when no file is configured.
func (c *Config) Proxies() (*proxy.Pool, error) {
	if c.HTTP.ProxiesFile == "" {
		return nil, nil
	}
	p := proxy.NewPool(proxy.Config{MaxFailures: c.HTTP.ProxyMaxFailures, Cooldown: c.HTTP.ProxyCooldown})
	if err := p.LoadFile(c.HTTP.ProxiesFile); err != nil {
		return nil, fmt.Errorf("config: proxies: %w", err)
	}
	return p, nil
}

// NewProvider builds the configured provider with its backend, HTTP client
// and adapter settings.
func (c *Config) NewProvider(logger *slog.Logger) (*provider.Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	proxies, err := c.Proxies()
	if err != nil {
		return nil, err
	}

	opts := provider.Options{
		Adapter: provider.Config{
			Retry:             c.RetryPolicy(),
			RequestsPerSecond: c.Rate.RequestsPerSecond,
			Jitter:            c.Rate.Jitter,
			Logger:            logger,
		},
		Yahoo: serp.YahooConfig{
			BaseURL:     c.Yahoo.BaseURL,
			Fingerprint: httpclient.Profile(c.Yahoo.Fingerprint),
			UserAgents:  useragent.NewPool(nil),
			Proxies:     proxies,
			Logger:      logger,

			RespectRobots: c.HTTP.RespectRobots,
		},
	}

	src, err := serp.ParseSource(c.Provider)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if src != serp.SourceYahoo {
		// API backends share a plain client that still honors the proxy pool.
		client, err := httpclient.New(httpclient.Config{
			Timeout:   c.HTTP.Timeout,
			UserAgent: c.HTTP.UserAgent,
			Proxy:     proxyFunc(proxies),
		})
		if err != nil {
			return nil, fmt.Errorf("config: http client: %w", err)
		}
		opts.SerpAPI = serp.SerpAPIConfig{
			APIKey:   c.SerpAPI.APIKey,
			BaseURL:  c.SerpAPI.BaseURL,
			Country:  c.SerpAPI.Country,
			Language: c.SerpAPI.Language,
			Client:   client,
		}
		opts.DataForSEO = serp.DataForSEOConfig{
			Login:        c.DataForSEO.Login,
			Password:     c.DataForSEO.Password,
			BaseURL:      c.DataForSEO.BaseURL,
			LocationCode: c.DataForSEO.LocationCode,
			LanguageCode: c.DataForSEO.LanguageCode,
			Device:       c.DataForSEO.Device,
			Client:       client,
		}
	}
	return provider.New(c.Provider, opts)
}

// proxyFunc rotates through p on every request. A nil pool disables proxies.
func proxyFunc(p *proxy.Pool) func(*http.Request) (*url.URL, error) {
	if p == nil || p.Len() == 0 {
		return nil
	}
	return func(*http.Request) (*url.URL, error) {
		return p.Next(), nil
	}
}

// OpenBackend opens the storage backend named by cache.backend. It returns
// nil when caching is disabled.
func (c *Config) OpenBackend(ctx context.Context) (storage.Backend, error) {
	var (
		b   storage.Backend
		err error
	)
	switch c.Cache.Backend {
	case "", "none":
		return nil, nil
	case "sqlite":
		b, err = sqlite.New(c.Cache.DSN)
	case "postgres":
		b, err = postgres.New(ctx, c.Cache.DSN)
	case "csv":
		b, err = csvbackend.New(c.Cache.DSN)
	case "json":
		b, err = jsonbackend.New(c.Cache.DSN)
	default:
		return nil, fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s cache: %w", c.Cache.Backend, err)
	}
	return b, nil
}

// OpenCache wraps OpenBackend in a freshness-aware cache. The result is nil,
// and safe to use, when caching is disabled.
func (c *Config) OpenCache(ctx context.Context, logger *slog.Logger) (*cache.Cache, error) {
	b, err := c.OpenBackend(ctx)
	if err != nil || b == nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		b.Close()
		return nil, err
	}
	return cache.New(b, cache.Config{TTL: c.Cache.TTL, Location: loc, Logger: logger}), nil
}
