// Package cache serves fresh MetricsResult rows from a storage backend so a
// keyword already fetched today costs nothing.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/kwscout/internal/metrics"
	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/storage"
)

// Config tunes freshness. With TTL zero a row is fresh until the end of the
// calendar day it was fetched on, in Location.
type Config struct {
	TTL      time.Duration
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

// Cache wraps a storage.Backend. A nil *Cache never hits and drops writes.
type Cache struct {
	backend storage.Backend
	ttl     time.Duration
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a cache over b.
func New(b storage.Backend, cfg Config) *Cache {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{backend: b, ttl: cfg.TTL, loc: cfg.Location, logger: cfg.Logger, now: cfg.Now}
}

// Cutoff is the oldest fetch time still considered fresh.
func (c *Cache) Cutoff() time.Time {
	now := c.now().In(c.loc)
	if c.ttl > 0 {
		return now.Add(-c.ttl)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// Lookup returns the newest fresh row for keyword from src.
func (c *Cache) Lookup(ctx context.Context, keyword string, src serp.Source) (*serp.MetricsResult, bool, error) {
	if c == nil || c.backend == nil {
		return nil, false, nil
	}
	since := c.Cutoff()
	rows, err := c.backend.Query(ctx, storage.Filter{Keyword: keyword, Source: src, Since: &since, Limit: 1})
	if err != nil {
		metrics.RecordCacheLookup("error")
		return nil, false, fmt.Errorf("cache: lookup %q: %w", keyword, err)
	}
	if len(rows) == 0 {
		metrics.RecordCacheLookup("miss")
		return nil, false, nil
	}
	metrics.RecordCacheLookup("hit")
	return rows[0], true, nil
}

// Store saves r. Results with a malformed count are not cached so the next
// run asks the provider again.
func (c *Cache) Store(ctx context.Context, r *serp.MetricsResult) error {
	if c == nil || c.backend == nil || r == nil {
		return nil
	}
	if len(r.Malformed) > 0 {
		c.logger.Debug("not caching result with malformed counts", "keyword", r.Keyword, "malformed", r.Malformed)
		return nil
	}
	if err := c.backend.Save(ctx, r); err != nil {
		return fmt.Errorf("cache: store %q: %w", r.Keyword, err)
	}
	return nil
}

// List exposes the backend query for inspection.
func (c *Cache) List(ctx context.Context, f storage.Filter) ([]*serp.MetricsResult, error) {
	if c == nil || c.backend == nil {
		return nil, nil
	}
	rows, err := c.backend.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("cache: list: %w", err)
	}
	return rows, nil
}

// Close closes the backend.
func (c *Cache) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}
