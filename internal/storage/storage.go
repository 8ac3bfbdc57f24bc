// Package storage persists fetched MetricsResult rows so a keyword is not
// paid for twice on the same day.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/kwscout/internal/serp"
)

// ErrMalformed marks a row that must not be served from the cache.
var ErrMalformed = errors.New("malformed cache row")

// Filter allows querying for specific MetricsResult rows.
type Filter struct {
	Keyword string
	Source  serp.Source
	Since   *time.Time
	Limit   int
	Offset  int
}

// Backend defines the interface for storing and querying metrics rows.
// Query returns newest rows first and silently drops rows that fail Validate.
type Backend interface {
	Save(ctx context.Context, result *serp.MetricsResult) error
	Query(ctx context.Context, filter Filter) ([]*serp.MetricsResult, error)
	Close() error
}

// Validate reports whether r can be trusted as a cached result.
func Validate(r *serp.MetricsResult) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil row", ErrMalformed)
	case r.Keyword == "":
		return fmt.Errorf("%w: empty keyword", ErrMalformed)
	case r.AllInTitle < 0 || r.InTitle < 0:
		return fmt.Errorf("%w: negative count", ErrMalformed)
	case !r.Source.Valid():
		return fmt.Errorf("%w: unknown source %q", ErrMalformed, r.Source)
	case r.FetchedAt.IsZero():
		return fmt.Errorf("%w: zero timestamp", ErrMalformed)
	}
	return nil
}

// Prepare validates r before a write and assigns an ID when it has none.
func Prepare(r *serp.MetricsResult) error {
	if err := Validate(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Match applies the non-paging part of f to r. File backends filter in
// memory with it.
func Match(r *serp.MetricsResult, f Filter) bool {
	if f.Keyword != "" && r.Keyword != f.Keyword {
		return false
	}
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	if f.Since != nil && r.FetchedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Filled reports whether rows already holds every row f can return, so a
// backend scanning in result order may stop reading.
func Filled(rows []*serp.MetricsResult, f Filter) bool {
	return f.Limit > 0 && len(rows) >= f.Offset+f.Limit
}

// Page applies offset and limit to rows already in result order.
func Page(rows []*serp.MetricsResult, f Filter) []*serp.MetricsResult {
	if f.Offset > 0 {
		if f.Offset >= len(rows) {
			return []*serp.MetricsResult{}
		}
		rows = rows[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(rows) {
		rows = rows[:f.Limit]
	}
	return rows
}
