package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/storage"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS metrics_results (
	id TEXT PRIMARY KEY,
	keyword TEXT NOT NULL,
	source TEXT NOT NULL,
	allintitle_count INTEGER NOT NULL,
	intitle_count INTEGER NOT NULL,
	competitors TEXT NOT NULL DEFAULT '[]',
	malformed TEXT NOT NULL DEFAULT '[]',
	fetched_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS metrics_results_lookup ON metrics_results (keyword, source, fetched_at);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, result *serp.MetricsResult) error {
	if err := storage.Prepare(result); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	competitors, err := json.Marshal(nonNil(result.Competitors))
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	malformed, err := json.Marshal(nonNil(result.Malformed))
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	query := `
	INSERT INTO metrics_results (
		id, keyword, source, allintitle_count, intitle_count, competitors, malformed, fetched_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		result.ID,
		result.Keyword,
		string(result.Source),
		int64(result.AllInTitle),
		int64(result.InTitle),
		string(competitors),
		string(malformed),
		result.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*serp.MetricsResult, error) {
	query := `SELECT id, keyword, source, allintitle_count, intitle_count, competitors, malformed, fetched_at FROM metrics_results WHERE 1=1`
	args := []any{}

	if filter.Keyword != "" {
		query += ` AND keyword = ?`
		args = append(args, filter.Keyword)
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if filter.Since != nil {
		query += ` AND fetched_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	// Paging happens after validation so an invalid row never hides a
	// valid one behind LIMIT.
	query += ` ORDER BY fetched_at DESC`

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var results []*serp.MetricsResult
	for rows.Next() {
		var r serp.MetricsResult
		var source, competitors, malformed string
		var allintitle, intitle int64

		err := rows.Scan(&r.ID, &r.Keyword, &source, &allintitle, &intitle, &competitors, &malformed, &r.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		r.Source = serp.Source(source)
		r.AllInTitle = serp.Count(allintitle)
		r.InTitle = serp.Count(intitle)

		if json.Unmarshal([]byte(competitors), &r.Competitors) != nil ||
			json.Unmarshal([]byte(malformed), &r.Malformed) != nil ||
			storage.Validate(&r) != nil {
			continue
		}
		results = append(results, &r)
		if storage.Filled(results, filter) {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}

	return storage.Page(results, filter), nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
