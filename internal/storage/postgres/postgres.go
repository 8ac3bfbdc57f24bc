package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/storage"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS metrics_results (
	id TEXT PRIMARY KEY,
	keyword TEXT NOT NULL,
	source TEXT NOT NULL,
	allintitle_count BIGINT NOT NULL,
	intitle_count BIGINT NOT NULL,
	competitors JSONB NOT NULL DEFAULT '[]',
	malformed JSONB NOT NULL DEFAULT '[]',
	fetched_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS metrics_results_lookup ON metrics_results (keyword, source, fetched_at DESC);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, result *serp.MetricsResult) error {
	if err := storage.Prepare(result); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	competitors, err := json.Marshal(result.Competitors)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	malformed, err := json.Marshal(result.Malformed)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if result.Competitors == nil {
		competitors = []byte("[]")
	}
	if result.Malformed == nil {
		malformed = []byte("[]")
	}

	query := `
	INSERT INTO metrics_results (
		id, keyword, source, allintitle_count, intitle_count, competitors, malformed, fetched_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = b.pool.Exec(ctx, query,
		result.ID,
		result.Keyword,
		string(result.Source),
		int64(result.AllInTitle),
		int64(result.InTitle),
		competitors,
		malformed,
		result.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*serp.MetricsResult, error) {
	query := `SELECT id, keyword, source, allintitle_count, intitle_count, competitors, malformed, fetched_at FROM metrics_results WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Keyword != "" {
		query += fmt.Sprintf(` AND keyword = $%d`, paramCount)
		args = append(args, filter.Keyword)
		paramCount++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, paramCount)
		args = append(args, string(filter.Source))
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND fetched_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	// Paging happens after validation so an invalid row never hides a
	// valid one behind LIMIT.
	query += ` ORDER BY fetched_at DESC`

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var results []*serp.MetricsResult
	for rows.Next() {
		var r serp.MetricsResult
		var source string
		var competitors, malformed []byte
		var allintitle, intitle int64

		err := rows.Scan(&r.ID, &r.Keyword, &source, &allintitle, &intitle, &competitors, &malformed, &r.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		r.Source = serp.Source(source)
		r.AllInTitle = serp.Count(allintitle)
		r.InTitle = serp.Count(intitle)

		if json.Unmarshal(competitors, &r.Competitors) != nil ||
			json.Unmarshal(malformed, &r.Malformed) != nil ||
			storage.Validate(&r) != nil {
			continue
		}
		results = append(results, &r)
		if storage.Filled(results, filter) {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}

	return storage.Page(results, filter), nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
