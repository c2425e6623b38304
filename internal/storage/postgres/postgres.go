package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/vigil/internal/scan"
	"github.com/FranksOps/vigil/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS scan_entries (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	verdict TEXT NOT NULL DEFAULT '',
	probability DOUBLE PRECISION NOT NULL,
	simple_risk DOUBLE PRECISION NOT NULL,
	advanced_risk DOUBLE PRECISION NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS scan_entries_created_at ON scan_entries (created_at);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, entry *storage.Entry) error {
	query := `
	INSERT INTO scan_entries (
		id, url, outcome, error_kind, error, verdict, probability, simple_risk, advanced_risk, duration_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := b.pool.Exec(ctx, query,
		entry.ID,
		entry.URL,
		string(entry.Outcome),
		entry.ErrorKind,
		entry.Error,
		string(entry.Verdict),
		entry.Probability,
		entry.SimpleRisk,
		entry.AdvancedRisk,
		entry.Duration.Milliseconds(),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	query := `SELECT id, url, outcome, error_kind, error, verdict, probability, simple_risk, advanced_risk, duration_ms, created_at FROM scan_entries WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.URL != "" {
		query += fmt.Sprintf(` AND url = $%d`, paramCount)
		args = append(args, filter.URL)
		paramCount++
	}
	if filter.Outcome != "" {
		query += fmt.Sprintf(` AND outcome = $%d`, paramCount)
		args = append(args, string(filter.Outcome))
		paramCount++
	}
	if filter.Malicious != nil {
		op := "="
		if !*filter.Malicious {
			op = "<>"
		}
		query += fmt.Sprintf(` AND verdict %s $%d`, op, paramCount)
		args = append(args, string(scan.VerdictMalicious))
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var results []*storage.Entry
	for rows.Next() {
		var e storage.Entry
		var outcome, verdict string
		var durationMs int64

		err := rows.Scan(
			&e.ID, &e.URL, &outcome, &e.ErrorKind, &e.Error, &verdict,
			&e.Probability, &e.SimpleRisk, &e.AdvancedRisk, &durationMs, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		e.Outcome = storage.Outcome(outcome)
		e.Verdict = scan.Verdict(verdict)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
