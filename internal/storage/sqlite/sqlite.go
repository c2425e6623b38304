package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/vigil/internal/scan"
	"github.com/FranksOps/vigil/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS scan_entries (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error_kind TEXT,
	error TEXT,
	verdict TEXT,
	probability REAL NOT NULL,
	simple_risk REAL NOT NULL,
	advanced_risk REAL NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS scan_entries_created_at ON scan_entries (created_at);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, entry *storage.Entry) error {
	query := `
	INSERT INTO scan_entries (
		id, url, outcome, error_kind, error, verdict, probability, simple_risk, advanced_risk, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
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
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	query := `SELECT id, url, outcome, error_kind, error, verdict, probability, simple_risk, advanced_risk, duration_ms, created_at FROM scan_entries WHERE 1=1`
	args := []any{}

	if filter.URL != "" {
		query += ` AND url = ?`
		args = append(args, filter.URL)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	if filter.Malicious != nil {
		if *filter.Malicious {
			query += ` AND verdict = ?`
		} else {
			query += ` AND verdict != ?`
		}
		args = append(args, string(scan.VerdictMalicious))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
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

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
