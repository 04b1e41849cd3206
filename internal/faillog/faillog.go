// Package faillog records permanently failed pipeline operations in a
// local SQLite database for later inspection and replay. A failure lands
// here only after its retry budget is exhausted.
package faillog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Stage identifies which pipeline step failed.
type Stage string

const (
	StageSearch    Stage = "search"
	StageAuthority Stage = "authority"
	StageRelevance Stage = "relevance"
)

// Entry is one recorded failure.
type Entry struct {
	ID        string
	RunID     string
	Query     string
	Host      string
	URL       string
	Stage     Stage
	Error     string
	CreatedAt time.Time
}

// Log is a SQLite-backed failure log.
type Log struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS failures (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	query TEXT,
	host TEXT,
	url TEXT,
	stage TEXT NOT NULL,
	error TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

// Open creates or opens the failure log at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open faillog %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create faillog schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Record stores one failure. A missing ID or timestamp is filled in.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO failures (id, run_id, query, host, url, stage, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := l.db.ExecContext(ctx, query,
		e.ID, e.RunID, e.Query, e.Host, e.URL, string(e.Stage), e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// ByStage returns all failures recorded for one stage, oldest first.
func (l *Log) ByStage(ctx context.Context, stage Stage) ([]Entry, error) {
	query := `
	SELECT id, run_id, query, host, url, stage, error, created_at
	FROM failures WHERE stage = ? ORDER BY created_at ASC
	`

	rows, err := l.db.QueryContext(ctx, query, string(stage))
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var s string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Query, &e.Host, &e.URL, &s, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		e.Stage = Stage(s)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return entries, nil
}

// Count returns the number of recorded failures for a run.
func (l *Log) Count(ctx context.Context, runID string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failures WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
