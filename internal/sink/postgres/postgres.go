// Package postgres mirrors the run's output tables into Postgres so
// downstream jobs can query them with SQL instead of reading files.
package postgres

import (
	"context"
	"fmt"

	"github.com/FranksOps/sift/internal/model"
	"github.com/FranksOps/sift/internal/sink"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink writes the three output tables into Postgres, keyed by run date.
type Sink struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS all_results_with_scores (
	run_date TEXT NOT NULL,
	query_id TEXT NOT NULL,
	query TEXT NOT NULL,
	type TEXT,
	rank INTEGER NOT NULL,
	url TEXT NOT NULL,
	title TEXT,
	content TEXT,
	host TEXT NOT NULL,
	search_engine TEXT,
	authority_score INTEGER NOT NULL,
	relevance_score INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS authority_hosts (
	run_date TEXT NOT NULL,
	host TEXT NOT NULL,
	authority_score INTEGER NOT NULL,
	PRIMARY KEY (run_date, host)
);

CREATE TABLE IF NOT EXISTS filtered_qna (
	run_date TEXT NOT NULL,
	query TEXT NOT NULL,
	type TEXT,
	url TEXT NOT NULL,
	title TEXT,
	content TEXT,
	authority_score INTEGER NOT NULL,
	relevance_score INTEGER NOT NULL,
	PRIMARY KEY (run_date, query, url)
);
`

// New connects to Postgres and ensures the output tables exist.
func New(ctx context.Context, dsn string) (*Sink, error) {
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

	return &Sink{pool: pool}, nil
}

// WriteAll replaces the given run date's rows in all three tables inside
// one transaction, so repeating a run never double-counts.
func (s *Sink) WriteAll(ctx context.Context, runDate string, t *sink.Tables) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"all_results_with_scores", "authority_hosts", "filtered_qna"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE run_date = $1`, table), runDate); err != nil {
			return fmt.Errorf("clear %s for %s: %w", table, runDate, err)
		}
	}

	if err := insertResults(ctx, tx, runDate, t.Results); err != nil {
		return err
	}
	if err := insertHosts(ctx, tx, runDate, t.Hosts); err != nil {
		return err
	}
	if err := insertQnA(ctx, tx, runDate, t.QnA); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertResults(ctx context.Context, tx pgx.Tx, runDate string, rows []model.ScoredRow) error {
	query := `
	INSERT INTO all_results_with_scores (
		run_date, query_id, query, type, rank, url, title, content, host, search_engine, authority_score, relevance_score
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, r := range rows {
		_, err := tx.Exec(ctx, query,
			runDate, r.QueryID, r.Query, r.QueryType, r.Rank, r.URL, r.Title,
			r.Content, r.Host, r.Engine, r.AuthorityScore, r.RelevanceScore,
		)
		if err != nil {
			return fmt.Errorf("insert result row: %w", err)
		}
	}
	return nil
}

func insertHosts(ctx context.Context, tx pgx.Tx, runDate string, rows []model.HostRow) error {
	query := `
	INSERT INTO authority_hosts (run_date, host, authority_score)
	VALUES ($1, $2, $3)
	`
	for _, r := range rows {
		if _, err := tx.Exec(ctx, query, runDate, r.Host, r.AuthorityScore); err != nil {
			return fmt.Errorf("insert host row: %w", err)
		}
	}
	return nil
}

func insertQnA(ctx context.Context, tx pgx.Tx, runDate string, rows []model.QnARow) error {
	query := `
	INSERT INTO filtered_qna (
		run_date, query, type, url, title, content, authority_score, relevance_score
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, r := range rows {
		_, err := tx.Exec(ctx, query,
			runDate, r.Query, r.Type, r.URL, r.Title, r.Content,
			r.AuthorityScore, r.RelevanceScore,
		)
		if err != nil {
			return fmt.Errorf("insert qna row: %w", err)
		}
	}
	return nil
}

// ReadResults returns the all-results rows for a run date, ordered by
// query and rank.
func (s *Sink) ReadResults(ctx context.Context, runDate string) ([]model.ScoredRow, error) {
	query := `
	SELECT query_id, query, type, rank, url, title, content, host, search_engine, authority_score, relevance_score
	FROM all_results_with_scores WHERE run_date = $1
	ORDER BY query_id, rank
	`
	rows, err := s.pool.Query(ctx, query, runDate)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []model.ScoredRow
	for rows.Next() {
		var r model.ScoredRow
		err := rows.Scan(
			&r.QueryID, &r.Query, &r.QueryType, &r.Rank, &r.URL, &r.Title,
			&r.Content, &r.Host, &r.Engine, &r.AuthorityScore, &r.RelevanceScore,
		)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}
