// Package history persists extraction runs and report summaries to
// PostgreSQL.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/use-agent/statuswatch/models"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("history: not found")

const schema = `
CREATE TABLE IF NOT EXISTS terminal_runs (
	id             UUID PRIMARY KEY,
	started_at     TIMESTAMPTZ NOT NULL,
	duration_ms    BIGINT NOT NULL,
	expected_total INTEGER NOT NULL,
	actual_total   INTEGER NOT NULL,
	pages_visited  INTEGER NOT NULL,
	online         INTEGER NOT NULL,
	offline        INTEGER NOT NULL,
	failure_code   TEXT,
	payload        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS terminal_runs_started_at ON terminal_runs (started_at DESC);

CREATE TABLE IF NOT EXISTS reports (
	id           UUID PRIMARY KEY,
	generated_at TIMESTAMPTZ NOT NULL,
	file_name    TEXT NOT NULL,
	summary      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_generated_at ON reports (generated_at DESC);
`

// Store writes and reads run history.
type Store struct {
	db *pgxpool.Pool
}

// Open connects to url, checks the connection and creates the tables.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	s := &Store{db: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

// SaveTerminalRun stores one extraction run under id. Saving the same id
// again replaces the row.
func (s *Store) SaveTerminalRun(ctx context.Context, id string, run *models.TerminalRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("history: marshal run: %w", err)
	}
	var failure *string
	if run.Failure != nil {
		failure = &run.Failure.Code
	}

	query := `
		INSERT INTO terminal_runs (id, started_at, duration_ms, expected_total, actual_total, pages_visited, online, offline, failure_code, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			duration_ms = EXCLUDED.duration_ms,
			expected_total = EXCLUDED.expected_total,
			actual_total = EXCLUDED.actual_total,
			pages_visited = EXCLUDED.pages_visited,
			online = EXCLUDED.online,
			offline = EXCLUDED.offline,
			failure_code = EXCLUDED.failure_code,
			payload = EXCLUDED.payload;
	`
	_, err = s.db.Exec(ctx, query,
		id,
		run.StartedAt,
		run.DurationMs,
		run.ExpectedTotal,
		run.ActualTotal,
		run.PagesVisited,
		run.CountState("ONLINE"),
		run.CountState("OFFLINE"),
		failure,
		payload,
	)
	if err != nil {
		return fmt.Errorf("history: save run: %w", err)
	}
	return nil
}

// LatestTerminalRun returns the most recent run.
func (s *Store) LatestTerminalRun(ctx context.Context) (string, *models.TerminalRun, error) {
	var id string
	var payload []byte
	err := s.db.QueryRow(ctx,
		`SELECT id::text, payload FROM terminal_runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&id, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("history: latest run: %w", err)
	}

	var run models.TerminalRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return "", nil, fmt.Errorf("history: decode run: %w", err)
	}
	return id, &run, nil
}

// SaveReport stores a report summary.
func (s *Store) SaveReport(ctx context.Context, sum models.ReportSummary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("history: marshal report: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO reports (id, generated_at, file_name, summary)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			generated_at = EXCLUDED.generated_at,
			file_name = EXCLUDED.file_name,
			summary = EXCLUDED.summary;
	`, sum.ID, sum.GeneratedAt, sum.FileName, payload)
	if err != nil {
		return fmt.Errorf("history: save report: %w", err)
	}
	return nil
}

// RecentReports returns up to limit summaries, newest first.
func (s *Store) RecentReports(ctx context.Context, limit int) ([]models.ReportSummary, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.Query(ctx,
		`SELECT summary FROM reports ORDER BY generated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent reports: %w", err)
	}
	defer rows.Close()

	var out []models.ReportSummary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("history: scan report: %w", err)
		}
		var sum models.ReportSummary
		if err := json.Unmarshal(payload, &sum); err != nil {
			return nil, fmt.Errorf("history: decode report: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
