// Package store persists finished runs to PostgreSQL. It is optional:
// nothing here runs unless a DSN is configured.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// DBPool abstracts the pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store provides PostgreSQL persistence for run results.
type Store struct {
	pool  DBPool
	log   *zap.Logger
	owned *pgxpool.Pool
}

// New creates a store on an existing pool and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pool for the DSN and wraps it in a store that owns
// the pool's lifecycle.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to results store: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.owned = pool
	return s, nil
}

// Close releases the pool if this store opened it.
func (s *Store) Close() {
	if s.owned != nil {
		s.owned.Close()
	}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		status      TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL,
		suites      INT NOT NULL,
		steps       INT NOT NULL,
		passed      INT NOT NULL,
		failed      INT NOT NULL,
		skipped     INT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS run_suites (
		run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		ord         INT NOT NULL,
		name        TEXT NOT NULL,
		path        TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		started_at  TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL,
		PRIMARY KEY (run_id, ord)
	);`,
	`CREATE TABLE IF NOT EXISTS run_steps (
		run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		suite_ord   INT NOT NULL,
		idx         INT NOT NULL,
		line        INT NOT NULL,
		verb        TEXT NOT NULL,
		step_text   TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		screenshot  TEXT NOT NULL DEFAULT '',
		started_at  TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL,
		PRIMARY KEY (run_id, suite_ord, idx)
	);`,
}

// EnsureSchema creates the result tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating results schema: %w", err)
		}
	}
	return nil
}

const insertRunSQL = `
	INSERT INTO runs (run_id, title, status, started_at, duration_ms, suites, steps, passed, failed, skipped)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`

const insertSuiteSQL = `
	INSERT INTO run_suites (run_id, ord, name, path, status, error, started_at, duration_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`

var stepColumns = []string{
	"run_id", "suite_ord", "idx", "line", "verb", "step_text",
	"status", "error", "screenshot", "started_at", "duration_ms",
}

// SaveRun writes one manifest in a single transaction: the run row,
// one row per suite, and a bulk copy of every step.
func (s *Store) SaveRun(ctx context.Context, m *schemas.RunManifest) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	status := schemas.SuitePassed
	if m.Failed() {
		status = schemas.SuiteFailed
	}

	if _, err := tx.Exec(ctx, insertRunSQL,
		m.RunID, m.Title, string(status), m.StartedAt.UTC(), m.Duration.Milliseconds(),
		m.Totals.Suites, m.Totals.Steps, m.Totals.Passed, m.Totals.Failed, m.Totals.Skipped,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", m.RunID, err)
	}

	for ord, suite := range m.Suites {
		if _, err := tx.Exec(ctx, insertSuiteSQL,
			m.RunID, ord, suite.Name, suite.Path, string(suite.Status), suite.Error,
			suite.StartedAt.UTC(), suite.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("failed to insert suite %s: %w", suite.Name, err)
		}
	}

	if err := s.copySteps(ctx, tx, m); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("persisted run",
		zap.String("run_id", m.RunID),
		zap.Int("suites", len(m.Suites)),
		zap.Int("steps", m.Totals.Steps))
	return nil
}

func (s *Store) copySteps(ctx context.Context, tx pgx.Tx, m *schemas.RunManifest) error {
	var rows [][]interface{}
	for ord, suite := range m.Suites {
		for _, step := range suite.Steps {
			rows = append(rows, []interface{}{
				m.RunID, ord, step.Index, step.Line, step.Verb, step.Text,
				string(step.Status), step.Error, step.Screenshot,
				step.StartedAt.UTC(), step.Duration.Milliseconds(),
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"run_steps"}, stepColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy steps: %w", err)
	}
	if int(copied) != len(rows) {
		return fmt.Errorf("mismatch in copied step count: expected %d, got %d", len(rows), copied)
	}
	return nil
}

// RunSummary is one line of run history.
type RunSummary struct {
	RunID     string
	Title     string
	Status    string
	StartedAt time.Time
	Duration  time.Duration
	Totals    schemas.RunTotals
}

const listRunsSQL = `
	SELECT run_id, title, status, started_at, duration_ms, suites, steps, passed, failed, skipped
	FROM runs
	ORDER BY started_at DESC
	LIMIT $1;
`

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var durationMS int64
		if err := rows.Scan(
			&r.RunID, &r.Title, &r.Status, &r.StartedAt, &durationMS,
			&r.Totals.Suites, &r.Totals.Steps, &r.Totals.Passed, &r.Totals.Failed, &r.Totals.Skipped,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

const getRunSQL = `
	SELECT title, started_at, duration_ms
	FROM runs
	WHERE run_id = $1;
`

const getSuitesSQL = `
	SELECT name, path, status, error, started_at, duration_ms
	FROM run_suites
	WHERE run_id = $1
	ORDER BY ord ASC;
`

const getStepsSQL = `
	SELECT suite_ord, idx, line, verb, step_text, status, error, screenshot, started_at, duration_ms
	FROM run_steps
	WHERE run_id = $1
	ORDER BY suite_ord ASC, idx ASC;
`

// GetRun reassembles a stored run into a manifest.
func (s *Store) GetRun(ctx context.Context, runID string) (*schemas.RunManifest, error) {
	m, err := s.getRunRow(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := s.getSuites(ctx, m); err != nil {
		return nil, err
	}
	if err := s.getSteps(ctx, m); err != nil {
		return nil, err
	}
	m.Recount()
	return m, nil
}

func (s *Store) getRunRow(ctx context.Context, runID string) (*schemas.RunManifest, error) {
	rows, err := s.pool.Query(ctx, getRunSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error during row iteration: %w", err)
		}
		return nil, fmt.Errorf("run %s not found", runID)
	}

	m := &schemas.RunManifest{RunID: runID}
	var durationMS int64
	if err := rows.Scan(&m.Title, &m.StartedAt, &durationMS); err != nil {
		return nil, fmt.Errorf("failed to scan run row: %w", err)
	}
	m.Duration = time.Duration(durationMS) * time.Millisecond
	return m, nil
}

func (s *Store) getSuites(ctx context.Context, m *schemas.RunManifest) error {
	rows, err := s.pool.Query(ctx, getSuitesSQL, m.RunID)
	if err != nil {
		return fmt.Errorf("failed to query suites: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var suite schemas.SuiteResult
		var status string
		var durationMS int64
		if err := rows.Scan(&suite.Name, &suite.Path, &status, &suite.Error, &suite.StartedAt, &durationMS); err != nil {
			return fmt.Errorf("failed to scan suite row: %w", err)
		}
		suite.Status = schemas.SuiteStatus(status)
		suite.Duration = time.Duration(durationMS) * time.Millisecond
		m.Suites = append(m.Suites, suite)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during row iteration: %w", err)
	}
	return nil
}

func (s *Store) getSteps(ctx context.Context, m *schemas.RunManifest) error {
	rows, err := s.pool.Query(ctx, getStepsSQL, m.RunID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var suiteOrd int
		var step schemas.StepResult
		var status string
		var durationMS int64
		if err := rows.Scan(
			&suiteOrd, &step.Index, &step.Line, &step.Verb, &step.Text,
			&status, &step.Error, &step.Screenshot, &step.StartedAt, &durationMS,
		); err != nil {
			return fmt.Errorf("failed to scan step row: %w", err)
		}
		if suiteOrd < 0 || suiteOrd >= len(m.Suites) {
			return fmt.Errorf("step references suite index %d outside run %s", suiteOrd, m.RunID)
		}
		step.Status = schemas.StepStatus(status)
		step.Duration = time.Duration(durationMS) * time.Millisecond
		m.Suites[suiteOrd].Steps = append(m.Suites[suiteOrd].Steps, step)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during row iteration: %w", err)
	}
	return nil
}
