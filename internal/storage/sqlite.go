package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"extendaudit/internal/finding"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// timeLayout has a fixed width so started_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			root TEXT,
			started_at TEXT,
			duration_ms INTEGER,
			exit_code INTEGER,
			action_count INTEGER,
			advice_count INTEGER,
			context JSON
		);`,
		`CREATE TABLE IF NOT EXISTS findings (
			run_id TEXT,
			seq INTEGER,
			rule_id TEXT,
			severity TEXT,
			message TEXT,
			file_path TEXT,
			line INTEGER,
			col INTEGER,
			snippet TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_findings_rule ON findings(rule_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("failed to encode analysis context: %w", err)
	}
	action, advice := finding.CountBySeverity(run.Findings)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Save Run
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, root, started_at, duration_ms, exit_code, action_count, advice_count, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Root, run.StartedAt.UTC().Format(timeLayout), run.Duration.Milliseconds(), run.ExitCode, action, advice, contextJSON); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	// 2. Save Findings
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (run_id, seq, rule_id, severity, message, file_path, line, col, snippet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, f := range run.Findings {
		if _, err := stmt.ExecContext(ctx, run.ID, i, f.RuleID, string(f.Severity), f.Message, f.FilePath, f.Line, f.Column, f.Snippet); err != nil {
			return fmt.Errorf("failed to save finding: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{ID: id}
	var startedAt string
	var durationMS int64
	var contextJSON []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT root, started_at, duration_ms, exit_code, context FROM runs WHERE id = ?", id,
	).Scan(&run.Root, &startedAt, &durationMS, &run.ExitCode, &contextJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	run.StartedAt, _ = time.Parse(timeLayout, startedAt)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &run.Context); err != nil {
			return nil, fmt.Errorf("failed to decode analysis context: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT rule_id, severity, message, file_path, line, col, snippet FROM findings WHERE run_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f finding.Finding
		var severity string
		if err := rows.Scan(&f.RuleID, &severity, &f.Message, &f.FilePath, &f.Line, &f.Column, &f.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.Severity = finding.Severity(severity)
		run.Findings = append(run.Findings, f)
	}
	return run, rows.Err()
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, root, started_at, duration_ms, exit_code, action_count, advice_count
		FROM runs ORDER BY started_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var startedAt string
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.Root, &startedAt, &durationMS, &r.ExitCode, &r.Action, &r.Advice); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
