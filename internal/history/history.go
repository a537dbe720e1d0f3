// Package history provides SQLite-backed persistence for generated reports.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/joshharrison/schedcheck/internal/analysis"
	"github.com/joshharrison/schedcheck/internal/report"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 50

// Store records reports in a SQLite database.
type Store struct {
	db *sql.DB
}

// Entry is the listing form of a stored report.
type Entry struct {
	ID          string            `json:"id"`
	TaskSet     string            `json:"task_set"`
	Discipline  report.Discipline `json:"discipline"`
	Verdict     analysis.Verdict  `json:"verdict"`
	Method      report.Method     `json:"method"`
	Utilization float64           `json:"utilization"`
	TaskCount   int               `json:"task_count"`
	CreatedAt   time.Time         `json:"created_at"`
}

// New opens (creating if needed) the database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer; batch analyses record concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		task_set TEXT NOT NULL,
		discipline TEXT NOT NULL,
		verdict TEXT NOT NULL,
		method TEXT NOT NULL,
		utilization REAL NOT NULL,
		task_count INTEGER NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	CREATE INDEX IF NOT EXISTS idx_reports_task_set ON reports(task_set);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores r. Recording the same report ID twice is an error.
func (s *Store) Record(ctx context.Context, r *report.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, task_set, discipline, verdict, method, utilization, task_count, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TaskSet, string(r.Discipline), r.Verdict.String(), string(r.Method),
		r.Utilization, r.TaskCount, string(body), r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_set, discipline, verdict, method, utilization, task_count, created_at
		 FROM reports ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var discipline, verdict, method string
		if err := rows.Scan(&e.ID, &e.TaskSet, &discipline, &verdict, &method, &e.Utilization, &e.TaskCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		e.Discipline = report.Discipline(discipline)
		e.Method = report.Method(method)
		if err := e.Verdict.UnmarshalText([]byte(verdict)); err != nil {
			return nil, fmt.Errorf("report %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the report with the given ID, or nil if there is none.
func (s *Store) Get(ctx context.Context, id string) (*report.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}

	var r report.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &r, nil
}
