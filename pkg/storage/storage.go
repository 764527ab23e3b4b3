// Package storage keeps an sqlite history of import cycles and of what
// happened to every import request the poller saw.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS import_cycles (
  id           INTEGER PRIMARY KEY,
  started_at   TEXT NOT NULL,
  duration_ms  INTEGER NOT NULL DEFAULT 0,
  fetched      INTEGER NOT NULL DEFAULT 0,
  accepted     INTEGER NOT NULL DEFAULT 0,
  imported     INTEGER NOT NULL DEFAULT 0,
  failed       INTEGER NOT NULL DEFAULT 0,
  fetch_error  TEXT,
  source       TEXT NOT NULL DEFAULT 'timer'
);
CREATE INDEX IF NOT EXISTS idx_cycles_time ON import_cycles(started_at);
CREATE TABLE IF NOT EXISTS import_attempts (
  id            INTEGER PRIMARY KEY,
  cycle_id      INTEGER NOT NULL REFERENCES import_cycles(id),
  occurred_at   TEXT NOT NULL,
  code          TEXT NOT NULL,
  id_hash       TEXT NOT NULL,
  sketch_url    TEXT NOT NULL,
  catalog_key   TEXT,
  status        TEXT NOT NULL CHECK (status IN ('imported','rejected','failed')),
  detail        TEXT,
  missing_files TEXT
);
CREATE INDEX IF NOT EXISTS idx_attempts_time ON import_attempts(occurred_at);
CREATE INDEX IF NOT EXISTS idx_attempts_code ON import_attempts(code);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// RecordCycle stores a cycle and its attempts in one transaction and
// returns the new cycle id.
func (d *DB) RecordCycle(ctx context.Context, c Cycle, attempts []Attempt) (id int64, err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	trigger := c.Trigger
	if trigger == "" {
		trigger = "timer"
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO import_cycles(started_at, duration_ms, fetched, accepted, imported, failed, fetch_error, source) VALUES(?,?,?,?,?,?,?,?)`,
		formatTime(c.StartedAt), c.DurationMS, c.Fetched, c.Accepted, c.Imported, c.Failed, nullIfEmpty(c.FetchError), trigger)
	if err != nil {
		return 0, fmt.Errorf("inserting cycle: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, a := range attempts {
		occurred := a.OccurredAt
		if occurred.IsZero() {
			occurred = c.StartedAt
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO import_attempts(cycle_id, occurred_at, code, id_hash, sketch_url, catalog_key, status, detail, missing_files) VALUES(?,?,?,?,?,?,?,?,?)`,
			id, formatTime(occurred), a.Code, a.IDHash, a.SketchURL, nullIfEmpty(a.CatalogKey), a.Status, nullIfEmpty(a.Detail), joinList(a.MissingFiles))
		if err != nil {
			return 0, fmt.Errorf("inserting attempt for %s: %w", a.Code, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// AttemptFilter narrows ListRecentAttempts.
type AttemptFilter struct {
	Status string
	Code   string
	Since  time.Time
}

// ListRecentAttempts returns the most recent attempts, newest first.
func (d *DB) ListRecentAttempts(ctx context.Context, limit int, f AttemptFilter) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	where := "WHERE 1=1"
	args := []interface{}{}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Code != "" {
		where += " AND code = ?"
		args = append(args, f.Code)
	}
	if !f.Since.IsZero() {
		where += " AND occurred_at >= ?"
		args = append(args, formatTime(f.Since))
	}
	args = append(args, limit)

	q := "SELECT cycle_id, occurred_at, code, id_hash, sketch_url, catalog_key, status, detail, missing_files FROM import_attempts " + where + " ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		var (
			a                    Attempt
			occurredAt           string
			key, detail, missing sql.NullString
		)
		if err := rows.Scan(&a.CycleID, &occurredAt, &a.Code, &a.IDHash, &a.SketchURL, &key, &a.Status, &detail, &missing); err != nil {
			return nil, err
		}
		a.OccurredAt = parseTime(occurredAt)
		a.CatalogKey = key.String
		a.Detail = detail.String
		a.MissingFiles = splitList(missing.String)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}

// ListRecentCycles returns the most recent N cycles, newest first.
func (d *DB) ListRecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.sql.QueryContext(ctx, "SELECT id, started_at, duration_ms, fetched, accepted, imported, failed, fetch_error, source FROM import_cycles ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var (
			c         Cycle
			startedAt string
			fetchErr  sql.NullString
		)
		if err := rows.Scan(&c.ID, &startedAt, &c.DurationMS, &c.Fetched, &c.Accepted, &c.Imported, &c.Failed, &fetchErr, &c.Trigger); err != nil {
			return nil, err
		}
		c.StartedAt = parseTime(startedAt)
		c.FetchError = fetchErr.String
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	var (
		s    Stats
		last sql.NullString
	)
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*), MAX(started_at) FROM import_cycles`).Scan(&s.Cycles, &last)
	if err != nil {
		return s, err
	}
	if last.Valid {
		s.LastCycleAt = parseTime(last.String)
	}

	rows, err := d.sql.QueryContext(ctx, `SELECT status, COUNT(*) FROM import_attempts GROUP BY status`)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return s, err
		}
		switch status {
		case StatusImported:
			s.Imported = n
		case StatusRejected:
			s.Rejected = n
		case StatusFailed:
			s.Failed = n
		}
	}
	return s, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
