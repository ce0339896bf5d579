// Package sqlite implements jobs.Store on a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/jobs"
)

var _ jobs.Store = (*Store)(nil)

// Store keeps jobs in a single table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and migrates its schema.
func Open(path string) (*Store, error) {
	const op = "jobs.sqlite.open"
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errs.IO(op, path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errs.IO(op, path, err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, errs.IO(op, path, fmt.Errorf("migrating: %w", err))
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	request    TEXT NOT NULL,
	result     TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at, id);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Create(ctx context.Context, j *jobs.Job) error {
	const op = "jobs.sqlite.create"
	req, res, err := encode(j)
	if err != nil {
		return errs.IO(op, j.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, request, result, error, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, string(j.Status), req, res, j.Error, formatTime(j.CreatedAt), formatTime(j.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errs.InvalidState(op, "job %s already exists", j.ID)
		}
		return errs.IO(op, j.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*jobs.Job, error) {
	const op = "jobs.sqlite.get"
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, request, result, error, created_at, updated_at FROM jobs WHERE id = ?`, id)
	j, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.NotFound(op, id)
	}
	if err != nil {
		return nil, errs.IO(op, id, err)
	}
	return j, nil
}

func (s *Store) Update(ctx context.Context, j *jobs.Job) error {
	const op = "jobs.sqlite.update"
	req, res, err := encode(j)
	if err != nil {
		return errs.IO(op, j.ID, err)
	}
	out, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, request = ?, result = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(j.Status), req, res, j.Error, formatTime(j.UpdatedAt), j.ID,
	)
	if err != nil {
		return errs.IO(op, j.ID, err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return errs.IO(op, j.ID, err)
	}
	if n == 0 {
		return jobs.NotFound(op, j.ID)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*jobs.Job, error) {
	const op = "jobs.sqlite.list"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, request, result, error, created_at, updated_at FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, errs.IO(op, "", err)
	}
	defer rows.Close()

	out := []*jobs.Job{}
	for rows.Next() {
		j, err := scan(rows)
		if err != nil {
			return nil, errs.IO(op, "", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.IO(op, "", err)
	}
	// Text ordering of RFC 3339 differs from time ordering across offsets.
	jobs.SortJobs(out)
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*jobs.Job, error) {
	var (
		j                jobs.Job
		status, req, res string
		created, updated string
	)
	if err := row.Scan(&j.ID, &status, &req, &res, &j.Error, &created, &updated); err != nil {
		return nil, err
	}
	j.Status = jobs.Status(status)
	if err := json.Unmarshal([]byte(req), &j.Request); err != nil {
		return nil, fmt.Errorf("decoding request of %s: %w", j.ID, err)
	}
	if res != "" {
		j.Result = &jobs.Result{}
		if err := json.Unmarshal([]byte(res), j.Result); err != nil {
			return nil, fmt.Errorf("decoding result of %s: %w", j.ID, err)
		}
	}
	var err error
	if j.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &j, nil
}

func encode(j *jobs.Job) (req, res string, err error) {
	b, err := json.Marshal(j.Request)
	if err != nil {
		return "", "", err
	}
	req = string(b)
	if j.Result != nil {
		b, err := json.Marshal(j.Result)
		if err != nil {
			return "", "", err
		}
		res = string(b)
	}
	return req, res, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
